// Package http exposes the account endpoints: the public auth surface
// and the admin-side user administration.
package http

import (
	"errors"
	"log"
	"net/http"
	"strings"

	apihttp "freight-cloud/internal/api/http"
	"freight-cloud/internal/apperror"
	"freight-cloud/internal/users/application"
)

const authRoutePrefix = "/api/v1/auth"

// AuthHandler serves the public authentication endpoints.
type AuthHandler struct {
	service *application.Service
	logger  *log.Logger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(service *application.Service, logger *log.Logger) (*AuthHandler, error) {
	if service == nil {
		return nil, errors.New("auth handler: nil service")
	}
	if logger == nil {
		return nil, errors.New("auth handler: nil logger")
	}
	return &AuthHandler{service: service, logger: logger}, nil
}

// ServeHTTP routes requests under /api/v1/auth.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, authRoutePrefix), "/")
	action, token := splitAction(rest)
	switch action {
	case "login":
		h.handleLogin(w, r)
	case "sign-up":
		h.handleSignup(w, r, token)
	case "hash-check":
		h.handleHashCheck(w, r, token)
	case "forgot-password":
		h.handleForgotPassword(w, r)
	case "reset-password":
		h.handleResetPassword(w, r, token)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func splitAction(rest string) (action, token string) {
	parts := strings.SplitN(rest, "/", 2)
	action = parts[0]
	if len(parts) == 2 {
		token = parts[1]
	}
	return action, token
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := apihttp.DecodeJSON(r, &body); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	token, user, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"token":  token,
		"user":   user,
	})
}

func (h *AuthHandler) handleSignup(w http.ResponseWriter, r *http.Request, token string) {
	if token == "" {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "invitation token required"))
		return
	}
	var input application.SignupInput
	if err := apihttp.DecodeJSON(r, &input); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	user, err := h.service.Signup(r.Context(), token, input)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) handleHashCheck(w http.ResponseWriter, r *http.Request, token string) {
	if token == "" {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "invitation token required"))
		return
	}
	inv, err := h.service.HashCheck(r.Context(), token)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"email":  inv.Email,
		"role":   inv.Role,
	})
}

func (h *AuthHandler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := apihttp.DecodeJSON(r, &body); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.ForgotPassword(r.Context(), body.Email); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (h *AuthHandler) handleResetPassword(w http.ResponseWriter, r *http.Request, token string) {
	if token == "" {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "reset token required"))
		return
	}
	var body struct {
		Password string `json:"password"`
	}
	if err := apihttp.DecodeJSON(r, &body); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), token, body.Password); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}
