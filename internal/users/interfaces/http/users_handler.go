package http

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	apihttp "freight-cloud/internal/api/http"
	"freight-cloud/internal/apperror"
	"freight-cloud/internal/auth"
	"freight-cloud/internal/observability/metrics"
	"freight-cloud/internal/query"
	"freight-cloud/internal/users/application"
	"freight-cloud/internal/users/domain"
	usermongo "freight-cloud/internal/users/infrastructure/mongo"
)

const usersRoutePrefix = "/api/v1/users"

// UsersHandler serves the admin-side user administration endpoints.
type UsersHandler struct {
	repo    *usermongo.Repository
	service *application.Service
	logger  *log.Logger
}

// NewUsersHandler constructs a UsersHandler.
func NewUsersHandler(repo *usermongo.Repository, service *application.Service, logger *log.Logger) (*UsersHandler, error) {
	if repo == nil {
		return nil, errors.New("users handler: nil repository")
	}
	if service == nil {
		return nil, errors.New("users handler: nil service")
	}
	if logger == nil {
		return nil, errors.New("users handler: nil logger")
	}
	return &UsersHandler{repo: repo, service: service, logger: logger}, nil
}

// ServeHTTP routes requests under /api/v1/users.
func (h *UsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, usersRoutePrefix), "/")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		h.handleList(w, r)
	case rest == "distinct" && r.Method == http.MethodGet:
		h.handleDistinct(w, r)
	case rest == "invite" && r.Method == http.MethodPost:
		h.handleInvite(w, r)
	case rest == "invitations" && r.Method == http.MethodGet:
		h.handleListInvitations(w, r)
	case strings.HasPrefix(rest, "invitations/") && r.Method == http.MethodDelete:
		h.handleRevokeInvitation(w, r, strings.TrimPrefix(rest, "invitations/"))
	default:
		h.serveByID(w, r, rest)
	}
}

func (h *UsersHandler) serveByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	id, err := bson.ObjectIDFromHex(parts[0])
	if err != nil {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "invalid user id"))
		return
	}
	if err := h.ensureSameCompany(r, id); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch action {
	case "activate":
		h.handleSetStatus(w, r, id, domain.StatusActive)
	case "deactivate":
		h.handleSetStatus(w, r, id, domain.StatusInactive)
	case "edit":
		h.handleEdit(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ensureSameCompany keeps admins from administering accounts of other
// tenants.
func (h *UsersHandler) ensureSameCompany(r *http.Request, id bson.ObjectID) error {
	companyID := auth.CompanyIDFromContext(r.Context())
	if companyID == "" {
		return apperror.New(apperror.KindUnauthorized, "missing company context")
	}
	owner, err := h.repo.ResolveCompany(r.Context(), id.Hex())
	if err != nil {
		return err
	}
	if owner == "" {
		return apperror.New(apperror.KindNotFound, "user not found")
	}
	if owner != companyID {
		return apperror.New(apperror.KindForbidden, "user belongs to another company")
	}
	return nil
}

func (h *UsersHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params := query.ParseHTTPQuery(r.URL.Query())
	if companyID := auth.CompanyIDFromContext(r.Context()); companyID != "" {
		params["company"] = companyID
	}

	started := time.Now()
	page, err := h.repo.List(r.Context(), params)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObservePipeline(string(query.VariantLogin), result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, page)
}

func (h *UsersHandler) handleDistinct(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query().Get("distinct")
	if keys == "" {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "distinct keys required"))
		return
	}
	companyID, err := companyFromContext(r)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}

	values := map[string][]any{}
	for _, key := range strings.Split(keys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fieldValues, err := h.repo.Distinct(r.Context(), key, companyID)
		if err != nil {
			apihttp.RespondError(w, h.logger, err)
			return
		}
		values[key] = fieldValues
	}
	apihttp.RespondJSON(w, http.StatusOK, values)
}

func (h *UsersHandler) handleInvite(w http.ResponseWriter, r *http.Request) {
	var input application.InviteInput
	if err := apihttp.DecodeJSON(r, &input); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	companyID, err := companyFromContext(r)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	senderID, err := bson.ObjectIDFromHex(auth.SubjectFromContext(r.Context()))
	if err != nil {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindUnauthorized, "missing user context"))
		return
	}
	inv, err := h.service.Invite(r.Context(), senderID, companyID, input)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusCreated, inv)
}

func (h *UsersHandler) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	params := query.ParseHTTPQuery(r.URL.Query())
	if companyID := auth.CompanyIDFromContext(r.Context()); companyID != "" {
		params["senderInformation.company"] = companyID
	}

	started := time.Now()
	page, err := h.repo.ListInvitations(r.Context(), params)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObservePipeline(string(query.VariantInvitations), result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, page)
}

func (h *UsersHandler) handleRevokeInvitation(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := bson.ObjectIDFromHex(rawID)
	if err != nil {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "invalid invitation id"))
		return
	}
	if err := h.service.RevokeInvitation(r.Context(), id); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) handleSetStatus(w http.ResponseWriter, r *http.Request, id bson.ObjectID, status domain.Status) {
	if err := h.repo.SetStatus(r.Context(), id, status); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (h *UsersHandler) handleEdit(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	var patch map[string]any
	if err := apihttp.DecodeJSON(r, &patch); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	for _, reserved := range []string{"_id", "company", "password", "password_changed_at",
		"password_reset_token", "password_reset_expires", "created_at", "email"} {
		delete(patch, reserved)
	}
	if role, ok := patch["role"].(string); ok {
		normalized, valid := auth.NormalizeRole(role)
		if !valid {
			apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "unknown role"))
			return
		}
		patch["role"] = normalized
	}
	if err := h.repo.UpdateUser(r.Context(), id, bson.M(patch)); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func companyFromContext(r *http.Request) (bson.ObjectID, error) {
	companyID := auth.CompanyIDFromContext(r.Context())
	if companyID == "" {
		return bson.ObjectID{}, apperror.New(apperror.KindUnauthorized, "missing company context")
	}
	id, err := bson.ObjectIDFromHex(companyID)
	if err != nil {
		return bson.ObjectID{}, apperror.Wrap(apperror.KindValidation, "invalid company id", err)
	}
	return id, nil
}
