// Package http exposes the offer endpoints.
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
	"freight-cloud/internal/offers/domain"
	"freight-cloud/internal/offers/interfaces"
	offermongo "freight-cloud/internal/offers/infrastructure/mongo"
	"freight-cloud/internal/query"
)

const routePrefix = "/api/v1/offers"

// Handler provides offer HTTP endpoints.
type Handler struct {
	repo     *offermongo.Repository
	recorder *offermongo.Recorder
	checker  auth.CompanyOwnershipChecker
	logger   *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(repo *offermongo.Repository, recorder *offermongo.Recorder, checker auth.CompanyOwnershipChecker, logger *log.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("offers handler: nil repository")
	}
	if recorder == nil {
		return nil, errors.New("offers handler: nil recorder")
	}
	if logger == nil {
		return nil, errors.New("offers handler: nil logger")
	}
	return &Handler{repo: repo, recorder: recorder, checker: checker, logger: logger}, nil
}

// ServeHTTP routes requests under /api/v1/offers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, routePrefix), "/")
	switch {
	case rest == "":
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r)
		case http.MethodPost:
			h.handleCreate(w, r)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case rest == "distinct" && r.Method == http.MethodGet:
		h.handleDistinct(w, r)
	case rest == "export.xlsx" && r.Method == http.MethodGet:
		h.handleExportXLSX(w, r)
	default:
		h.serveByID(w, r, rest)
	}
}

func (h *Handler) serveByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	id, err := bson.ObjectIDFromHex(parts[0])
	if err != nil {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "invalid offer id"))
		return
	}
	if err := h.ensureOwnership(r, parts[0]); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	switch {
	case action == "" && r.Method == http.MethodGet:
		h.handleGet(w, r, id)
	case action == "" && r.Method == http.MethodPatch:
		h.handleUpdate(w, r, id)
	case action == "" && r.Method == http.MethodDelete:
		h.handleArchive(w, r, id)
	case action == "restore" && r.Method == http.MethodPost:
		h.handleRestore(w, r, id)
	case action == "history" && r.Method == http.MethodGet:
		h.handleHistory(w, r, id)
	case action == "quote.pdf" && r.Method == http.MethodGet:
		h.handleQuotePDF(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) ensureOwnership(r *http.Request, resourceID string) error {
	if h.checker == nil {
		return nil
	}
	companyID := auth.CompanyIDFromContext(r.Context())
	err := h.checker.EnsureCompanyOwnership(r.Context(), companyID, resourceID)
	switch {
	case errors.Is(err, auth.ErrCompanyMismatch):
		return apperror.New(apperror.KindForbidden, "offer belongs to another company")
	case errors.Is(err, auth.ErrNotFound):
		return apperror.New(apperror.KindNotFound, "offer not found")
	}
	return err
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
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
	metrics.ObservePipeline(string(query.VariantOffers), result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, page)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var offer domain.Offer
	if err := apihttp.DecodeJSON(r, &offer); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.applyIdentity(r, &offer); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.repo.Create(r.Context(), &offer); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusCreated, offer)
}

func (h *Handler) applyIdentity(r *http.Request, offer *domain.Offer) error {
	companyID := auth.CompanyIDFromContext(r.Context())
	if companyID != "" {
		company, err := bson.ObjectIDFromHex(companyID)
		if err != nil {
			return apperror.Wrap(apperror.KindValidation, "invalid company id", err)
		}
		offer.Company = company
		offer.SenderInformation.Company = company
	}
	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		user, err := bson.ObjectIDFromHex(subject)
		if err == nil {
			offer.SenderInformation.User = user
		}
	}
	return nil
}

func (h *Handler) handleDistinct(w http.ResponseWriter, r *http.Request) {
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

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	offer, err := h.repo.Get(r.Context(), id)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, offer)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	var patch map[string]any
	if err := apihttp.DecodeJSON(r, &patch); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	for _, reserved := range []string{"_id", "company", "update_history", "created_at", "senderInformation"} {
		delete(patch, reserved)
	}
	previous, err := h.repo.Update(r.Context(), id, bson.M(patch))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"previous": previous,
	})
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	if err := h.repo.Archive(r.Context(), id); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	if err := h.repo.Restore(r.Context(), id); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	snapshots, err := h.recorder.ListByOffer(r.Context(), id)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	params := query.ParseHTTPQuery(r.URL.Query())
	if companyID := auth.CompanyIDFromContext(r.Context()); companyID != "" {
		params["company"] = companyID
	}
	// Exports are unpaginated within a sane cap.
	params["limit"] = "10000"
	params["page"] = "1"

	started := time.Now()
	page, err := h.repo.List(r.Context(), params)
	if err != nil {
		metrics.ObserveExport("xlsx", metrics.ResultError, time.Since(started))
		apihttp.RespondError(w, h.logger, err)
		return
	}
	payload, err := interfaces.BuildOffersXLSX(page.Data)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport("xlsx", result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="offers.xlsx"`)
	_, _ = w.Write(payload)
}

func (h *Handler) handleQuotePDF(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	started := time.Now()
	offer, err := h.repo.Get(r.Context(), id)
	if err != nil {
		metrics.ObserveExport("pdf", metrics.ResultError, time.Since(started))
		apihttp.RespondError(w, h.logger, err)
		return
	}
	payload, err := interfaces.BuildQuotePDF(offer)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport("pdf", result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="quote.pdf"`)
	_, _ = w.Write(payload)
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
