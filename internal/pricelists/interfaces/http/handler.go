// Package http exposes the price-list endpoints.
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
	"freight-cloud/internal/pricelists/domain"
	listmongo "freight-cloud/internal/pricelists/infrastructure/mongo"
	"freight-cloud/internal/query"
)

const routePrefix = "/api/v1/price-lists"

// Handler provides price-list HTTP endpoints.
type Handler struct {
	repo    *listmongo.Repository
	checker auth.CompanyOwnershipChecker
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(repo *listmongo.Repository, checker auth.CompanyOwnershipChecker, logger *log.Logger) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("pricelists handler: nil repository")
	}
	if logger == nil {
		return nil, errors.New("pricelists handler: nil logger")
	}
	return &Handler{repo: repo, checker: checker, logger: logger}, nil
}

// ServeHTTP routes requests under /api/v1/price-lists.
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
	case rest == "free-intervals" && r.Method == http.MethodGet:
		h.handleFreeIntervals(w, r)
	case rest == "distinct" && r.Method == http.MethodGet:
		h.handleDistinct(w, r)
	default:
		h.serveByID(w, r, rest)
	}
}

func (h *Handler) serveByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	id, err := bson.ObjectIDFromHex(parts[0])
	if err != nil {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "invalid price list id"))
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
		return apperror.New(apperror.KindForbidden, "price list belongs to another company")
	case errors.Is(err, auth.ErrNotFound):
		return apperror.New(apperror.KindNotFound, "price list not found")
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
	metrics.ObservePipeline(string(query.VariantPriceListCurrency), result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, page)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var list domain.PriceList
	if err := apihttp.DecodeJSON(r, &list); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.applyIdentity(r, &list); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.repo.Create(r.Context(), &list); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusCreated, list)
}

func (h *Handler) applyIdentity(r *http.Request, list *domain.PriceList) error {
	companyID := auth.CompanyIDFromContext(r.Context())
	if companyID != "" {
		company, err := bson.ObjectIDFromHex(companyID)
		if err != nil {
			return apperror.Wrap(apperror.KindValidation, "invalid company id", err)
		}
		list.Company = company
		list.SenderInformation.Company = company
	}
	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		if user, err := bson.ObjectIDFromHex(subject); err == nil {
			list.SenderInformation.User = user
		}
	}
	return nil
}

func (h *Handler) handleFreeIntervals(w http.ResponseWriter, r *http.Request) {
	params := query.ParseHTTPQuery(r.URL.Query())
	if _, ok := params["category"]; !ok {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "category filter required"))
		return
	}
	if companyID := auth.CompanyIDFromContext(r.Context()); companyID != "" {
		params["company"] = companyID
	}

	started := time.Now()
	gaps, err := h.repo.FreeIntervals(r.Context(), params)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObservePipeline(string(query.VariantFreeIntervals), result, time.Since(started))
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, gaps)
}

func (h *Handler) handleDistinct(w http.ResponseWriter, r *http.Request) {
	keys := r.URL.Query().Get("distinct")
	if keys == "" {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "distinct keys required"))
		return
	}
	companyID := auth.CompanyIDFromContext(r.Context())
	company, err := bson.ObjectIDFromHex(companyID)
	if err != nil {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindUnauthorized, "missing company context"))
		return
	}

	values := map[string][]any{}
	for _, key := range strings.Split(keys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fieldValues, err := h.repo.Distinct(r.Context(), key, company)
		if err != nil {
			apihttp.RespondError(w, h.logger, err)
			return
		}
		values[key] = fieldValues
	}
	apihttp.RespondJSON(w, http.StatusOK, values)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	list, err := h.repo.Get(r.Context(), id)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, list)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, id bson.ObjectID) {
	var list domain.PriceList
	if err := apihttp.DecodeJSON(r, &list); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	if err := h.repo.Update(r.Context(), id, &list); err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, list)
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
