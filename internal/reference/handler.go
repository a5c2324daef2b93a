package reference

import (
	"errors"
	"log"
	"net/http"
	"strings"

	apihttp "freight-cloud/internal/api/http"
	"freight-cloud/internal/apperror"
)

const perRoutePrefix = "/api/v1/per/"

// Handler serves the reference lookups.
type Handler struct {
	store  *Store
	logger *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(store *Store, logger *log.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("reference handler: nil store")
	}
	if logger == nil {
		return nil, errors.New("reference handler: nil logger")
	}
	return &Handler{store: store, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/per/{item_line} and
// GET /api/v1/item-lines.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path == "/api/v1/item-lines" {
		names, err := h.store.ItemLines(r.Context())
		if err != nil {
			apihttp.RespondError(w, h.logger, err)
			return
		}
		apihttp.RespondJSON(w, http.StatusOK, map[string]any{"item_lines": names})
		return
	}

	itemLine := strings.TrimPrefix(r.URL.Path, perRoutePrefix)
	if itemLine == "" || strings.Contains(itemLine, "/") {
		apihttp.RespondError(w, h.logger, apperror.New(apperror.KindValidation, "item line required"))
		return
	}
	per, err := h.store.PerForItemLine(r.Context(), itemLine)
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, map[string]any{"item_line": itemLine, "per": per})
}
