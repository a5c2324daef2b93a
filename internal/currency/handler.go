package currency

import (
	"errors"
	"log"
	"net/http"

	apihttp "freight-cloud/internal/api/http"
)

// Handler serves the current rate snapshot.
type Handler struct {
	store  *Store
	logger *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(store *Store, logger *log.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("currency handler: nil store")
	}
	if logger == nil {
		return nil, errors.New("currency handler: nil logger")
	}
	return &Handler{store: store, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/currencies.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	snapshot, err := h.store.Current(r.Context())
	if err != nil {
		apihttp.RespondError(w, h.logger, err)
		return
	}
	apihttp.RespondJSON(w, http.StatusOK, snapshot)
}
