package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shelf-deals/internal/core/port"
)

// Handler contains dependencies and routes. It is the inbound HTTP adapter
// for both the admin-facing campaign management and the customer-facing
// cart operations. Routes are registered on a chi.Router for convenient
// method handling.
type Handler struct {
	campaigns port.CampaignUseCase
	carts     port.CartUseCase
	logger    *slog.Logger
	router    chi.Router
}

// NewHandler creates a handler with all routes configured.
func NewHandler(campaigns port.CampaignUseCase, carts port.CartUseCase, logger *slog.Logger) *Handler {
	h := &Handler{campaigns: campaigns, carts: carts, logger: logger}
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.handleCreateCampaign)
			r.Get("/{id}", h.handleGetCampaign)
			r.Put("/{id}", h.handleUpdateCampaign)
			r.Delete("/{id}", h.handleCancelCampaign)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.handleViewCart)
			r.Post("/items", h.handleAddItem)
			r.Patch("/items/{bookID}", h.handleSetQuantity)
			r.Delete("/items/{bookID}", h.handleRemoveItem)
			r.Post("/validate", h.handleValidateCart)
		})
	})
	h.router = r
	return h
}

// Router returns the underlying http.Handler.
func (h *Handler) Router() http.Handler {
	return h.router
}

// writeError maps domain errors onto status codes. Business outcomes
// (conflicts, exhausted stock) stay in the 4xx range; anything else is
// logged and reported as a generic 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, port.ErrCampaignNotFound), errors.Is(err, port.ErrBookNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, port.ErrSchedulingConflict), errors.Is(err, port.ErrStockExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
