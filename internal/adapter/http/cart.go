package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleAddItem puts a book into the caller's cart at the best currently
// valid price. An exhausted discount falls back to the base price, so the
// add itself only fails when the book's base stock cannot cover it.
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	line, err := h.carts.AddItem(r.Context(), uid, req.BookID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toLineResponse(line))
}

// handleSetQuantity changes the quantity of one cart line. Raising a
// discounted line past the remaining sale stock produces HTTP 409.
func (h *Handler) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}
	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	line, err := h.carts.SetQuantity(r.Context(), uid, bookID, req.Quantity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if line == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, toLineResponse(line))
}

// handleRemoveItem deletes one cart line and releases its reservation.
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return
	}
	if err := h.carts.RemoveItem(r.Context(), uid, bookID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleViewCart returns the caller's cart with totals.
func (h *Handler) handleViewCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	view, err := h.carts.View(r.Context(), uid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := cartResponse{Items: make([]cartLineResponse, 0, len(view.Items)), Total: view.Total}
	for i := range view.Items {
		resp.Items = append(resp.Items, toLineResponse(&view.Items[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleValidateCart re-checks the cart against current campaign state
// right before checkout and returns what changed. An empty list means the
// cart is safe to charge as displayed.
func (h *Handler) handleValidateCart(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		http.Error(w, "missing X-User-ID", http.StatusBadRequest)
		return
	}
	adjustments, err := h.carts.ValidateForCheckout(r.Context(), uid)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"adjustments": toAdjustmentResponses(adjustments),
	})
}
