package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"shelf-deals/internal/core/domain"
	"shelf-deals/internal/core/port"
)

// campaignRequest is the admin payload for creating or editing a campaign.
type campaignRequest struct {
	Name    string                `json:"name"`
	StartAt time.Time             `json:"start_at"`
	EndAt   time.Time             `json:"end_at"`
	Items   []campaignItemRequest `json:"items,omitempty"`
}

type campaignItemRequest struct {
	BookID       int64 `json:"book_id"`
	SalePrice    int64 `json:"sale_price"`
	StockCeiling int   `json:"stock_ceiling"`
}

func (req campaignRequest) draft() port.CampaignDraft {
	draft := port.CampaignDraft{
		Name:    req.Name,
		StartAt: req.StartAt,
		EndAt:   req.EndAt,
	}
	for _, item := range req.Items {
		draft.Items = append(draft.Items, port.CampaignItemDraft{
			BookID:       item.BookID,
			SalePrice:    item.SalePrice,
			StockCeiling: item.StockCeiling,
		})
	}
	return draft
}

type campaignResponse struct {
	ID       int64                  `json:"id"`
	Name     string                 `json:"name"`
	StartAt  time.Time              `json:"start_at"`
	EndAt    time.Time              `json:"end_at"`
	Status   string                 `json:"status"`
	Items    []campaignItemResponse `json:"items,omitempty"`
	Warnings []adjustmentResponse   `json:"warnings,omitempty"`
}

type campaignItemResponse struct {
	ID           int64 `json:"id"`
	BookID       int64 `json:"book_id"`
	SalePrice    int64 `json:"sale_price"`
	StockCeiling int   `json:"stock_ceiling"`
	SoldCount    int   `json:"sold_count"`
	Remaining    int   `json:"remaining"`
}

type adjustmentResponse struct {
	BookID      int64  `json:"book_id"`
	Kind        string `json:"kind"`
	OldPrice    int64  `json:"old_price"`
	NewPrice    int64  `json:"new_price"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
	Message     string `json:"message"`
}

func toCampaignResponse(c *domain.Campaign, items []domain.CampaignItem, warnings []domain.Adjustment) campaignResponse {
	resp := campaignResponse{
		ID:      c.ID,
		Name:    c.Name,
		StartAt: c.StartAt,
		EndAt:   c.EndAt,
		Status:  string(c.Status),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, campaignItemResponse{
			ID:           item.ID,
			BookID:       item.BookID,
			SalePrice:    item.SalePrice,
			StockCeiling: item.StockCeiling,
			SoldCount:    item.SoldCount,
			Remaining:    item.Remaining(),
		})
	}
	resp.Warnings = toAdjustmentResponses(warnings)
	return resp
}

func toAdjustmentResponses(adjustments []domain.Adjustment) []adjustmentResponse {
	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, adjustmentResponse{
			BookID:      a.BookID,
			Kind:        string(a.Kind),
			OldPrice:    a.OldPrice,
			NewPrice:    a.NewPrice,
			OldQuantity: a.OldQty,
			NewQuantity: a.NewQty,
			Message:     a.Message,
		})
	}
	return out
}

// cartItemRequest is the customer payload for adding a book or changing
// its quantity.
type cartItemRequest struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

type cartLineResponse struct {
	BookID     int64 `json:"book_id"`
	Quantity   int   `json:"quantity"`
	UnitPrice  int64 `json:"unit_price"`
	Subtotal   int64 `json:"subtotal"`
	Discounted bool  `json:"discounted"`
}

type cartResponse struct {
	Items []cartLineResponse `json:"items"`
	Total int64              `json:"total"`
}

func toLineResponse(line *domain.CartLineItem) cartLineResponse {
	return cartLineResponse{
		BookID:     line.BookID,
		Quantity:   line.Quantity,
		UnitPrice:  line.UnitPrice,
		Subtotal:   line.Subtotal(),
		Discounted: line.Discounted(),
	}
}

// userID extracts the caller's identity. Auth proper is handled upstream;
// the gateway forwards the resolved user in a header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// encoding should rarely fail; log and move on
		h.logger.Error("encode response error", slog.Any("error", err))
	}
}
