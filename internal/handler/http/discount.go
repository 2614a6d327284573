package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/campaign-engine/internal/domain"
	"github.com/utafrali/campaign-engine/internal/service"
	"github.com/utafrali/campaign-engine/pkg/validator"
)

// DiscountHandler handles HTTP requests for pricing and usage endpoints.
type DiscountHandler struct {
	discounts *service.DiscountService
	usage     *service.UsageService
	logger    *slog.Logger
}

// NewDiscountHandler creates a new discount HTTP handler.
func NewDiscountHandler(discounts *service.DiscountService, usage *service.UsageService, logger *slog.Logger) *DiscountHandler {
	return &DiscountHandler{
		discounts: discounts,
		usage:     usage,
		logger:    logger,
	}
}

// --- Request DTOs ---

// CartItemRequest is one line of a cart pricing request.
type CartItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
}

// PriceCartRequest is the JSON request body for pricing a cart. UserID is
// optional; anonymous carts are priced the same way.
type PriceCartRequest struct {
	Items  []CartItemRequest `json:"items" validate:"required,min=1,dive"`
	UserID string            `json:"user_id"`
}

// RecordUsageRequest is the JSON request body for recording a campaign use.
type RecordUsageRequest struct {
	CampaignID string `json:"campaign_id" validate:"required"`
}

// ValidateCheckoutRequest is the JSON request body for validating the
// campaigns applicable to a checkout cart.
type ValidateCheckoutRequest struct {
	Items []CartItemRequest `json:"items" validate:"required,min=1,dive"`
}

// --- Handlers ---

// GetProductCampaigns handles GET /api/v1/products/{productId}/campaigns
func (h *DiscountHandler) GetProductCampaigns(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "product id is required"},
		})
		return
	}

	campaigns, err := h.discounts.GetCampaignsForProduct(r.Context(), productID)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaigns})
}

// GetProductDiscount handles GET /api/v1/products/{productId}/discount
func (h *DiscountHandler) GetProductDiscount(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	if productID == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "product id is required"},
		})
		return
	}

	result, err := h.discounts.CalculateProductDiscount(r.Context(), productID)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: result})
}

// PriceCart handles POST /api/v1/cart/price
func (h *DiscountHandler) PriceCart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req PriceCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	summary, err := h.discounts.ApplyCampaignsToCart(r.Context(), items, req.UserID)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: summary})
}

// ValidateUsage handles POST /api/v1/usage/validate
func (h *DiscountHandler) ValidateUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	var req RecordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.usage.ValidateUsage(r.Context(), req.CampaignID, userID); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: map[string]bool{"valid": true}})
}

// RecordUsage handles POST /api/v1/usage/record
func (h *DiscountHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	var req RecordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	if err := h.usage.RecordUsage(r.Context(), req.CampaignID, userID); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: map[string]bool{"recorded": true}})
}

// ValidateCheckout handles POST /api/v1/usage/checkout/validate
func (h *DiscountHandler) ValidateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	var req ValidateCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	items := make([]domain.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	result, err := h.usage.ValidateCheckout(r.Context(), userID, items)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: result})
}
