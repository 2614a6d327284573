package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/campaign-engine/internal/repository"
	"github.com/utafrali/campaign-engine/internal/service"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
	"github.com/utafrali/campaign-engine/pkg/validator"
)

// CampaignHandler handles HTTP requests for campaign management endpoints.
type CampaignHandler struct {
	service *service.CampaignService
	logger  *slog.Logger
}

// NewCampaignHandler creates a new campaign HTTP handler.
func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateCampaignRequest is the JSON request body for creating a campaign.
type CreateCampaignRequest struct {
	Name            string   `json:"name" validate:"required,min=1,max=255"`
	Label           string   `json:"label" validate:"max=50"`
	Description     string   `json:"description"`
	TargetType      string   `json:"target_type" validate:"required,oneof=product category all"`
	DiscountType    string   `json:"discount_type" validate:"required,oneof=percent amount free_shipping points"`
	DiscountValue   int64    `json:"discount_value" validate:"gte=0"`
	MinimumPurchase int64    `json:"minimum_purchase" validate:"gte=0"`
	UsageLimit      *int     `json:"usage_limit" validate:"omitempty,gt=0"`
	UserLimit       *int     `json:"user_limit" validate:"omitempty,gt=0"`
	StartDate       string   `json:"start_date" validate:"required"`
	EndDate         string   `json:"end_date" validate:"required"`
	IsActive        *bool    `json:"is_active"`
	ProductTargets  []string `json:"product_targets"`
	CategoryTargets []string `json:"category_targets"`
}

// UpdateCampaignRequest is the JSON request body for updating a campaign.
type UpdateCampaignRequest struct {
	Name            *string  `json:"name" validate:"omitempty,min=1,max=255"`
	Label           *string  `json:"label" validate:"omitempty,max=50"`
	Description     *string  `json:"description"`
	TargetType      *string  `json:"target_type" validate:"omitempty,oneof=product category all"`
	DiscountType    *string  `json:"discount_type" validate:"omitempty,oneof=percent amount free_shipping points"`
	DiscountValue   *int64   `json:"discount_value" validate:"omitempty,gte=0"`
	MinimumPurchase *int64   `json:"minimum_purchase" validate:"omitempty,gte=0"`
	UsageLimit      *int     `json:"usage_limit" validate:"omitempty,gt=0"`
	UserLimit       *int     `json:"user_limit" validate:"omitempty,gt=0"`
	StartDate       *string  `json:"start_date"`
	EndDate         *string  `json:"end_date"`
	IsActive        *bool    `json:"is_active"`
	ProductTargets  []string `json:"product_targets"`
	CategoryTargets []string `json:"category_targets"`
}

// --- Response envelope ---

type response struct {
	Data  any            `json:"data,omitempty"`
	Error *errorResponse `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type listResponse struct {
	Data       any `json:"data"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// --- Handlers ---

// CreateCampaign handles POST /api/v1/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req CreateCampaignRequest
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

	startDate, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "start_date must be in RFC3339 format"},
		})
		return
	}

	endDate, err := time.Parse(time.RFC3339, req.EndDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "end_date must be in RFC3339 format"},
		})
		return
	}

	input := &service.CreateCampaignInput{
		Name:            req.Name,
		Label:           req.Label,
		Description:     req.Description,
		TargetType:      req.TargetType,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MinimumPurchase: req.MinimumPurchase,
		UsageLimit:      req.UsageLimit,
		UserLimit:       req.UserLimit,
		StartDate:       startDate,
		EndDate:         endDate,
		IsActive:        req.IsActive,
		ProductTargets:  req.ProductTargets,
		CategoryTargets: req.CategoryTargets,
	}

	campaign, err := h.service.CreateCampaign(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: campaign})
}

// ListCampaigns handles GET /api/v1/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := repository.CampaignFilter{
		Page:    1,
		PerPage: 20,
	}

	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil && page > 0 {
			filter.Page = page
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if perPage, err := strconv.Atoi(v); err == nil && perPage > 0 && perPage <= 100 {
			filter.PerPage = perPage
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = &v
	}
	if v := r.URL.Query().Get("target_type"); v != "" {
		filter.TargetType = &v
	}

	campaigns, total, err := h.service.ListCampaigns(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	totalPages := total / filter.PerPage
	if total%filter.PerPage > 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:       campaigns,
		TotalCount: total,
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		TotalPages: totalPages,
	})
}

// GetActiveCampaigns handles GET /api/v1/campaigns/active
func (h *CampaignHandler) GetActiveCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.GetActiveCampaigns(r.Context())
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaigns})
}

// GetCampaign handles GET /api/v1/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaign})
}

// UpdateCampaign handles PUT /api/v1/campaigns/{id}
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	var req UpdateCampaignRequest
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

	input := &service.UpdateCampaignInput{
		Name:            req.Name,
		Label:           req.Label,
		Description:     req.Description,
		TargetType:      req.TargetType,
		DiscountType:    req.DiscountType,
		DiscountValue:   req.DiscountValue,
		MinimumPurchase: req.MinimumPurchase,
		UsageLimit:      req.UsageLimit,
		UserLimit:       req.UserLimit,
		IsActive:        req.IsActive,
		ProductTargets:  req.ProductTargets,
		CategoryTargets: req.CategoryTargets,
	}

	if req.StartDate != nil {
		startDate, err := time.Parse(time.RFC3339, *req.StartDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "start_date must be in RFC3339 format"},
			})
			return
		}
		input.StartDate = &startDate
	}
	if req.EndDate != nil {
		endDate, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, response{
				Error: &errorResponse{Code: "INVALID_INPUT", Message: "end_date must be in RFC3339 format"},
			})
			return
		}
		input.EndDate = &endDate
	}

	campaign, err := h.service.UpdateCampaign(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaign})
}

// DeactivateCampaign handles POST /api/v1/campaigns/{id}/deactivate
func (h *CampaignHandler) DeactivateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	campaign, err := h.service.DeactivateCampaign(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, response{Data: campaign})
}

// DeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "campaign id is required"},
		})
		return
	}

	if err := h.service.DeleteCampaign(r.Context(), id); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// --- Helpers ---

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.Status, response{
			Error: &errorResponse{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	code := "INTERNAL_ERROR"
	message := "an internal error occurred"

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code = "NOT_FOUND"
		message = "resource not found"
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code = "ALREADY_EXISTS"
		message = "resource already exists"
		status = http.StatusConflict
	case errors.Is(err, apperrors.ErrInvalidInput):
		code = "INVALID_INPUT"
		message = err.Error()
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrNotEffective):
		code = "NOT_EFFECTIVE"
		message = "campaign is not currently effective"
		status = http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrLimitExceeded):
		code = "LIMIT_EXCEEDED"
		message = "usage limit exceeded"
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeJSON(w, status, response{
		Error: &errorResponse{Code: code, Message: message},
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	writeJSON(w, http.StatusBadRequest, response{
		Error: &errorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
