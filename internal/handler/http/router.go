package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/campaign-engine/internal/service"
	"github.com/utafrali/campaign-engine/pkg/health"
	"github.com/utafrali/campaign-engine/pkg/middleware"
)

// NewRouter creates a chi router with all campaign engine routes registered.
func NewRouter(
	campaignService *service.CampaignService,
	discountService *service.DiscountService,
	usageService *service.UsageService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS)
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("campaign-engine"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	campaignHandler := NewCampaignHandler(campaignService, logger)
	discountHandler := NewDiscountHandler(discountService, usageService, logger)

	r.Route("/api/v1/campaigns", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", campaignHandler.CreateCampaign)
		r.Get("/", campaignHandler.ListCampaigns)

		// Active listing must come before /{id} to avoid route conflict.
		r.Get("/active", campaignHandler.GetActiveCampaigns)

		r.Get("/{id}", campaignHandler.GetCampaign)
		r.Put("/{id}", campaignHandler.UpdateCampaign)
		r.Post("/{id}/deactivate", campaignHandler.DeactivateCampaign)
		r.Delete("/{id}", campaignHandler.DeleteCampaign)
	})

	r.Route("/api/v1/products/{productId}", func(r chi.Router) {
		r.Get("/campaigns", discountHandler.GetProductCampaigns)
		r.Get("/discount", discountHandler.GetProductDiscount)
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/price", discountHandler.PriceCart)
	})

	r.Route("/api/v1/usage", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(UserIDFromHeader)

		r.Post("/validate", discountHandler.ValidateUsage)
		r.Post("/record", discountHandler.RecordUsage)
		r.Post("/checkout/validate", discountHandler.ValidateCheckout)
	})

	return r
}
