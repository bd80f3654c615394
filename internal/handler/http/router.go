package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/motorline/catalog-service/internal/service"
	"github.com/motorline/catalog-service/pkg/health"
	"github.com/motorline/catalog-service/pkg/middleware"
)

const serviceName = "catalog-service"

// NewRouter creates a chi router with all catalog routes registered. Reads
// are public; every mutation requires a valid bearer token, with the
// fine-grained policy enforced inside the service.
func NewRouter(
	catalogService *service.CatalogService,
	healthHandler *health.Handler,
	validateToken middleware.TokenValidator,
	corsConfig middleware.CORSConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	carHandler := NewCarHandler(catalogService, logger)
	reviewHandler := NewReviewHandler(catalogService, logger)

	r.Route("/api/v1/cars", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		// Public reads. A valid token still attaches the caller identity so
		// request logs carry it.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(validateToken))
			r.Use(middleware.RequestLogger(logger))

			r.Get("/", carHandler.ListCars)
			r.Get("/{id}", carHandler.GetCar)
		})

		// Authenticated mutations.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(validateToken))
			r.Use(middleware.RequestLogger(logger))

			r.Post("/", carHandler.CreateCar)
			r.Patch("/{id}", carHandler.UpdateCar)
			r.Delete("/{id}", carHandler.DeleteCar)
			r.Put("/{id}/status", carHandler.SetStatus)

			r.Post("/{id}/reviews", reviewHandler.AddReview)
			r.Patch("/{id}/reviews/{reviewId}", reviewHandler.UpdateReview)
			r.Delete("/{id}/reviews/{reviewId}", reviewHandler.DeleteReview)
		})
	})

	return r
}
