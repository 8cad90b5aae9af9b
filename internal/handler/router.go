package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/coatings-pipeline-go/internal/infra/observability"
	"github.com/boddenberg/coatings-pipeline-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// RouterOptions carries the HTTP-surface settings.
type RouterOptions struct {
	AuthRequired       bool
	CORSAllowedOrigins []string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc *service.Pipeline, verifier *service.TokenVerifier, metrics *observability.Metrics, logger *zap.Logger, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(RequestIDHeader)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", salesRepHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc))
	r.Get("/readyz", readyzHandler(svc))
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(ActorMiddleware(verifier, opts.AuthRequired, logger))

		r.Get("/metrics/pipeline", pipelineMetricsHandler(svc))

		r.Route("/leads", func(r chi.Router) {
			r.Post("/", createLeadHandler(svc, logger))
			r.Get("/", listLeadsHandler(svc, logger))
			r.Get("/stats", leadStatsHandler(svc, logger))

			r.Route("/{leadId}", func(r chi.Router) {
				r.Get("/", getLeadHandler(svc, logger))
				r.Patch("/", updateLeadHandler(svc, logger))
				r.Get("/activities", listActivitiesHandler(svc, logger))
				r.Post("/activities", logActivityHandler(svc, logger))
				r.Post("/temperature", updateTemperatureHandler(svc, logger))
				r.Post("/stage", moveStageHandler(svc, logger))
				r.Post("/won", markWonHandler(svc, logger))
				r.Post("/lost", markLostHandler(svc, logger))
				r.Post("/reactivate", reactivateHandler(svc, logger))
			})
		})
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler(svc *service.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"status":    "healthy",
				"checkedAt": time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		writeJSON(w, http.StatusOK, svc.Health(r.Context()))
	}
}

// readyzHandler reports 503 while the store is unreachable.
func readyzHandler(svc *service.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc != nil {
			if h := svc.Health(r.Context()); h.Status != "healthy" {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func pipelineMetricsHandler(svc *service.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.MetricsSnapshot())
	}
}
