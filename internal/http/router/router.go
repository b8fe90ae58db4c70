package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/activity-logging-gateway/internal/health"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/handler"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/middleware"
	"github.com/sandeepkv93/activity-logging-gateway/internal/http/response"
	"github.com/sandeepkv93/activity-logging-gateway/internal/security"
)

const maxBodyBytes = 1 << 20

type Dependencies struct {
	ClientHandler   *handler.ClientHandler
	MeHandler       *handler.MeHandler
	RealtimeHandler *handler.RealtimeHandler
	JWTManager      *security.JWTManager
	CORSOrigins     []string
	IngestLimiter   IngestRateLimiterFunc
	Readiness       *health.ProbeRunner
	EnableOTelHTTP  bool
}

// IngestRateLimiterFunc guards the client capture endpoints.
type IngestRateLimiterFunc func(http.Handler) http.Handler

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(maxBodyBytes))

	ingest := dep.IngestLimiter
	if ingest == nil {
		ingest = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(dep.JWTManager))

		r.Route("/clients/{client_id}", func(r chi.Router) {
			r.Post("/session", dep.ClientHandler.OpenSession)
			r.Delete("/session", dep.ClientHandler.CloseSession)
			r.Post("/flush", dep.ClientHandler.Flush)
			r.Group(func(r chi.Router) {
				r.Use(ingest)
				r.Post("/events", dep.ClientHandler.Events)
				r.Post("/navigations", dep.ClientHandler.Navigate)
				r.Post("/activities", dep.ClientHandler.LogActivity)
				r.Post("/logs/ai-prompts", dep.ClientHandler.LogAIPrompt)
				r.Post("/logs/emails", dep.ClientHandler.LogEmail)
				r.Post("/logs/files", dep.ClientHandler.LogFileUpload)
			})
		})

		r.Get("/me/sessions", dep.MeHandler.Sessions)
		r.Delete("/me/sessions/{session_id}", dep.MeHandler.RevokeSession)
		r.Get("/me/activities", dep.MeHandler.Activities)
		r.Get("/realtime", dep.RealtimeHandler.Stream)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
