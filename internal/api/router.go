package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter assembles the chi router and middleware stack: RequestID,
// RealIP, Logger, Recoverer, CORS, body limit, then per-group JSON
// enforcement and timeouts.
func NewRouter(h *Handler, logger *logrus.Logger, bodyLimit int64, waitModeTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Logger(logger))
	r.Use(middleware.Recoverer)
	r.Use(CORS)
	r.Use(BodyLimit(bodyLimit))

	r.Route("/health", func(r chi.Router) {
		r.Get("/ping", h.Ping)
		r.Get("/", h.HealthAll)
		r.Get("/database", h.HealthDatabase)
		r.Get("/redis", h.HealthRedis)
		r.Get("/workers", h.HealthWorkers)
		r.Get("/info", h.HealthInfo)
	})

	r.Route("/languages", func(r chi.Router) {
		r.Get("/", h.ListLanguages)
		r.Get("/{id}", h.GetLanguage)
	})

	r.Route("/submissions", func(r chi.Router) {
		r.Use(JSONContentType)
		r.Use(middleware.Timeout(waitModeTimeout + 15*time.Second))

		r.Post("/", h.CreateSubmission)
		r.Post("/batch", h.CreateBatch)
		r.Get("/", h.ListSubmissions)
		r.Get("/batch", h.GetBatch)
		r.Get("/{id}", h.GetSubmission)
		r.Delete("/{id}", h.DeleteSubmission)
	})

	return r
}
