package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/otahub/otahub/internal/api/middleware"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit // optional; nil disables rate limiting

	HealthHandler http.HandlerFunc

	CreateJob   http.HandlerFunc
	ListJobs    http.HandlerFunc
	GetJob      http.HandlerFunc
	DispatchJob http.HandlerFunc

	ListArtifacts http.HandlerFunc
	GetArtifact   http.HandlerFunc
}

// NewRouter builds the chi router with the middleware stack and all routes.
// Artifact reads and health stay public: devices fetch firmware with no
// operator token, and the health probe has none to present.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/healthz", deps.HealthHandler)
	r.Get("/ota/artifacts", deps.ListArtifacts)
	r.Get("/ota/artifacts/{name}", deps.GetArtifact)

	// Control-plane routes gated behind remote token validation
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/ota/jobs", deps.CreateJob)
		r.Get("/ota/jobs", deps.ListJobs)
		r.Get("/ota/jobs/{id}", deps.GetJob)
		r.Post("/ota/jobs/{id}/dispatch", deps.DispatchJob)
	})

	return r
}
