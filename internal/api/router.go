package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/davidahmann/lawgate/internal/auth"
	"github.com/davidahmann/lawgate/internal/logging"
)

// NewRouter mounts the API. Everything under /api requires an identity from
// a; limiter may be nil.
func NewRouter(h *Handler, a auth.Authenticator, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(logging.OrNop(h.Log)))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)

	r.Route("/api", func(api chi.Router) {
		api.Use(authenticate(a))
		if limiter != nil {
			api.Use(limiter.Middleware)
		}

		api.Route("/lawbook", func(lb chi.Router) {
			lb.Post("/versions", h.CreateLawbookVersion)
			lb.Get("/versions", h.ListLawbookVersions)
			lb.Post("/activate", h.ActivateLawbook)
			lb.Get("/active", h.ActiveLawbook)
		})
		api.Post("/drafts/{schema}/validate", h.ValidateDraft)
		api.Post("/drafts/{schema}", h.SubmitDraft)
		api.Post("/guardrails/{kind}", h.EvaluateGuardrail)
		api.Post("/playbooks/runs", h.StartRun)
		api.Post("/canonical/hash", h.CanonicalHash)
	})
	return r
}
