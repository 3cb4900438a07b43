package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/consultra/engine/internal/api/handlers"
	mw "github.com/consultra/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret         []byte
	HealthHandler      *handlers.HealthHandler
	EngagementsHandler *handlers.EngagementsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	r.Get("/healthz", dep.HealthHandler.Liveness)
	r.Get("/readyz", dep.HealthHandler.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			protected.Route("/engagements", func(er chi.Router) {
				er.Get("/", dep.EngagementsHandler.List)
				er.Post("/", dep.EngagementsHandler.Start)
				er.Get("/{id}", dep.EngagementsHandler.Get)
				er.Post("/{id}/execute", dep.EngagementsHandler.Execute)
				er.Get("/{id}/progress", dep.EngagementsHandler.Progress)
				er.Get("/{id}/report", dep.EngagementsHandler.Report)
				er.Post("/{id}/cancel", dep.EngagementsHandler.Cancel)
			})
		})
	})

	return r
}
