package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/metrics"
)

// router builds the chi mux: three API planes with their credential
// verifiers plus the /gateway introspection surface.
func (s *Server) router() http.Handler {
	limiter := newIPLimiter(50, 100)

	r := chi.NewRouter()
	r.Use(limiter.middleware)

	r.Route("/frontend", func(r chi.Router) {
		r.Use(s.tracking("frontend"))
		r.Use(s.userAuth)
		r.Handle("/*", s.planeHandler("frontend", &s.cfg.Routes.Frontend))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.tracking("v1"))
		r.Use(s.apiKeyAuth)
		r.Handle("/*", s.planeHandler("v1", &s.cfg.Routes.V1))
	})

	r.Route("/system", func(r chi.Router) {
		r.Use(s.tracking("system"))
		r.Use(s.internalAuth)
		r.Handle("/*", s.planeHandler("system", &s.cfg.Routes.System))
	})

	r.Route("/gateway", func(r chi.Router) {
		r.Use(s.tracking("gateway"))

		// Liveness, metrics, and stream consumption carry no service
		// credential; stream ids act as capabilities.
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", metrics.Handler())
		r.Get("/streams/{id}", s.handleSubscribe)

		r.Group(func(r chi.Router) {
			r.Use(s.internalAuth)
			r.Get("/services", s.handleListServices)
			r.Get("/services/{name}", s.handleGetService)
			r.Post("/services/register", s.handleRegister)
			r.Delete("/services/{name}/{instance}", s.handleDeregister)
			r.Get("/registry/status", s.handleRegistryStatus)
			r.Post("/services/batch/health-check", s.handleHealthCheck)
			r.Post("/streams", s.handleCreateStream)
			r.Post("/streams/{id}/events", s.handleSendEvent)
			r.Delete("/streams/{id}", s.handleCloseStream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apierror.Write(w, apierror.New(apierror.KindNotFound, "unknown path"), RequestID(req.Context()))
	})

	return r
}
