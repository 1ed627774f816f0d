package gateway

import (
	"net/http"
	"strings"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/config"
	"github.com/cortexops/gateway/pkg/metrics"
	"github.com/cortexops/gateway/pkg/types"
)

// planeHandler resolves the route prefix, authorizes the caller, and
// forwards to a healthy backend instance. System-plane prefixes marked
// local are dispatched in-process instead.
func (s *Server) planeHandler(plane string, table *config.PlaneRoutes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/"+plane)
		rest = strings.TrimPrefix(rest, "/")
		prefix := rest
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			prefix = rest[:idx]
		}

		route := table.Lookup(prefix)
		if route == nil {
			apierror.Write(w, apierror.Newf(apierror.KindNotFound, "unknown route prefix %q", prefix), RequestID(r.Context()))
			return
		}

		// The system plane is governed as one resource: internal tokens
		// carry system:*, not per-prefix grants.
		permPrefix := prefix
		if plane == "system" {
			permPrefix = "system"
		}

		// Login and registration run before the caller has any
		// credential, so they skip the permission check too.
		if !(plane == "frontend" && exemptFromUserAuth(r.URL.Path)) {
			if err := s.authorize(r, requiredPermission(permPrefix, r.Method)); err != nil {
				apierror.Write(w, err, RequestID(r.Context()))
				return
			}
		}

		if route.Mode == config.ModeLocal {
			s.serveLocal(w, r, prefix, rest)
			return
		}

		s.forward(w, r, table, route, rest)
	}
}

// forward selects an instance and proxies the request, buffered or
// streamed depending on the negotiated content type.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, table *config.PlaneRoutes, route *config.Route, rest string) {
	strategy := table.Strategy
	if strategy == "" {
		strategy = types.StrategyRoundRobin
	}

	inst, err := s.registry.Select(route.Service, strategy)
	if err != nil {
		metrics.UpstreamAttempts.WithLabelValues(route.Service, "no_instance").Inc()
		apierror.Write(w, apierror.Wrap(apierror.KindUpstreamUnavailable,
			"no healthy instance of "+route.Service, err), RequestID(r.Context()))
		return
	}

	target := inst.BaseURL() + table.PathPrefix + "/" + rest

	s.registry.IncConnections(inst.ServiceName, inst.InstanceID)
	defer s.registry.DecConnections(inst.ServiceName, inst.InstanceID)

	w.Header().Set("X-Service-Name", inst.ServiceName)

	if wantsStream(r) {
		if err := s.proxy.ForwardStream(r.Context(), w, r, target); err != nil {
			metrics.UpstreamAttempts.WithLabelValues(route.Service, "error").Inc()
			apierror.Write(w, err, RequestID(r.Context()))
			return
		}
		metrics.UpstreamAttempts.WithLabelValues(route.Service, "ok").Inc()
		return
	}

	result, err := s.proxy.Forward(r.Context(), r, target)
	if err != nil {
		metrics.UpstreamAttempts.WithLabelValues(route.Service, "error").Inc()
		apierror.Write(w, err, RequestID(r.Context()))
		return
	}
	metrics.UpstreamAttempts.WithLabelValues(route.Service, "ok").Inc()

	for key, values := range result.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(result.StatusCode)
	if _, err := w.Write(result.Body); err != nil {
		return
	}
}

// wantsStream reports whether the client negotiated an SSE response.
func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
