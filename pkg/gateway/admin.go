package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/types"
)

// handleListServices returns all registered services and instances.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

// handleGetService returns the instances of one service.
func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	instances, err := s.registry.Get(name)
	if err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "service lookup failed", err), RequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, instances)
}

// handleRegister registers a new backend instance through the bridge.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req types.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid json body", err), RequestID(r.Context()))
		return
	}
	inst, err := s.bridge.Register(&req)
	if err != nil {
		apierror.Write(w, err, RequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

// handleDeregister removes an instance.
func (s *Server) handleDeregister(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	instance := chi.URLParam(r, "instance")
	if err := s.bridge.Deregister(name, instance); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "deregister failed", err), RequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"service": name, "instance": instance, "status": "deregistered"})
}

// handleHealth reports gateway liveness plus component summaries.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"registry":  s.registry.Stats(),
		"scheduler": s.scheduler.Stats(),
		"pools":     s.pools.Health(),
		"streams":   s.hub.Count(),
	})
}

// handleRegistryStatus returns the registry counters.
func (s *Server) handleRegistryStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// handleHealthCheck runs one immediate probe cycle across all
// instances and returns the per-instance outcome.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	writeJSON(w, http.StatusOK, s.registry.CheckAll(ctx))
}

// handleCreateStream opens a new SSE stream on behalf of a backend.
func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ServiceID string `json:"service_id"`
		UserID    string `json:"user_id,omitempty"`
		ToolID    string `json:"tool_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid json body", err), RequestID(r.Context()))
		return
	}
	if body.ServiceID == "" {
		apierror.Write(w, apierror.New(apierror.KindBadRequest, "service_id is required"), RequestID(r.Context()))
		return
	}
	id := s.hub.CreateStream(body.ServiceID, body.UserID, body.ToolID)
	writeJSON(w, http.StatusCreated, map[string]string{"stream_id": id})
}

// handleSendEvent enqueues one event on a stream.
func (s *Server) handleSendEvent(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "id")
	var body struct {
		Type types.EventType        `json:"type"`
		Data map[string]interface{} `json:"data,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid json body", err), RequestID(r.Context()))
		return
	}
	if !s.hub.SendEvent(streamID, types.StreamEvent{Type: body.Type, Data: body.Data}) {
		apierror.Write(w, apierror.Newf(apierror.KindBadRequest,
			"stream %s is not accepting events", streamID), RequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"stream_id": streamID})
}

// handleCloseStream completes a stream.
func (s *Server) handleCloseStream(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "id")
	if err := s.hub.CloseStream(streamID); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "close failed", err), RequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stream_id": streamID, "status": "completed"})
}

// handleSubscribe attaches the caller to a stream as an SSE consumer.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "id")
	if err := s.hub.Serve(w, r, streamID); err != nil {
		apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "subscribe failed", err), RequestID(r.Context()))
	}
}
