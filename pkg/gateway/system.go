package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/pool"
	"github.com/cortexops/gateway/pkg/scheduler"
	"github.com/cortexops/gateway/pkg/types"
)

// serveLocal dispatches a system-plane prefix handled in-process.
func (s *Server) serveLocal(w http.ResponseWriter, r *http.Request, prefix, rest string) {
	tail := strings.TrimPrefix(rest, prefix)
	tail = strings.Trim(tail, "/")

	switch prefix {
	case "tasks":
		s.serveTasks(w, r, tail)
	case "services":
		s.serveServices(w, r, tail)
	case "monitoring":
		s.serveMonitoring(w, r, tail)
	case "pools":
		s.servePools(w, r, tail)
	case "config":
		s.serveConfig(w, r)
	default:
		apierror.Write(w, apierror.Newf(apierror.KindNotFound, "unknown local prefix %q", prefix), RequestID(r.Context()))
	}
}

// taskView is the JSON shape of a scheduler task
type taskView struct {
	ID          string      `json:"task_id"`
	Name        string      `json:"name"`
	Priority    string      `json:"priority"`
	Status      string      `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	RetryCount  int         `json:"retry_count"`
	MaxRetries  int         `json:"max_retries"`
	Result      interface{} `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func viewOf(t *types.Task) taskView {
	v := taskView{
		ID:         t.ID,
		Name:       t.Name,
		Priority:   t.Priority.String(),
		Status:     string(t.Status),
		CreatedAt:  t.CreatedAt,
		RetryCount: t.RetryCount,
		MaxRetries: t.MaxRetries,
		Result:     t.Result,
		Error:      t.Error,
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		v.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		v.CompletedAt = &completed
	}
	return v
}

// namedTask resolves a submittable maintenance task by name. Tasks
// close over server components, so only catalogued names are runnable.
func (s *Server) namedTask(name string) (types.TaskFunc, bool) {
	switch name {
	case "registry_health_check":
		return func(ctx context.Context) (interface{}, error) {
			return s.registry.CheckAll(ctx), nil
		}, true
	case "bridge_reconcile":
		return func(ctx context.Context) (interface{}, error) {
			drifted, err := s.bridge.Reconcile()
			if err != nil {
				return nil, err
			}
			return map[string]int{"drifted": drifted}, nil
		}, true
	}
	return nil, false
}

func parsePriority(name string) (types.TaskPriority, bool) {
	switch name {
	case "urgent":
		return types.PriorityUrgent, true
	case "high":
		return types.PriorityHigh, true
	case "", "normal":
		return types.PriorityNormal, true
	case "low":
		return types.PriorityLow, true
	}
	return 0, false
}

func (s *Server) serveTasks(w http.ResponseWriter, r *http.Request, tail string) {
	switch {
	case tail == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.scheduler.Stats())

	case tail == "" && r.Method == http.MethodPost:
		var req struct {
			Name       string `json:"name"`
			Priority   string `json:"priority"`
			MaxRetries int    `json:"max_retries"`
			TimeoutSec int    `json:"timeout_sec"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid json body", err), RequestID(r.Context()))
			return
		}
		fn, ok := s.namedTask(req.Name)
		if !ok {
			apierror.Write(w, apierror.Newf(apierror.KindBadRequest, "unknown task %q", req.Name), RequestID(r.Context()))
			return
		}
		priority, ok := parsePriority(req.Priority)
		if !ok {
			apierror.Write(w, apierror.Newf(apierror.KindBadRequest, "unknown priority %q", req.Priority), RequestID(r.Context()))
			return
		}
		opts := []scheduler.Option{scheduler.WithPriority(priority)}
		if req.MaxRetries > 0 {
			opts = append(opts, scheduler.WithMaxRetries(req.MaxRetries))
		}
		if req.TimeoutSec > 0 {
			opts = append(opts, scheduler.WithTimeout(time.Duration(req.TimeoutSec)*time.Second))
		}
		task, err := s.scheduler.Submit(req.Name, fn, opts...)
		if err != nil {
			apierror.Write(w, apierror.RateLimited("task queue is full", time.Now().Add(time.Second)), RequestID(r.Context()))
			return
		}
		writeJSON(w, http.StatusAccepted, viewOf(task))

	case tail != "" && r.Method == http.MethodGet:
		task, err := s.scheduler.Get(tail)
		if err != nil {
			apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "task lookup failed", err), RequestID(r.Context()))
			return
		}
		writeJSON(w, http.StatusOK, viewOf(task))

	case tail != "" && r.Method == http.MethodDelete:
		if err := s.scheduler.Cancel(tail); err != nil {
			apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "cancel failed", err), RequestID(r.Context()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"task_id": tail, "status": "cancelled"})

	default:
		apierror.Write(w, apierror.New(apierror.KindNotFound, "no such task operation"), RequestID(r.Context()))
	}
}

func (s *Server) serveServices(w http.ResponseWriter, r *http.Request, tail string) {
	switch {
	case tail == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())

	case tail == "" && r.Method == http.MethodPost:
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

	default:
		parts := strings.SplitN(tail, "/", 3)

		switch {
		case len(parts) == 1 && r.Method == http.MethodGet:
			instances, err := s.registry.Get(parts[0])
			if err != nil {
				apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "service lookup failed", err), RequestID(r.Context()))
				return
			}
			writeJSON(w, http.StatusOK, instances)

		case len(parts) == 2 && r.Method == http.MethodDelete:
			if err := s.bridge.Deregister(parts[0], parts[1]); err != nil {
				apierror.Write(w, apierror.Wrap(apierror.KindNotFound, "deregister failed", err), RequestID(r.Context()))
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"service": parts[0], "instance": parts[1], "status": "deregistered"})

		case len(parts) == 3 && parts[2] == "status" && r.Method == http.MethodPut:
			var body struct {
				Status types.InstanceStatus `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid json body", err), RequestID(r.Context()))
				return
			}
			if err := s.bridge.ReportStatus(parts[0], parts[1], body.Status); err != nil {
				apierror.Write(w, err, RequestID(r.Context()))
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"service": parts[0], "instance": parts[1], "status": string(body.Status)})

		default:
			apierror.Write(w, apierror.New(apierror.KindNotFound, "no such service operation"), RequestID(r.Context()))
		}
	}
}

func (s *Server) serveMonitoring(w http.ResponseWriter, r *http.Request, tail string) {
	if r.Method != http.MethodGet {
		apierror.Write(w, apierror.New(apierror.KindNotFound, "no such monitoring operation"), RequestID(r.Context()))
		return
	}

	switch tail {
	case "", "stats":
		writeJSON(w, http.StatusOK, s.tracker.Stats())
	case "requests":
		writeJSON(w, http.StatusOK, s.tracker.InFlight())
	case "errors":
		writeJSON(w, http.StatusOK, s.tracker.Errors())
	case "streams":
		writeJSON(w, http.StatusOK, s.hub.List())
	case "pools":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"stats":  s.pools.Stats(),
			"health": s.pools.Health(),
		})
	default:
		apierror.Write(w, apierror.Newf(apierror.KindNotFound, "unknown monitoring view %q", tail), RequestID(r.Context()))
	}
}

func (s *Server) servePools(w http.ResponseWriter, r *http.Request, tail string) {
	switch {
	case tail == "" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"stats":  s.pools.Stats(),
			"health": s.pools.Health(),
		})

	case tail != "" && r.Method == http.MethodPut:
		var body struct {
			Workers    int `json:"workers"`
			QueueBound int `json:"queue_bound"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apierror.Write(w, apierror.Wrap(apierror.KindBadRequest, "invalid json body", err), RequestID(r.Context()))
			return
		}
		if err := s.pools.Resize(tail, body.Workers, body.QueueBound); err != nil {
			kind := apierror.KindBadRequest
			if errors.Is(err, pool.ErrPoolNotFound) {
				kind = apierror.KindNotFound
			}
			apierror.Write(w, apierror.Wrap(kind, "resize failed", err), RequestID(r.Context()))
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"pool":        tail,
			"workers":     body.Workers,
			"queue_bound": body.QueueBound,
		})

	default:
		apierror.Write(w, apierror.New(apierror.KindNotFound, "no such pool operation"), RequestID(r.Context()))
	}
}

// serveConfig returns the effective configuration with secrets omitted.
func (s *Server) serveConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"port":                  s.cfg.Port,
		"health_check_interval": s.cfg.HealthCheckInterval.String(),
		"proxy_timeout":         s.cfg.ProxyTimeout.String(),
		"proxy_max_retries":     s.cfg.ProxyMaxRetries,
		"task_pool_size":        s.cfg.TaskPoolSize,
		"queue_size":            s.cfg.QueueSize,
		"stream_timeout":        s.cfg.StreamTimeout.String(),
		"stream_keepalive":      s.cfg.StreamKeepalive.String(),
		"routes":                s.cfg.Routes,
	})
}

// writeJSON encodes the payload with the given status.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
