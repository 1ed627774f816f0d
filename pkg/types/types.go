package types

import (
	"context"
	"fmt"
	"time"
)

// ServiceInstance represents one registered backend instance.
// Identity is the (ServiceName, InstanceID) pair.
type ServiceInstance struct {
	ServiceName     string            `json:"service_name"`
	InstanceID      string            `json:"instance_id"`
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Endpoints       map[string]string `json:"endpoints,omitempty"` // name -> path
	Metadata        map[string]string `json:"metadata,omitempty"`
	Weight          int               `json:"weight"`
	Connections     int64             `json:"connections"`
	Status          InstanceStatus    `json:"status"`
	HealthCheckPath string            `json:"health_check_path,omitempty"`
	LastHealthCheck time.Time         `json:"last_health_check"`
	RegisterTime    time.Time         `json:"register_time"`
}

// Address returns the host:port pair for the instance.
func (si *ServiceInstance) Address() string {
	return fmt.Sprintf("%s:%d", si.Host, si.Port)
}

// BaseURL returns the http base URL for the instance.
func (si *ServiceInstance) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", si.Host, si.Port)
}

// HealthCheckURL returns the full probe URL, or "" when no probe path is set.
func (si *ServiceInstance) HealthCheckURL() string {
	if si.HealthCheckPath == "" {
		return ""
	}
	return si.BaseURL() + si.HealthCheckPath
}

// Key returns the unique identity of the instance.
func (si *ServiceInstance) Key() string {
	return si.ServiceName + "/" + si.InstanceID
}

// InstanceStatus represents the lifecycle state of a service instance
type InstanceStatus string

const (
	InstanceStarting  InstanceStatus = "starting"
	InstanceHealthy   InstanceStatus = "healthy"
	InstanceUnhealthy InstanceStatus = "unhealthy"
	InstanceStopping  InstanceStatus = "stopping"
	InstanceDown      InstanceStatus = "down"
)

// Strategy selects the load-balancing algorithm for a service
type Strategy string

const (
	StrategyRoundRobin         Strategy = "round_robin"
	StrategyRandom             Strategy = "random"
	StrategyLeastConnections   Strategy = "least_connections"
	StrategyWeightedRoundRobin Strategy = "weighted_round_robin"
)

// RegistrationRequest is the payload accepted by the bridge and the
// /gateway/services/register endpoint.
type RegistrationRequest struct {
	ServiceName     string            `json:"service_name"`
	InstanceID      string            `json:"instance_id"`
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Endpoints       map[string]string `json:"endpoints,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	HealthCheckPath string            `json:"health_check_path,omitempty"`
	Weight          int               `json:"weight,omitempty"`
}

// Validate checks the required registration fields.
func (r *RegistrationRequest) Validate() error {
	if r.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if r.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if r.Host == "" {
		return fmt.Errorf("host is required")
	}
	if r.Port <= 0 || r.Port > 65535 {
		return fmt.Errorf("port must be in 1-65535, got %d", r.Port)
	}
	if r.Weight < 0 {
		return fmt.Errorf("weight must be >= 0, got %d", r.Weight)
	}
	return nil
}

// TaskFunc is the callable executed by a scheduler worker. The context
// carries the per-task timeout when one is configured.
type TaskFunc func(ctx context.Context) (interface{}, error)

// Task represents a unit of background work owned by the scheduler
type Task struct {
	ID          string
	Name        string
	Fn          TaskFunc
	Priority    TaskPriority
	Status      TaskStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	RetryCount  int
	MaxRetries  int
	Timeout     time.Duration
	Result      interface{}
	Error       string
}

// TaskPriority orders tasks in the scheduler queue.
// Lower values dequeue first.
type TaskPriority int

const (
	PriorityUrgent TaskPriority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the human-readable priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// TaskStatus represents the state of a scheduled task
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// StreamStatus represents the state of an SSE stream
type StreamStatus string

const (
	StreamActive    StreamStatus = "active"
	StreamCompleted StreamStatus = "completed"
	StreamError     StreamStatus = "error"
	StreamTimeout   StreamStatus = "timeout"
)

// EventType enumerates the SSE event kinds emitted by the stream hub
type EventType string

const (
	EventKeepalive EventType = "keepalive"
	EventStart     EventType = "start"
	EventChunk     EventType = "chunk"
	EventProgress  EventType = "progress"
	EventStatus    EventType = "status"
	EventResult    EventType = "result"
	EventError     EventType = "error"
	EventComplete  EventType = "complete"
)

// StreamEvent is a single event queued on a stream
type StreamEvent struct {
	ID        string                 `json:"event_id"`
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// InFlightRequest tracks one request currently traversing the gateway
type InFlightRequest struct {
	RequestID     string    `json:"request_id"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	StartTime     time.Time `json:"start_time"`
	ClientAddress string    `json:"client_address"`
	UserAgent     string    `json:"user_agent"`
}
