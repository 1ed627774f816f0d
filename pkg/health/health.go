package health

import (
	"context"
	"time"
)

// Checker probes a single target and reports its health
type Checker interface {
	// Check performs one probe. It must honour ctx cancellation.
	Check(ctx context.Context) Result

	// Type returns the health check type
	Type() CheckType
}

// CheckType identifies the probe mechanism
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result is the outcome of a single probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}
