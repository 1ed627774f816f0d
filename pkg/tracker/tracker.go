package tracker

import (
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexops/gateway/pkg/log"
	"github.com/cortexops/gateway/pkg/types"
)

const (
	latencyRingSize = 1000
	errorRingSize   = 100

	// inFlightTTL protects the in-flight table against handler crashes.
	inFlightTTL = 5 * time.Minute
)

// ErrorRecord captures one failed request
type ErrorRecord struct {
	RequestID string    `json:"request_id"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	Status    int       `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats summarises tracker state for the monitoring endpoints
type Stats struct {
	TotalRequests int64           `json:"total_requests"`
	InFlight      int             `json:"in_flight"`
	RequestRate   float64         `json:"request_rate"` // requests/sec since start
	ErrorRate     float64         `json:"error_rate"`
	AvgLatencyMs  float64         `json:"avg_latency_ms"`
	MinLatencyMs  float64         `json:"min_latency_ms"`
	MaxLatencyMs  float64         `json:"max_latency_ms"`
	StatusCounts  map[int]int64   `json:"status_counts"`
	TopEndpoints  []EndpointCount `json:"top_endpoints"`
}

// EndpointCount pairs an endpoint with its hit count
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// Tracker assigns request ids and records in-flight requests, latency,
// and error history for every plane.
type Tracker struct {
	mu        sync.Mutex
	inFlight  map[string]*types.InFlightRequest
	total     int64
	errored   int64
	byStatus  map[int]int64
	byPath    map[string]int64
	latencies []time.Duration // ring of the latest latencies
	latIdx    int
	latFull   bool
	errs      []ErrorRecord // ring of the latest errors
	errIdx    int
	errFull   bool
	started   time.Time

	stopCh chan struct{}
}

// New creates a tracker.
func New() *Tracker {
	return &Tracker{
		inFlight:  make(map[string]*types.InFlightRequest),
		byStatus:  make(map[int]int64),
		byPath:    make(map[string]int64),
		latencies: make([]time.Duration, latencyRingSize),
		errs:      make([]ErrorRecord, errorRingSize),
		started:   time.Now(),
		stopCh:    make(chan struct{}),
	}
}

// Begin registers an inbound request and returns its request id.
func (t *Tracker) Begin(r *http.Request) string {
	requestID := uuid.New().String()

	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		clientIP = host
	}

	entry := &types.InFlightRequest{
		RequestID:     requestID,
		Endpoint:      r.URL.Path,
		Method:        r.Method,
		StartTime:     time.Now(),
		ClientAddress: clientIP,
		UserAgent:     r.UserAgent(),
	}

	t.mu.Lock()
	t.inFlight[requestID] = entry
	t.mu.Unlock()

	return requestID
}

// End completes a request, recording its status and latency.
func (t *Tracker) End(requestID string, status int, errMsg string) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.inFlight[requestID]
	if !ok {
		return
	}
	delete(t.inFlight, requestID)

	latency := now.Sub(entry.StartTime)
	t.total++
	t.byStatus[status]++
	t.byPath[entry.Endpoint]++

	t.latencies[t.latIdx] = latency
	t.latIdx = (t.latIdx + 1) % latencyRingSize
	if t.latIdx == 0 {
		t.latFull = true
	}

	if status >= 400 {
		t.errored++
		t.errs[t.errIdx] = ErrorRecord{
			RequestID: requestID,
			Endpoint:  entry.Endpoint,
			Method:    entry.Method,
			Status:    status,
			Message:   errMsg,
			Timestamp: now,
		}
		t.errIdx = (t.errIdx + 1) % errorRingSize
		if t.errIdx == 0 {
			t.errFull = true
		}
	}
}

// InFlight returns a snapshot of the in-flight table.
func (t *Tracker) InFlight() []*types.InFlightRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*types.InFlightRequest, 0, len(t.inFlight))
	for _, entry := range t.inFlight {
		copied := *entry
		out = append(out, &copied)
	}
	return out
}

// Errors returns the recent error records, newest last.
func (t *Tracker) Errors() []ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.errIdx
	if t.errFull {
		n = errorRingSize
	}
	out := make([]ErrorRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.errs[i])
	}
	return out
}

// Stats computes the aggregate view.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{
		TotalRequests: t.total,
		InFlight:      len(t.inFlight),
		StatusCounts:  make(map[int]int64, len(t.byStatus)),
	}
	for code, count := range t.byStatus {
		s.StatusCounts[code] = count
	}

	elapsed := time.Since(t.started).Seconds()
	if elapsed > 0 {
		s.RequestRate = float64(t.total) / elapsed
	}
	if t.total > 0 {
		s.ErrorRate = float64(t.errored) / float64(t.total)
	}

	n := t.latIdx
	if t.latFull {
		n = latencyRingSize
	}
	if n > 0 {
		var sum, min, max time.Duration
		min = t.latencies[0]
		for i := 0; i < n; i++ {
			l := t.latencies[i]
			sum += l
			if l < min {
				min = l
			}
			if l > max {
				max = l
			}
		}
		s.AvgLatencyMs = float64(sum.Microseconds()) / float64(n) / 1000.0
		s.MinLatencyMs = float64(min.Microseconds()) / 1000.0
		s.MaxLatencyMs = float64(max.Microseconds()) / 1000.0
	}

	counts := make([]EndpointCount, 0, len(t.byPath))
	for path, count := range t.byPath {
		counts = append(counts, EndpointCount{Endpoint: path, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Endpoint < counts[j].Endpoint
	})
	if len(counts) > 10 {
		counts = counts[:10]
	}
	s.TopEndpoints = counts

	return s
}

// StartSweeper launches the watchdog that purges in-flight entries older
// than five minutes.
func (t *Tracker) StartSweeper(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-t.stopCh:
				return
			}
		}
	}()
}

// StopSweeper stops the watchdog.
func (t *Tracker) StopSweeper() {
	close(t.stopCh)
}

func (t *Tracker) sweep() {
	cutoff := time.Now().Add(-inFlightTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, entry := range t.inFlight {
		if entry.StartTime.Before(cutoff) {
			delete(t.inFlight, id)
			log.WithRequestID(id).Warn().
				Str("endpoint", entry.Endpoint).
				Msg("in-flight entry expired by watchdog")
		}
	}
}
