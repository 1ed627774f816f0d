package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cortexops/gateway/pkg/apierror"
	"github.com/cortexops/gateway/pkg/log"
)

// hopHeaders are never copied between client and upstream.
var hopHeaders = []string{
	"Host",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Upgrade",
	"Proxy-Connection",
}

// maxBackoff caps the exponential retry delay.
const maxBackoff = 30 * time.Second

// Result is a buffered upstream response
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Proxy forwards requests to backend instances over a pooled HTTP client.
// Each backend host gets a circuit breaker; an open breaker fails fast
// with UpstreamUnavailable instead of burning the retry budget.
type Proxy struct {
	client     *http.Client
	timeout    time.Duration
	maxRetries int

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker

	// sleep is replaceable in tests to avoid real backoff waits.
	sleep func(time.Duration)
}

// New creates a proxy with pooled keep-alive connections.
func New(timeout time.Duration, maxRetries int) *Proxy {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Proxy{
		client:     &http.Client{Transport: transport},
		timeout:    timeout,
		maxRetries: maxRetries,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		sleep:      time.Sleep,
	}
}

// Close releases idle upstream connections.
func (p *Proxy) Close() {
	if t, ok := p.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}

// breakerFor returns the circuit breaker for one backend host.
func (p *Proxy) breakerFor(host string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	cb, ok := p.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    host,
			Timeout: 15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithComponent("proxy").Warn().
					Str("host", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("circuit breaker state change")
			},
		})
		p.breakers[host] = cb
	}
	return cb
}

// Forward sends the inbound request to targetURL and buffers the upstream
// response. Timeouts and connection errors are retried with 2^attempt
// backoff up to the retry budget; upstream 5xx responses are retried only
// for idempotent methods. 4xx responses pass through without retries.
func (p *Proxy) Forward(ctx context.Context, r *http.Request, targetURL string) (*Result, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, apierror.Wrap(apierror.KindBadRequest, "failed to read request body", err)
		}
		r.Body.Close()
	}

	target := targetURL
	if r.URL.RawQuery != "" {
		target = target + "?" + r.URL.RawQuery
	}

	host := hostOf(targetURL)
	cb := p.breakerFor(host)

	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			p.sleep(backoff(attempt - 1))
		}

		res, err := cb.Execute(func() (interface{}, error) {
			return p.attempt(ctx, r, target, body)
		})
		if err == nil {
			result := res.(*Result)
			if result.StatusCode >= 500 && retriableStatus(result.StatusCode) && idempotent(r.Method) {
				lastErr = apierror.Newf(apierror.KindUpstreamError,
					"upstream returned %d", result.StatusCode)
				continue
			}
			return result, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apierror.Wrap(apierror.KindUpstreamUnavailable, "circuit open for "+host, err)
		}
		if !retriableNetErr(err) {
			return nil, apierror.Wrap(apierror.KindUpstreamError, "upstream request failed", err)
		}
		lastErr = err

		log.WithComponent("proxy").Debug().
			Err(err).
			Str("target", target).
			Int("attempt", attempt+1).
			Msg("upstream attempt failed")
	}

	if isTimeout(lastErr) {
		return nil, apierror.Wrap(apierror.KindUpstreamTimeout, "retry budget exhausted on timeouts", lastErr)
	}
	var apiErr *apierror.Error
	if errors.As(lastErr, &apiErr) {
		return nil, lastErr
	}
	return nil, apierror.Wrap(apierror.KindUpstreamError, "retry budget exhausted", lastErr)
}

// attempt performs one upstream round trip with the per-request timeout.
func (p *Proxy) attempt(ctx context.Context, r *http.Request, target string, body []byte) (*Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, r.Method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	copyHeaders(req.Header, r.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream body: %w", err)
	}

	header := make(http.Header)
	copyHeaders(header, resp.Header)

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       respBody,
	}, nil
}

// ForwardStream sends the request and relays the upstream body unbuffered,
// flushing each chunk. Upstream end-of-stream closes the downstream body;
// a mid-stream error terminates the connection without changing the
// already-written status.
func (p *Proxy) ForwardStream(ctx context.Context, w http.ResponseWriter, r *http.Request, targetURL string) error {
	target := targetURL
	if r.URL.RawQuery != "" {
		target = target + "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return apierror.Wrap(apierror.KindBadRequest, "failed to build upstream request", err)
	}
	copyHeaders(req.Header, r.Header)

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return apierror.Wrap(apierror.KindUpstreamTimeout, "upstream connect timed out", err)
		}
		return apierror.Wrap(apierror.KindUpstreamError, "upstream request failed", err)
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Downstream disconnected; drop the stream quietly.
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			log.WithComponent("proxy").Debug().Err(readErr).Msg("stream terminated mid-body")
			return nil
		}
	}
}

// copyHeaders copies all non-hop-by-hop headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if isHopHeader(key) {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func isHopHeader(key string) bool {
	for _, h := range hopHeaders {
		if http.CanonicalHeaderKey(h) == http.CanonicalHeaderKey(key) {
			return true
		}
	}
	return false
}

// backoff returns the exponential delay for the given completed attempt.
func backoff(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func retriableStatus(code int) bool {
	return code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable ||
		code == http.StatusGatewayTimeout
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// retriableNetErr reports whether the error is a network-layer failure
// worth retrying: timeouts, refused/reset connections, broken transport.
func retriableNetErr(err error) bool {
	if err == nil {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	// url.Error wraps transport failures; treat the rest as retriable
	// connection errors unless the context was cancelled.
	return !errors.Is(err, context.Canceled)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hostOf(rawURL string) string {
	// rawURL is always "http://host:port..." built by the router.
	rest := rawURL
	if idx := len("http://"); len(rest) > idx && rest[:idx] == "http://" {
		rest = rest[idx:]
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i]
		}
	}
	return rest
}
