/*
Package proxy implements the forwarding engine of the gateway.

The proxy takes an inbound request, rewrites it against a target URL,
and executes it with retries, exponential backoff, per-host circuit
breaking, and hop-by-hop header hygiene. Buffered forwarding returns
the upstream response for the caller to write; streaming forwarding
copies the upstream body through to the client flush-by-flush for SSE.

# Retry Policy

A Forward call makes up to maxRetries attempts in total. Between
attempts it sleeps 1s, 2s, 4s, ... capped at 30s. An attempt is
retried when:

  - the request failed at the transport level (connection refused,
    reset, EOF), or
  - the upstream answered 5xx and the method is idempotent (GET, HEAD,
    OPTIONS, PUT, DELETE)

A 5xx on a non-idempotent method and any 4xx are returned to the caller
as-is; the gateway never replays a POST. When the overall context
deadline expires the call fails with KindUpstreamTimeout.

# Circuit Breaking

Each upstream host gets its own circuit breaker (sony/gobreaker). Five
consecutive failures open the circuit; while open, attempts against
that host fail immediately with KindUpstreamUnavailable instead of
burning the retry budget on a dead backend. The breaker half-opens
after its cool-down and closes again on success.

# Header Handling

Hop-by-hop headers (Connection, Keep-Alive, Transfer-Encoding, and the
rest of the RFC 7230 set) are stripped in both directions. End-to-end
headers, the query string, and the body pass through unchanged.

# Usage

	p := proxy.New(30*time.Second, 3)
	defer p.Close()

	result, err := p.Forward(ctx, r, "http://10.0.0.5:8001/api/models/list")
	if err != nil {
		// *apierror.Error with an upstream kind
	}
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)

Streaming:

	err := p.ForwardStream(ctx, w, r, target)

ForwardStream writes directly to the ResponseWriter and flushes after
every chunk; it performs no retries, since bytes may already have
reached the client.

# Internal Requests

InternalRequest is the gateway-originated client for talking to backend
services (health probes aside): it marshals a JSON body, executes with
the same transport, and decodes JSON responses while preserving
non-JSON bodies as raw text.

# Integration Points

  - pkg/gateway: every plane forward goes through Forward/ForwardStream
  - pkg/apierror: transport failures are classified into upstream kinds
  - pkg/metrics: attempt outcomes are counted per service

# See Also

  - pkg/registry for instance selection ahead of forwarding
  - sony/gobreaker: https://github.com/sony/gobreaker
*/
package proxy
