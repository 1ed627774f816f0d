/*
Package health provides the probe primitives used by the registry.

A Checker answers one question about one target: is it up right now?
Two implementations exist. HTTPChecker issues a GET and treats any 2xx
as passing; TCPChecker dials and treats a successful connect as
passing. Both honor the caller's context and return a Result carrying
the verdict, latency, and failure detail.

	checker := health.NewHTTPChecker(inst.BaseURL() + "/health").
		WithTimeout(5 * time.Second)

	res := checker.Check(ctx)
	if !res.Healthy {
		log.Warn(res.Message)
	}

The registry owns scheduling and state transitions; checkers are
stateless and safe for concurrent use.
*/
package health
