/*
Package apierror defines the gateway's classified error type and wire envelope.

Every error that crosses the HTTP boundary is an *Error with a Kind
that maps to a status code:

	bad_request            400    rate_limited           429
	authentication_failed  401    upstream_timeout       504
	permission_denied      403    upstream_unavailable   503
	not_found              404    internal               500
	conflict               409

Errors wrap an optional cause (inspectable with errors.Is/As) and
serialize as a stable envelope:

	{"error": "permission_denied", "message": "...", "request_id": "..."}

Rate-limited errors additionally carry the window reset: the
X-RateLimit-Reset header (unix seconds) and a reset_time field in the
body.

FromError classifies arbitrary errors for writing: an *Error anywhere
in the chain passes through, anything else becomes KindInternal with a
generic message so internal detail never reaches a client. Handlers
end every error path with:

	apierror.Write(w, err, RequestID(r.Context()))
*/
package apierror
