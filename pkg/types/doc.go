/*
Package types defines the core data structures shared across the gateway.

This package contains the domain model for the gateway core: service
instances and their lifecycle states, load-balancing strategies,
registration payloads, scheduler tasks, SSE stream events, and request
tracking records. It has no dependencies on other gateway packages so
that every component can import it freely.

All enumerations are closed string (or int) types with package constants;
handlers never pass raw strings around for states or strategies.
*/
package types
