/*
Package log provides structured logging for the gateway using zerolog.

The package wraps zerolog behind a small API: Init configures the
global logger once at startup (level, JSON or console output, writer),
package-level helpers cover the simple cases, and the With* helpers
derive context loggers that stamp every line with a component or
correlation ID.

# Usage

Initialization (in cmd/gateway):

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("gateway starting")
	log.Errorf("health probe failed: %v", err)

Context loggers:

	logger := log.WithComponent("registry")
	logger.Info().Str("service", name).Msg("instance registered")

	reqLog := log.WithRequestID(id)
	streamLog := log.WithStreamID(streamID)
	taskLog := log.WithTaskID(task.ID)

JSON output is the production default; console output is for local
development. Field names are stable (component, request_id, service,
stream_id, task_id) so log queries survive refactors.

# Conventions

  - Errors are logged with .Err(err), never interpolated into the message
  - Secrets, tokens, and API key material are never logged
  - Hot-path logging (per-request) stays at debug level

# See Also

  - zerolog: https://github.com/rs/zerolog
*/
package log
