// Package logging configures the process-wide slog logger.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	logger.SetDefault()
//
// Components derive their own loggers from slog.Default:
//
//	logger := slog.Default().With("component", "proxy.registry")
//
// The level is held in a slog.LevelVar, so SetLevel applies to every
// derived logger, which is how a configuration reload changes verbosity.
//
// # Context Fields
//
// Records logged with a context carry request_id, project_id,
// deployment_id and session when the context holds them:
//
//	ctx = logging.WithRequestID(ctx, id)
//	slog.InfoContext(ctx, "request completed")
package logging
