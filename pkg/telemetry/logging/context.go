package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for control API request IDs.
	RequestIDKey contextKey = "request_id"

	// ProjectIDKey is the context key for project identifiers.
	ProjectIDKey contextKey = "project_id"

	// DeploymentIDKey is the context key for deployment identifiers.
	DeploymentIDKey contextKey = "deployment_id"

	// SessionKey is the context key for control channel session IDs.
	SessionKey contextKey = "session"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithDeployment adds the project and deployment identifiers to the context.
func WithDeployment(ctx context.Context, projectID, deploymentID string) context.Context {
	ctx = context.WithValue(ctx, ProjectIDKey, projectID)
	return context.WithValue(ctx, DeploymentIDKey, deploymentID)
}

// GetDeployment retrieves the project and deployment identifiers.
func GetDeployment(ctx context.Context) (projectID, deploymentID string) {
	projectID, _ = ctx.Value(ProjectIDKey).(string)
	deploymentID, _ = ctx.Value(DeploymentIDKey).(string)
	return projectID, deploymentID
}

// WithSession adds a control channel session ID to the context.
func WithSession(ctx context.Context, session string) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}

// GetSession retrieves the session ID from the context.
func GetSession(ctx context.Context) string {
	if session, ok := ctx.Value(SessionKey).(string); ok {
		return session
	}
	return ""
}

// extractContextFields returns the context's log fields as attributes.
func extractContextFields(ctx context.Context) []slog.Attr {
	var fields []slog.Attr

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, slog.String("request_id", requestID))
	}

	projectID, deploymentID := GetDeployment(ctx)
	if projectID != "" {
		fields = append(fields, slog.String("project_id", projectID))
	}
	if deploymentID != "" {
		fields = append(fields, slog.String("deployment_id", deploymentID))
	}

	if session := GetSession(ctx); session != "" {
		fields = append(fields, slog.String("session", session))
	}

	return fields
}
