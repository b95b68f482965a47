package tracking

import (
	"encoding/json"
	"fmt"

	"mercator-hq/tracker/pkg/requestlog"
)

// Inbound control events.
const (
	EventJoinProject     = "join-project"
	EventLeaveProject    = "leave-project"
	EventEnableTracking  = "enable-request-tracking"
	EventDisableTracking = "disable-request-tracking"
	EventGetLogs         = "get-request-logs"
	EventClearLogs       = "clear-request-logs"
)

// Outbound events.
const (
	EventTrackingEnabled        = "tracking-enabled"
	EventTrackingAlreadyEnabled = "tracking-already-enabled"
	EventTrackingDisabled       = "tracking-disabled"
	EventTrackingNotEnabled     = "tracking-not-enabled"
	EventTrackingError          = "tracking-error"
	EventRequestLogs            = "request-logs"
	EventRequestLogsCleared     = "request-logs-cleared"
	EventRequestLogged          = "request-logged"
)

// Messages sent to control clients.
const (
	msgEnabledFormat  = "Request tracking enabled! Access your deployment at http://localhost:%d"
	MsgAlreadyEnabled = "Request tracking is already enabled"
	MsgDisabled       = "Request tracking disabled. Proxy continues to run without logging."
	MsgNotEnabled     = "Request tracking is not enabled"
	MsgProxyNotFound  = "Deployment proxy not found. This deployment may not support request tracking."
	MsgLogsCleared    = "Request logs cleared"
	MsgFetchFailed    = "Failed to fetch request logs"
	MsgClearFailed    = "Failed to clear request logs"
	MsgInvalidRequest = "projectId and deploymentId are required"
)

// EnabledMessage returns the notice text for a newly enabled proxy.
func EnabledMessage(port int) string {
	return fmt.Sprintf(msgEnabledFormat, port)
}

// Event is an outbound message: {"event": "...", "data": {...}}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Envelope is an inbound message with its payload left undecoded.
type Envelope struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// DeploymentRequest is the payload of every per-deployment inbound event.
// projectToken/deploymentToken are accepted as aliases.
type DeploymentRequest struct {
	ProjectID       string `json:"projectId"`
	DeploymentID    string `json:"deploymentId"`
	ProjectToken    string `json:"projectToken,omitempty"`
	DeploymentToken string `json:"deploymentToken,omitempty"`
	Limit           int    `json:"limit,omitempty"`
}

// Normalize folds the token aliases into ProjectID and DeploymentID.
func (r *DeploymentRequest) Normalize() {
	if r.ProjectID == "" {
		r.ProjectID = r.ProjectToken
	}
	if r.DeploymentID == "" {
		r.DeploymentID = r.DeploymentToken
	}
}

// Valid reports whether both identifiers are present.
func (r *DeploymentRequest) Valid() bool {
	return r.ProjectID != "" && r.DeploymentID != ""
}

// Notice is the outcome of Enable or Disable. Already-correct states are
// notices, not errors.
type Notice struct {
	ProjectID      string `json:"projectId"`
	DeploymentID   string `json:"deploymentId"`
	Enabled        bool   `json:"enabled"`
	Port           int    `json:"port,omitempty"`
	Message        string `json:"message"`
	AlreadyEnabled bool   `json:"alreadyEnabled,omitempty"`
	NotEnabled     bool   `json:"notEnabled,omitempty"`
}

// EventName returns the outbound event that carries the notice.
func (n *Notice) EventName() string {
	switch {
	case n.AlreadyEnabled:
		return EventTrackingAlreadyEnabled
	case n.NotEnabled:
		return EventTrackingNotEnabled
	case n.Enabled:
		return EventTrackingEnabled
	default:
		return EventTrackingDisabled
	}
}

// ErrorPayload is the data of a tracking-error event and the body of a
// failed control API call.
type ErrorPayload struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// LogsPayload is the data of a request-logs event.
type LogsPayload struct {
	ProjectID    string               `json:"projectId"`
	DeploymentID string               `json:"deploymentId"`
	Logs         []requestlog.Summary `json:"logs"`
}

// ClearedPayload is the data of a request-logs-cleared event.
type ClearedPayload struct {
	ProjectID    string `json:"projectId"`
	DeploymentID string `json:"deploymentId"`
	Deleted      int64  `json:"deleted"`
	Message      string `json:"message"`
}

// LoggedPayload is the data of a request-logged broadcast.
type LoggedPayload struct {
	DeploymentID string             `json:"deploymentId"`
	Request      requestlog.Summary `json:"request"`
}

// Summaries projects entries to their list form.
func Summaries(entries []*requestlog.Entry) []requestlog.Summary {
	out := make([]requestlog.Summary, len(entries))
	for i, e := range entries {
		out[i] = e.Summarize()
	}
	return out
}
