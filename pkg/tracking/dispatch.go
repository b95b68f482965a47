package tracking

import (
	"context"
	"encoding/json"
	"fmt"

	"mercator-hq/tracker/pkg/proxy"
)

// Handle executes one inbound control event for sub and returns the reply to
// send back, or nil when the event has no reply.
func (c *ControlPlane) Handle(ctx context.Context, sub *Subscriber, env Envelope) *Event {
	var req DeploymentRequest
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return errorEvent(fmt.Sprintf("invalid %s payload: %v", env.Name, err))
		}
	}
	req.Normalize()

	switch env.Name {
	case EventJoinProject:
		if req.ProjectID == "" {
			return errorEvent("projectId is required")
		}
		c.hub.Join(sub, req.ProjectID)
		return nil

	case EventLeaveProject:
		c.hub.Leave(sub, req.ProjectID)
		return nil
	}

	if !req.Valid() {
		return errorEvent(MsgInvalidRequest)
	}
	key := proxy.Key{ProjectID: req.ProjectID, DeploymentID: req.DeploymentID}

	switch env.Name {
	case EventEnableTracking:
		notice, err := c.Enable(ctx, key)
		if err != nil {
			return errorEvent(ErrorMessage(err, "Failed to enable request tracking"))
		}
		return &Event{Name: notice.EventName(), Data: notice}

	case EventDisableTracking:
		notice, err := c.Disable(ctx, key)
		if err != nil {
			return errorEvent(ErrorMessage(err, "Failed to disable request tracking"))
		}
		return &Event{Name: notice.EventName(), Data: notice}

	case EventGetLogs:
		entries, err := c.GetLogs(ctx, req.ProjectID, req.DeploymentID, req.Limit)
		if err != nil {
			c.logger.Error("failed to fetch request logs", "project_id", req.ProjectID, "deployment_id", req.DeploymentID, "error", err)
			return errorEvent(MsgFetchFailed)
		}
		return &Event{Name: EventRequestLogs, Data: LogsPayload{
			ProjectID:    req.ProjectID,
			DeploymentID: req.DeploymentID,
			Logs:         Summaries(entries),
		}}

	case EventClearLogs:
		deleted, err := c.ClearLogs(ctx, req.ProjectID, req.DeploymentID)
		if err != nil {
			c.logger.Error("failed to clear request logs", "project_id", req.ProjectID, "deployment_id", req.DeploymentID, "error", err)
			return errorEvent(MsgClearFailed)
		}
		return &Event{Name: EventRequestLogsCleared, Data: ClearedPayload{
			ProjectID:    req.ProjectID,
			DeploymentID: req.DeploymentID,
			Deleted:      deleted,
			Message:      MsgLogsCleared,
		}}
	}

	return errorEvent(fmt.Sprintf("unknown event %q", env.Name))
}

func errorEvent(message string) *Event {
	return &Event{Name: EventTrackingError, Data: ErrorPayload{Error: true, Message: message}}
}
