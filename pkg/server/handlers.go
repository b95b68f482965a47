package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"mercator-hq/tracker/pkg/proxy"
	"mercator-hq/tracker/pkg/tracking"
)

// maxBodyBytes bounds control API request bodies.
const maxBodyBytes = 64 << 10

// registerBody is the JSON body of POST /v1/proxies.
type registerBody struct {
	ProjectID    string `json:"projectId"`
	DeploymentID string `json:"deploymentId"`
	ContainerID  string `json:"containerId"`
	ListenPort   int    `json:"listenPort"`
	BackendPort  int    `json:"backendPort"`
	Tracking     bool   `json:"tracking"`
}

// listResponse is the body of GET /v1/proxies.
type listResponse struct {
	Proxies []proxy.Info `json:"proxies"`
	Count   int          `json:"count"`
}

// handleRegister starts a proxy for a deployment.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	entry, err := s.opts.Registry.Register(r.Context(), proxy.RegisterRequest{
		Key:         proxy.Key{ProjectID: body.ProjectID, DeploymentID: body.DeploymentID},
		ContainerID: body.ContainerID,
		ListenPort:  body.ListenPort,
		BackendPort: body.BackendPort,
		Tracking:    body.Tracking,
	})
	if err != nil {
		s.writeError(w, r, err, "Failed to register proxy")
		return
	}

	writeJSON(w, http.StatusCreated, entry.Info())
}

// handleList returns every running proxy.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries := s.opts.Registry.List()
	resp := listResponse{
		Proxies: make([]proxy.Info, 0, len(entries)),
		Count:   len(entries),
	}
	for _, e := range entries {
		resp.Proxies = append(resp.Proxies, e.Info())
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGet returns one proxy.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	entry, err := s.opts.Registry.Lookup(routeKey(r))
	if err != nil {
		s.writeError(w, r, err, "Failed to look up proxy")
		return
	}
	writeJSON(w, http.StatusOK, entry.Info())
}

// handleUnregister stops a proxy after draining it.
func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	key := routeKey(r)
	if _, err := s.opts.Registry.Lookup(key); err != nil {
		s.writeError(w, r, err, "Failed to look up proxy")
		return
	}
	if err := s.opts.Registry.Unregister(r.Context(), key); err != nil {
		s.writeError(w, r, err, "Failed to stop proxy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEnable turns tracking on.
func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	notice, err := s.opts.Control.Enable(r.Context(), routeKey(r))
	if err != nil {
		s.writeError(w, r, err, "Failed to enable request tracking")
		return
	}
	writeJSON(w, http.StatusOK, notice)
}

// handleDisable turns tracking off.
func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	notice, err := s.opts.Control.Disable(r.Context(), routeKey(r))
	if err != nil {
		s.writeError(w, r, err, "Failed to disable request tracking")
		return
	}
	writeJSON(w, http.StatusOK, notice)
}

// handleGetLogs returns the newest entries, newest first.
func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	key := routeKey(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeMessage(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	entries, err := s.opts.Control.GetLogs(r.Context(), key.ProjectID, key.DeploymentID, limit)
	if err != nil {
		s.writeError(w, r, err, tracking.MsgFetchFailed)
		return
	}
	writeJSON(w, http.StatusOK, tracking.LogsPayload{
		ProjectID:    key.ProjectID,
		DeploymentID: key.DeploymentID,
		Logs:         tracking.Summaries(entries),
	})
}

// handleClearLogs deletes the deployment's entries.
func (s *Server) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	key := routeKey(r)
	deleted, err := s.opts.Control.ClearLogs(r.Context(), key.ProjectID, key.DeploymentID)
	if err != nil {
		s.writeError(w, r, err, tracking.MsgClearFailed)
		return
	}
	writeJSON(w, http.StatusOK, tracking.ClearedPayload{
		ProjectID:    key.ProjectID,
		DeploymentID: key.DeploymentID,
		Deleted:      deleted,
		Message:      tracking.MsgLogsCleared,
	})
}

func routeKey(r *http.Request) proxy.Key {
	vars := mux.Vars(r)
	return proxy.Key{ProjectID: vars["project"], DeploymentID: vars["deployment"]}
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		notFound  *proxy.NotFoundError
		duplicate *proxy.DuplicateEntryError
		portInUse *proxy.PortInUseError
		invalid   *proxy.InvalidRequestError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &duplicate), errors.As(err, &portInUse):
		return http.StatusConflict
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status for err. Internal failures are logged
// and reported with fallback only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	switch status {
	case http.StatusNotFound:
		writeMessage(w, status, tracking.ErrorMessage(err, fallback))
	case http.StatusInternalServerError:
		s.logger.ErrorContext(r.Context(), "control request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeMessage(w, status, fallback)
	default:
		writeMessage(w, status, err.Error())
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, tracking.ErrorPayload{Error: true, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

// sameHost reports whether origin names host.
func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
