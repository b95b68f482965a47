package requestlog

import (
	"context"
	"strconv"
	"time"
)

// MaxBodySnapshot is the number of characters kept from a request or
// response body.
const MaxBodySnapshot = 5000

// Entry is one persisted HTTP exchange.
type Entry struct {
	// ID is assigned by the store on append.
	ID int64 `json:"id"`

	ProjectID    string `json:"projectId"`
	DeploymentID string `json:"deploymentId"`
	ContainerID  string `json:"containerId"`

	Method string `json:"method"`

	// Path is the request path including the query string.
	Path string `json:"path"`

	Status int `json:"status"`

	// ResponseTime is the elapsed time of the exchange in milliseconds.
	ResponseTime int64 `json:"responseTime"`

	RequestIP string `json:"requestIp"`
	UserAgent string `json:"userAgent"`
	Referer   string `json:"referer"`

	// Headers holds the inbound request headers.
	Headers map[string][]string `json:"headers"`

	// QueryParams holds the parsed query string.
	QueryParams map[string][]string `json:"queryParams"`

	RequestBody  string `json:"requestBody"`
	ResponseBody string `json:"responseBody"`

	// ErrorDetail is set only when forwarding to the backend failed.
	ErrorDetail string `json:"errorDetail,omitempty"`

	// Timestamp is assigned by the store on append.
	Timestamp time.Time `json:"timestamp"`
}

// Summary is the list projection of an entry sent to dashboards and
// broadcast subscribers.
type Summary struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Time      string    `json:"time"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
}

// Summarize returns the list projection of e.
func (e *Entry) Summarize() Summary {
	return Summary{
		ID:        strconv.FormatInt(e.ID, 10),
		Method:    e.Method,
		Path:      e.Path,
		Status:    e.Status,
		Time:      strconv.FormatInt(e.ResponseTime, 10),
		Timestamp: e.Timestamp,
		IP:        e.RequestIP,
	}
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Headers = cloneValues(e.Headers)
	c.QueryParams = cloneValues(e.QueryParams)
	return &c
}

func cloneValues(v map[string][]string) map[string][]string {
	if v == nil {
		return nil
	}
	out := make(map[string][]string, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// Store is the narrow persistence interface the tracking core depends on.
type Store interface {
	// Append persists entry and returns the stored copy with ID and
	// Timestamp assigned. Failures are reported as *PersistenceError.
	Append(ctx context.Context, entry *Entry) (*Entry, error)

	// List returns at most limit entries for the deployment, newest first.
	List(ctx context.Context, projectID, deploymentID string, limit int) ([]*Entry, error)

	// DeleteAll removes every entry for the deployment and returns the
	// number removed. Entries of other deployments are untouched.
	DeleteAll(ctx context.Context, projectID, deploymentID string) (int64, error)
}

// Maintainer is implemented by stores that support retention pruning.
type Maintainer interface {
	// DeleteBefore removes entries with a timestamp before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteExcess keeps the newest keep entries of every deployment and
	// removes the rest.
	DeleteExcess(ctx context.Context, keep int64) (int64, error)
}

// Backend is a complete storage backend as constructed by the service.
type Backend interface {
	Store
	Maintainer

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
