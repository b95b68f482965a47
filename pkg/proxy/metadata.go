package proxy

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// RequestMetadata is the request side of a recorded exchange, taken before
// the request is forwarded.
type RequestMetadata struct {
	// Method is the HTTP method (GET, POST, etc.).
	Method string

	// Path is the request path including the query string.
	Path string

	// Headers are the inbound request headers, with Host included.
	Headers map[string][]string

	// QueryParams are the parsed query parameters.
	QueryParams map[string][]string

	// ClientIP is the client's IP address.
	ClientIP string

	// UserAgent is the client's user agent string.
	UserAgent string

	// Referer is the Referer header.
	Referer string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

// ExtractRequestMetadata extracts metadata from an inbound request.
func ExtractRequestMetadata(r *http.Request, trustForwarded bool) *RequestMetadata {
	headers := make(map[string][]string, len(r.Header)+1)
	for k, v := range r.Header {
		headers[k] = append([]string(nil), v...)
	}
	if r.Host != "" {
		headers["Host"] = []string{r.Host}
	}

	return &RequestMetadata{
		Method:      r.Method,
		Path:        r.URL.RequestURI(),
		Headers:     headers,
		QueryParams: r.URL.Query(),
		ClientIP:    ClientIP(r, trustForwarded),
		UserAgent:   r.UserAgent(),
		Referer:     r.Referer(),
		Timestamp:   time.Now(),
	}
}

// ClientIP returns the socket peer address of r. When trustForwarded is set,
// the first X-Forwarded-For hop or X-Real-IP takes precedence.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
