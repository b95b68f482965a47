// Package middleware provides the control API's HTTP middleware.
//
// The chain, outermost first:
//
//	Recovery -> Logging -> RequestID -> CORS -> handler
//
// TimeoutMiddleware is mounted on the REST subrouter only; the WebSocket
// channel is long-lived.
//
// Deployment proxies do not pass through this package. Their traffic is
// forwarded byte for byte and recorded by the proxy engine.
package middleware
