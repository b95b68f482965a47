// Package tracking is the control plane for per-deployment request tracking.
//
// ControlPlane turns logging on and off for running proxies, answers log
// queries from the request log store and, as the recorder's persisted
// listener, broadcasts every stored entry to the subscribers of its
// project. Handle maps the inbound control events of the WebSocket channel
// to these operations.
//
// Broadcasts go through Hub: at most once, best effort, never retried and
// never buffered for projects without subscribers.
package tracking
