// Package server provides the control API for deployment proxies.
//
// The orchestrator registers a proxy when it starts a deployment and
// unregisters it when it stops one. Dashboards toggle tracking and read logs
// either over REST or over the WebSocket control channel, which also pushes
// a request-logged event for every persisted exchange.
//
// # Routes
//
//	GET    /health                                   liveness
//	GET    /ready                                    store ping
//	GET    /version                                  build info
//	GET    /metrics                                  Prometheus (when enabled)
//	POST   /v1/proxies                               register
//	GET    /v1/proxies                               list
//	GET    /v1/proxies/{project}/{deployment}        describe
//	DELETE /v1/proxies/{project}/{deployment}        unregister
//	POST   /v1/proxies/{project}/{deployment}/tracking
//	DELETE /v1/proxies/{project}/{deployment}/tracking
//	GET    /v1/proxies/{project}/{deployment}/logs?limit=N
//	DELETE /v1/proxies/{project}/{deployment}/logs
//	GET    /v1/ws                                    control channel
//
// Failures answer {"error": true, "message": "..."}. Unknown deployments are
// 404, duplicate registrations and taken ports 409, malformed requests 400.
//
// # Control channel
//
// Messages in both directions are {"event": "...", "data": {...}}. Inbound
// events are join-project, leave-project, enable-request-tracking,
// disable-request-tracking, get-request-logs and clear-request-logs. A client
// receives request-logged broadcasts for every project it has joined.
//
// # Basic Usage
//
//	srv := server.NewServer(&cfg.Server, server.Options{
//	    Registry: registry,
//	    Control:  controlPlane,
//	    Health:   checker,
//	    Metrics:  collector.Handler(),
//	})
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
