// Package health provides liveness, readiness and version endpoints for the
// control server.
//
//   - /health: the process is running; reports details such as the number
//     of registered proxies
//   - /ready: every registered check passed, typically the request log
//     store ping
//   - /version: build information
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCheck("store", health.PingCheck(store))
//	checker.RegisterDetail("proxies", func() any { return registry.Len() })
//
//	router.Handle("/health", checker.LivenessHandler())
//	router.Handle("/ready", checker.ReadinessHandler())
//
// Checks run concurrently, each bounded by the checker timeout. A failing
// check makes /ready answer 503 with status "degraded".
package health
