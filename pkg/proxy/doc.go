// Package proxy runs one reverse proxy per deployment and records the
// exchanges that pass through it.
//
// # Architecture
//
//   - Registry: owns every proxy, keyed by (project, deployment), and the
//     ports they hold. Register binds a listener and starts serving;
//     Unregister closes the listener, drains, then force-closes.
//   - Engine: an http.Handler built on httputil.ReverseProxy that forwards
//     to 127.0.0.1:<backend>. While its entry has logging enabled, bodies
//     are teed into CaptureBuffers and a requestlog.Entry is handed to the
//     Sink exactly once per exchange.
//   - WebSocket upgrades bypass the reverse proxy: the client connection is
//     hijacked and piped byte for byte to a fresh backend connection. Pipes
//     are never recorded.
//
// # Basic Usage
//
//	registry := proxy.NewRegistry(proxy.DefaultConfig(), recorder)
//	defer registry.Close(ctx)
//
//	entry, err := registry.Register(ctx, proxy.RegisterRequest{
//	    Key:         proxy.Key{ProjectID: "p1", DeploymentID: "d1"},
//	    ContainerID: "c1",
//	    ListenPort:  8081,
//	    BackendPort: 3000,
//	})
//	if err != nil {
//	    return err
//	}
//	entry.SetLogging(true)
//
// The logging flag is read once when an exchange starts; toggling it never
// affects an exchange already in flight.
package proxy
