// Tracker runs per-deployment reverse proxies that can record the HTTP
// exchanges passing through them.
//
// Each deployment gets its own listen port forwarding to the container's
// backend port. When request tracking is enabled for a deployment, every
// exchange is persisted with bounded body snapshots and pushed to dashboard
// clients subscribed to the project.
//
// Usage:
//
//	# Start the control API and configured proxies
//	tracker run
//
//	# Start with a custom configuration file
//	tracker run --config /etc/tracker/config.yaml
//
//	# Show the newest stored exchanges of a deployment
//	tracker logs list --project p1 --deployment d1
//
//	# Apply the retention policy once
//	tracker logs prune
package main

func main() {
	Execute()
}
