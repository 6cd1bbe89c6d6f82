// Package metrics exports Prometheus metrics for photoid-gateway.
//
// All collectors live on a private registry served by Handler at the
// configured metrics path (default /metrics):
//
//	photoid_events_total{kind,outcome}
//	photoid_event_duration_seconds{kind}
//	photoid_webhook_requests_total{status}
//	photoid_redeliveries_dropped_total
//	photoid_pending_images
//
// plus the standard Go runtime and process collectors. Metrics implements
// conversation.Observer, so the state machine reports outcomes directly.
package metrics
