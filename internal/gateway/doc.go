// Package gateway is the HTTP front of photoid-gateway.
//
// # Overview
//
// The Gateway owns the HTTP server and wires the pieces together:
//
//	POST /callback      LINE webhook (signature checked by package line)
//	GET  /health        liveness, always "OK"
//	GET  /health/ready  200 when the upload ledger answers a ping
//	GET  /metrics       Prometheus exposition (metrics.path)
//	GET  /api/uploads   recent ledger rows, JWT protected when auth.jwt_secret is set
//	GET  /api/uploads/{id}
//
// # Webhook Handling
//
// A verified batch is handled synchronously and in order. Each event passes
// the redelivery filter (package dedupe, keyed by webhookEventId) and is then
// handed to conversation.Machine, which serializes work per conversation.
// The response is "OK" once every event has been handled.
//
// # Listeners
//
// By default the server listens on server.host:server.port. With tailscale
// enabled it joins the tailnet through tsnet and, with funnel on, exposes
// :443 publicly so LINE can reach the webhook without a reverse proxy.
//
// # Testing
//
// New accepts options (WithStore, WithFetcher, WithReplier, WithPersister,
// WithClock) so tests can run the real handler without network access.
package gateway
