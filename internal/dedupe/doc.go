// Package dedupe remembers recently seen webhook event ids so that events the
// messaging platform redelivers after a slow or failed acknowledgment are
// handled once. A redelivered text message would otherwise consume a second
// unit of a pending image's message budget.
package dedupe
