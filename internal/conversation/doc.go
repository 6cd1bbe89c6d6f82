// Package conversation correlates a chat image with the identifier that
// names it.
//
// # Overview
//
// Every conversation (a direct chat, a group, or a room) is either Idle or
// AwaitingID. An image moves it to AwaitingID and starts a budget of
// MessageBudget text messages. Within that budget a text that is exactly
// five ASCII digits resolves the image: it is fetched, persisted under a
// name derived from the digits, and the user is told the file name. Running
// out of budget discards the image.
//
// # Keys
//
// Classify maps an Origin to a Key such as "user:U123". The user id wins
// over the group id, which wins over the room id. Events without any id are
// ignored.
//
// # Store
//
// Store holds at most one PendingImage per key and hands out per-key locks.
// Machine takes the key's lock for the whole of one event, so two messages
// from the same conversation never race, while other conversations proceed
// in parallel.
//
// # Machine
//
// Machine depends only on small interfaces:
//
//	Fetcher    downloads image bytes by reference
//	Persister  names and writes the file
//	Replier    sends a text reply by reply token
//	Recorder   optional audit trail of resolutions
//	Observer   optional per-event metrics
//
// Handle returns an Outcome for every event so callers can log and count
// what happened. Fetch and persist failures, panics included, end in
// OutcomeAborted with the pending image cleared.
package conversation
