// Package store provides the upload ledger for the gateway using SQLite.
//
// # Architecture
//
// Store is the ledger interface. SQLiteStore implements it on
// modernc.org/sqlite (pure Go, no cgo) and MockStore keeps everything in
// memory for tests. Recorder adapts a Store to conversation.Recorder so the
// state machine can log each resolved image without importing this package.
//
// # Schema
//
// A single table, uploads, holds one row per stored image:
//
//	upload_id, conversation_key, identifier, image_ref,
//	filename, location, backend, size_bytes, created_at
//
// Timestamps are stored as fixed-width UTC text so ORDER BY created_at is
// chronological.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("data/photoid.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	recent, err := s.ListUploads(ctx, store.UploadFilter{Limit: 20})
//
// The ledger is an audit trail only. The conversation state lives in
// memory and is never read back from here.
package store
