// ABOUTME: Error type for failed image persistence
// ABOUTME: Carries the backend and file name so logs say where a write was headed

package storage

import "fmt"

// StoreError reports a failed write to a storage backend.
type StoreError struct {
	Backend  string
	Filename string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: storing %s: %v", e.Backend, e.Filename, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
