// Package storage persists resolved images.
//
// Two backends implement the same two-method contract (Filename and Store):
//
//   - LocalPersister writes <dir>/<identifier>.jpg on the local filesystem.
//   - DrivePersister uploads YYYYMMDD_<identifier>.jpg into a Google Drive
//     folder, dated by the day the identifier arrived.
//
// The backend is chosen once at startup from configuration. Store failures are
// returned as *StoreError; callers treat any of them as terminal.
package storage
