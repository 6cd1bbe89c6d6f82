// ABOUTME: Store interface and data types for photoid-gateway persistence
// ABOUTME: Defines the Upload record and the Store interface for the upload ledger

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateUpload is returned when an upload id is saved twice
var ErrDuplicateUpload = errors.New("upload already exists")

// DefaultListLimit caps ListUploads when the filter leaves Limit at zero.
const DefaultListLimit = 50

// MaxListLimit is the largest page ListUploads will return.
const MaxListLimit = 500

// Upload is one image that was fetched from the chat platform and persisted.
type Upload struct {
	ID              string
	ConversationKey string // "user:...", "group:..." or "room:..."
	Identifier      string // the five-digit id the user supplied
	ImageRef        string // platform message id of the image
	Filename        string
	Location        string // local path or remote object id
	Backend         string // "local" or "drive"
	SizeBytes       int64
	CreatedAt       time.Time
}

// UploadFilter narrows ListUploads. Zero values mean no filter.
type UploadFilter struct {
	Identifier      string
	ConversationKey string
	Limit           int
}

// Store is the upload ledger.
type Store interface {
	SaveUpload(ctx context.Context, upload *Upload) error
	GetUpload(ctx context.Context, id string) (*Upload, error)
	// ListUploads returns the newest uploads first.
	ListUploads(ctx context.Context, filter UploadFilter) ([]*Upload, error)
	// CountUploads counts uploads matching filter. Limit is ignored.
	CountUploads(ctx context.Context, filter UploadFilter) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

func (f UploadFilter) matches(u *Upload) bool {
	if f.Identifier != "" && u.Identifier != f.Identifier {
		return false
	}
	if f.ConversationKey != "" && u.ConversationKey != f.ConversationKey {
		return false
	}
	return true
}

// clampLimit applies DefaultListLimit and MaxListLimit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
