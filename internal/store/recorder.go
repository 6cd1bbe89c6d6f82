// ABOUTME: Adapter that writes conversation resolutions into the upload ledger
// ABOUTME: Lets the state machine record uploads without knowing about SQL

package store

import (
	"context"
	"fmt"

	"github.com/2389/photoid-gateway/internal/conversation"
)

// Recorder implements conversation.Recorder on top of a Store.
type Recorder struct {
	store   Store
	backend string
}

// NewRecorder returns a Recorder tagging every row with the given storage backend name.
func NewRecorder(s Store, backend string) *Recorder {
	return &Recorder{store: s, backend: backend}
}

// RecordResolution saves one resolved image as an Upload.
func (r *Recorder) RecordResolution(ctx context.Context, res *conversation.Resolution) error {
	upload := &Upload{
		ID:              res.ID,
		ConversationKey: string(res.Key),
		Identifier:      res.Identifier,
		ImageRef:        res.ImageRef,
		Filename:        res.Filename,
		Location:        res.Location,
		Backend:         r.backend,
		SizeBytes:       int64(res.SizeBytes),
		CreatedAt:       res.ResolvedAt,
	}
	if err := r.store.SaveUpload(ctx, upload); err != nil {
		return fmt.Errorf("recording upload %s: %w", res.ID, err)
	}
	return nil
}
