// ABOUTME: Tests for the resolution recorder and the mock store
// ABOUTME: Checks field mapping from conversation resolutions to ledger rows

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/photoid-gateway/internal/conversation"
)

func TestRecorder_RecordResolution(t *testing.T) {
	s := NewMockStore()
	r := NewRecorder(s, "drive")
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	res := &conversation.Resolution{
		ID:         "res-1",
		Key:        "group:G1",
		Identifier: "00042",
		ImageRef:   "468789577898262530",
		Filename:   "20250314_00042.jpg",
		Location:   "drive-file-id",
		SizeBytes:  2048,
		ResolvedAt: at,
	}
	require.NoError(t, r.RecordResolution(context.Background(), res))

	got, err := s.GetUpload(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, "group:G1", got.ConversationKey)
	assert.Equal(t, "00042", got.Identifier)
	assert.Equal(t, "468789577898262530", got.ImageRef)
	assert.Equal(t, "20250314_00042.jpg", got.Filename)
	assert.Equal(t, "drive-file-id", got.Location)
	assert.Equal(t, "drive", got.Backend)
	assert.Equal(t, int64(2048), got.SizeBytes)
	assert.Equal(t, at, got.CreatedAt)
}

func TestRecorder_PropagatesStoreError(t *testing.T) {
	s := NewMockStore()
	s.SaveErr = errors.New("disk full")
	r := NewRecorder(s, "local")

	err := r.RecordResolution(context.Background(), &conversation.Resolution{ID: "res-2"})
	assert.ErrorContains(t, err, "disk full")
}

func TestRecorder_WithSQLite(t *testing.T) {
	s := setupTestStore(t)
	r := NewRecorder(s, "local")

	res := &conversation.Resolution{
		ID:         "res-3",
		Key:        "user:U9",
		Identifier: "99999",
		ImageRef:   "m",
		Filename:   "99999.jpg",
		Location:   "images/99999.jpg",
		SizeBytes:  1,
		ResolvedAt: time.Now(),
	}
	require.NoError(t, r.RecordResolution(context.Background(), res))

	uploads, err := s.ListUploads(context.Background(), UploadFilter{ConversationKey: "user:U9"})
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.Equal(t, "99999.jpg", uploads[0].Filename)
}

func TestMockStore_ListAndLimits(t *testing.T) {
	s := NewMockStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		u := newUpload("00001", base.Add(time.Duration(i)*time.Minute))
		u.ID = id
		require.NoError(t, s.SaveUpload(ctx, u))
	}

	uploads, err := s.ListUploads(ctx, UploadFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, uploads, 2)
	assert.Equal(t, "c", uploads[0].ID)
	assert.Equal(t, "b", uploads[1].ID)

	n, err := s.CountUploads(ctx, UploadFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.ErrorIs(t, s.SaveUpload(ctx, &Upload{ID: "a"}), ErrDuplicateUpload)

	_, err = s.GetUpload(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	s.PingErr = errors.New("down")
	assert.Error(t, s.Ping(ctx))
}
