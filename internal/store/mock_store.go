// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu      sync.RWMutex
	uploads map[string]*Upload

	// PingErr, when set, is returned by Ping.
	PingErr error
	// SaveErr, when set, is returned by SaveUpload.
	SaveErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		uploads: make(map[string]*Upload),
	}
}

// SaveUpload stores a copy of upload.
func (m *MockStore) SaveUpload(_ context.Context, upload *Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	if upload.ID == "" {
		return errors.New("upload id is required")
	}
	if _, exists := m.uploads[upload.ID]; exists {
		return ErrDuplicateUpload
	}

	u := *upload
	m.uploads[u.ID] = &u
	return nil
}

// GetUpload returns a copy of the upload with the given id.
func (m *MockStore) GetUpload(_ context.Context, id string) (*Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.uploads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ListUploads returns copies of matching uploads, newest first.
func (m *MockStore) ListUploads(_ context.Context, filter UploadFilter) ([]*Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Upload
	for _, u := range m.uploads {
		if !filter.matches(u) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if limit := clampLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountUploads returns the number of stored uploads matching filter.
func (m *MockStore) CountUploads(_ context.Context, filter UploadFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, u := range m.uploads {
		if filter.matches(u) {
			n++
		}
	}
	return n, nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(context.Context) error {
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

var _ Store = (*MockStore)(nil)
var _ Store = (*SQLiteStore)(nil)
