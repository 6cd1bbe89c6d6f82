// ABOUTME: Local filesystem persister for resolved images
// ABOUTME: Writes <dir>/<id>.jpg through a temp file and rename so readers never see partial files

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultLocalDir is where images land when no directory is configured.
const DefaultLocalDir = "images"

const backendLocal = "local"

// LocalPersister stores images as files in one directory.
type LocalPersister struct {
	dir    string
	logger *slog.Logger
}

// NewLocalPersister creates a persister writing into dir. The directory is
// created on first write.
func NewLocalPersister(dir string, logger *slog.Logger) *LocalPersister {
	if dir == "" {
		dir = DefaultLocalDir
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPersister{
		dir:    dir,
		logger: logger.With("component", "local-storage"),
	}
}

// Dir returns the target directory.
func (p *LocalPersister) Dir() string {
	return p.dir
}

// Filename returns "<identifier>.jpg". The local layout is undated.
func (p *LocalPersister) Filename(identifier string, _ time.Time) string {
	return PlainFilename(identifier)
}

// Store writes data to dir/filename, replacing any previous file of that name.
// Returns the written path.
func (p *LocalPersister) Store(ctx context.Context, data []byte, filename string) (string, error) {
	if err := p.store(ctx, data, filename); err != nil {
		return "", &StoreError{Backend: backendLocal, Filename: filename, Err: err}
	}
	path := filepath.Join(p.dir, filename)
	p.logger.Info("saved image", "path", path, "size", len(data), "type", DetectImageType(data))
	return path, nil
}

func (p *LocalPersister) store(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("no data provided")
	}
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return fmt.Errorf("invalid file name %q", filename)
	}

	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(p.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(p.dir, filename)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}
