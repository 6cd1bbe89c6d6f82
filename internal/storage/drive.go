// ABOUTME: Google Drive persister for resolved images
// ABOUTME: Uploads YYYYMMDD_<id>.jpg into a configured folder with a service account

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const backendDrive = "drive"

// fileCreator is the slice of the Drive API the persister needs.
type fileCreator interface {
	Create(ctx context.Context, name, folderID, mimeType string, media io.Reader) (fileID string, err error)
}

// driveFiles adapts *drive.Service to fileCreator.
type driveFiles struct {
	svc *drive.Service
}

func (d driveFiles) Create(ctx context.Context, name, folderID, mimeType string, media io.Reader) (string, error) {
	f, err := d.svc.Files.Create(&drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: mimeType,
	}).
		Media(media, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return f.Id, nil
}

// DrivePersister uploads images into one Google Drive folder.
type DrivePersister struct {
	folderID string
	files    fileCreator
	location *time.Location
	logger   *slog.Logger
}

// NewDrivePersister authenticates with a service account key (the JSON blob
// downloaded from the cloud console) and targets folderID. Dates in file
// names use loc; nil means time.Local.
func NewDrivePersister(ctx context.Context, folderID string, credentialsJSON []byte, loc *time.Location, logger *slog.Logger) (*DrivePersister, error) {
	if folderID == "" {
		return nil, errors.New("drive folder id is required")
	}
	if len(credentialsJSON) == 0 {
		return nil, errors.New("drive service account credentials are required")
	}

	svc, err := drive.NewService(ctx,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	return newDrivePersister(folderID, driveFiles{svc: svc}, loc, logger), nil
}

func newDrivePersister(folderID string, files fileCreator, loc *time.Location, logger *slog.Logger) *DrivePersister {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DrivePersister{
		folderID: folderID,
		files:    files,
		location: loc,
		logger:   logger.With("component", "drive-storage"),
	}
}

// Filename returns "YYYYMMDD_<identifier>.jpg" dated in the persister's timezone.
func (p *DrivePersister) Filename(identifier string, at time.Time) string {
	return DatedFilename(identifier, at, p.location)
}

// Store uploads data and returns the new Drive file id.
func (p *DrivePersister) Store(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", &StoreError{Backend: backendDrive, Filename: filename, Err: errors.New("no data provided")}
	}

	mimeType := DetectImageType(data)
	fileID, err := p.files.Create(ctx, filename, p.folderID, mimeType, bytes.NewReader(data))
	if err != nil {
		return "", &StoreError{Backend: backendDrive, Filename: filename, Err: err}
	}

	p.logger.Info("uploaded image",
		"filename", filename,
		"file_id", fileID,
		"folder_id", p.folderID,
		"size", len(data),
		"type", mimeType,
	)
	return fileID, nil
}
