package archive

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Uploader mirrors an exported file somewhere durable.
type Uploader interface {
	Upload(ctx context.Context, localPath, sessionID string) error
}

// DriveUploader creates one Google Doc per session and updates it on later
// uploads.
type DriveUploader struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewDriveUploader(ctx context.Context, credPath, folderID string) (*DriveUploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return newDriveUploader(ctx, folderID, option.WithCredentials(config))
}

func newDriveUploader(ctx context.Context, folderID string, opts ...option.ClientOption) (*DriveUploader, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &DriveUploader{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

func (u *DriveUploader) Upload(ctx context.Context, localPath, sessionID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := u.fileIDs[sessionID]; ok {
		if _, err := u.service.Files.Update(fileID, &drive.File{}).Media(f).Context(ctx).Do(); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := u.service.Files.Create(&drive.File{
		Name:     "interview-" + sessionID,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{u.folderID},
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	u.fileIDs[sessionID] = doc.Id
	return nil
}
