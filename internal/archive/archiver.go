package archive

import (
	"context"
	"fmt"
)

// Archiver exports a document and, when an uploader is set, mirrors it.
type Archiver struct {
	exporter *Exporter
	uploader Uploader
}

// New returns an Archiver writing under dir. uploader may be nil.
func New(dir string, uploader Uploader) *Archiver {
	return &Archiver{exporter: NewExporter(dir), uploader: uploader}
}

// Archive returns the local path. An upload failure still returns the path
// of the local export alongside the error.
func (a *Archiver) Archive(ctx context.Context, doc Document) (string, error) {
	path, err := a.exporter.Export(doc)
	if err != nil {
		return "", err
	}
	if a.uploader == nil {
		return path, nil
	}
	if err := a.uploader.Upload(ctx, path, doc.Session.ID); err != nil {
		return path, fmt.Errorf("upload %s: %w", doc.Session.ID, err)
	}
	return path, nil
}
