// Package localstore keeps finalized recordings on the local filesystem.
package localstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
	"meetrec/internal/providers/backend"
)

// Store implements ports.UploadSink by writing files under Dir.
type Store struct {
	dir string
	now func() time.Time
}

func New(dir string) *Store {
	if dir == "" {
		dir = "."
	}
	return &Store{dir: dir, now: time.Now}
}

func (s *Store) Upload(ctx context.Context, req ports.UploadRequest) (string, error) {
	if err := backend.ValidateBlob(req.Blob); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	meeting := req.MeetingID
	if meeting == "" {
		meeting = req.SessionID
	}
	dir := filepath.Join(s.dir, "meetings", meeting)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	name := "audio_" + strconv.FormatInt(s.now().UnixMilli(), 10) + "." + backend.Extension(req.Blob.MimeType)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, req.Blob.Data, 0o644); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
