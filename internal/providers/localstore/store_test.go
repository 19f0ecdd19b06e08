package localstore

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

func TestUploadWritesFileAndReturnsFileURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := New(dir)
	store.now = func() time.Time { return time.UnixMilli(42) }

	raw, err := store.Upload(context.Background(), ports.UploadRequest{
		MeetingID: "standup",
		Blob:      domain.Blob{MimeType: "audio/wav", Data: []byte("RIFF")},
	})
	require.NoError(t, err)

	parsed, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "file", parsed.Scheme)
	assert.Equal(t, filepath.Join(dir, "meetings", "standup", "audio_42.wav"), filepath.FromSlash(parsed.Path))

	data, err := os.ReadFile(filepath.FromSlash(parsed.Path))
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data)
}

func TestUploadRejectsEmptyBlob(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir()).Upload(context.Background(), ports.UploadRequest{SessionID: "s"})
	assert.ErrorIs(t, err, domain.ErrAudioEmpty)
}
