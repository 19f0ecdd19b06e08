// Package backend talks to the trusted application backend. It issues
// short-lived realtime tokens and stores finalized recordings.
package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

const (
	DefaultTokenPath  = "/getAssemblyAIToken"
	DefaultUploadPath = "/meetings/{meeting}/audio_{timestamp}.{ext}"
	// MaxUploadBytes is the largest recording the backend accepts.
	MaxUploadBytes = 24 * 1024 * 1024
)

// Config locates the backend endpoints.
type Config struct {
	BaseURL     string
	TokenPath   string
	UploadPath  string
	BearerToken string
	Timeout     time.Duration
}

// Client implements ports.TokenProvider and ports.UploadSink.
type Client struct {
	cfg  Config
	http *resty.Client
	now  func() time.Time
}

type tokenResponse struct {
	Token string `json:"token"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewClient(cfg Config) *Client {
	if cfg.TokenPath == "" {
		cfg.TokenPath = DefaultTokenPath
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = DefaultUploadPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.BearerToken != "" {
		client.SetAuthToken(cfg.BearerToken)
	}
	return &Client{cfg: cfg, http: client, now: time.Now}
}

// FetchToken requests a temporary realtime token.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	var out tokenResponse
	var failure errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&failure).
		Get(c.cfg.TokenPath)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token request failed: %s", describe(resp, failure))
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", fmt.Errorf("token response missing token")
	}
	return out.Token, nil
}

// Upload validates the recording and stores it under the meeting.
func (c *Client) Upload(ctx context.Context, req ports.UploadRequest) (string, error) {
	if err := ValidateBlob(req.Blob); err != nil {
		return "", err
	}

	path := c.uploadPath(req)
	var out uploadResponse
	var failure errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", req.Blob.MimeType).
		SetBody(req.Blob.Data).
		SetResult(&out).
		SetError(&failure).
		Post(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrUploadFailed, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: %s", domain.ErrUploadFailed, describe(resp, failure))
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", fmt.Errorf("%w: upload response missing url", domain.ErrUploadFailed)
	}
	return out.URL, nil
}

func (c *Client) uploadPath(req ports.UploadRequest) string {
	meeting := req.MeetingID
	if meeting == "" {
		meeting = req.SessionID
	}
	return strings.NewReplacer(
		"{meeting}", meeting,
		"{timestamp}", strconv.FormatInt(c.now().UnixMilli(), 10),
		"{ext}", Extension(req.Blob.MimeType),
	).Replace(c.cfg.UploadPath)
}

// ValidateBlob rejects empty and oversized recordings.
func ValidateBlob(blob domain.Blob) error {
	if len(blob.Data) == 0 {
		return domain.ErrAudioEmpty
	}
	if len(blob.Data) > MaxUploadBytes {
		return fmt.Errorf("%w: recording is %d bytes, limit is %d", domain.ErrUploadFailed, len(blob.Data), MaxUploadBytes)
	}
	return nil
}

// Extension maps a recording mime type to a file extension.
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/mp4":
		return "m4a"
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/aac":
		return "aac"
	case "audio/mpeg":
		return "mp3"
	case "audio/wav":
		return "wav"
	default:
		return "bin"
	}
}

func describe(resp *resty.Response, failure errorResponse) string {
	if failure.Error != "" {
		return fmt.Sprintf("%s: %s", resp.Status(), failure.Error)
	}
	return resp.Status()
}
