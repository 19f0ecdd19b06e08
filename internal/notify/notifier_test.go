package notify

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"meetrec/internal/domain"
)

func TestStateMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state  domain.LifecycleState
		reason domain.StopReason
		want   string
	}{
		{domain.StateRecording, domain.StopReasonNone, "Recording started"},
		{domain.StateStopped, domain.StopReasonManual, "Recording stopped"},
		{domain.StateStopped, domain.StopReasonSilence, "Recording stopped due to prolonged silence"},
		{domain.StateStopped, domain.StopReasonDuration, "Recording stopped due to duration limit"},
		{domain.StateError, domain.StopReasonNone, "Failed to start recording"},
		{domain.StateIdle, domain.StopReasonNone, ""},
	}
	for _, tc := range cases {
		if got := StateMessage(tc.state, tc.reason); got != tc.want {
			t.Fatalf("%s/%s: unexpected message %q", tc.state, tc.reason, got)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cases := map[domain.ErrorCode]string{
		domain.ErrorCodePermissionDenied: "Microphone access denied. Please check your permissions.",
		domain.ErrorCodeDeviceNotFound:   "No microphone found. Please connect a microphone and try again.",
		domain.ErrorCodeUploadFailed:     "Failed to upload audio",
		domain.ErrorCodeTeardown:         "Failed to stop recording properly",
	}
	for code, want := range cases {
		code := code
		want := want
		t.Run(string(code), func(t *testing.T) {
			t.Parallel()
			if got := ErrorMessage(code, "ignored"); got != want {
				t.Fatalf("unexpected message: %q", got)
			}
		})
	}

	if got := ErrorMessage("other", "detail"); got != "detail" {
		t.Fatalf("expected detail fallback, got %q", got)
	}
	if got := ErrorMessage("other", ""); got != "Unknown error" {
		t.Fatalf("expected unknown fallback, got %q", got)
	}
}

func TestWarningMessage(t *testing.T) {
	t.Parallel()

	got := WarningMessage(domain.Warning{Kind: domain.WarningSilence, Active: true, Countdown: 42})
	if !strings.Contains(got, "42s") {
		t.Fatalf("expected countdown in message, got %q", got)
	}
	if got := WarningMessage(domain.Warning{Kind: domain.WarningDuration}); got != "Recording continued" {
		t.Fatalf("unexpected cleared message: %q", got)
	}
}

func TestNotifierLogsErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := New(log.New(&buf))
	n.SessionError(domain.ErrorCodeUploadFailed, "500")
	n.StateChanged(domain.StateStopped, domain.StopReasonSilence)

	out := buf.String()
	if !strings.Contains(out, "Failed to upload audio") {
		t.Fatalf("expected upload message, got %q", out)
	}
	if !strings.Contains(out, "prolonged silence") {
		t.Fatalf("expected silence message, got %q", out)
	}
}
