// Package notify turns lifecycle events into user-facing messages.
package notify

import (
	"fmt"

	"github.com/charmbracelet/log"

	"meetrec/internal/domain"
)

// Notifier implements ports.EventSink and logs a human message for each
// state change, warning and error. Transcript and elapsed updates are left
// to richer surfaces.
type Notifier struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) StateChanged(state domain.LifecycleState, reason domain.StopReason) {
	msg := StateMessage(state, reason)
	if msg == "" {
		return
	}
	if state == domain.StateStopped && (reason == domain.StopReasonSilence || reason == domain.StopReasonDuration) {
		n.logger.Warn(msg, "state", state, "reason", reason)
		return
	}
	n.logger.Info(msg, "state", state)
}

func (n *Notifier) RecordingStateChanged(bool) {}

func (n *Notifier) TranscriptUpdated(string, bool) {}

func (n *Notifier) AudioURLUpdated(url string) {
	n.logger.Info("Audio file uploaded successfully", "url", url)
}

func (n *Notifier) WarningChanged(w domain.Warning) {
	msg := WarningMessage(w)
	if msg == "" {
		return
	}
	if w.Active {
		n.logger.Warn(msg, "kind", w.Kind, "countdown", w.Countdown)
		return
	}
	n.logger.Info(msg, "kind", w.Kind)
}

func (n *Notifier) ElapsedChanged(int) {}

func (n *Notifier) SessionError(code domain.ErrorCode, detail string) {
	n.logger.Error(ErrorMessage(code, detail), "code", code, "detail", detail)
}

// StateMessage describes a lifecycle transition.
func StateMessage(state domain.LifecycleState, reason domain.StopReason) string {
	switch state {
	case domain.StateAcquiring:
		return "Requesting audio sources"
	case domain.StateRecording:
		return "Recording started"
	case domain.StateStopping:
		return "Stopping recording"
	case domain.StateStopped:
		switch reason {
		case domain.StopReasonSilence:
			return "Recording stopped due to prolonged silence"
		case domain.StopReasonDuration:
			return "Recording stopped due to duration limit"
		default:
			return "Recording stopped"
		}
	case domain.StateError:
		return "Failed to start recording"
	default:
		return ""
	}
}

// WarningMessage describes a watchdog warning. Countdown ticks repeat the
// same text with the remaining seconds.
func WarningMessage(w domain.Warning) string {
	if !w.Active {
		return "Recording continued"
	}
	switch w.Kind {
	case domain.WarningSilence:
		return fmt.Sprintf("No audio detected. Recording stops in %ds unless you continue", w.Countdown)
	case domain.WarningDuration:
		return fmt.Sprintf("Recording is getting long. It stops in %ds unless you continue", w.Countdown)
	default:
		return ""
	}
}

// ErrorMessage maps an error code to a message, falling back to detail.
func ErrorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodePermissionDenied:
		return "Microphone access denied. Please check your permissions."
	case domain.ErrorCodeDeviceNotFound:
		return "No microphone found. Please connect a microphone and try again."
	case domain.ErrorCodeDeviceBusy:
		return "Cannot access microphone. Please check if it's being used by another application."
	case domain.ErrorCodeChannelConnectFailed:
		return "Could not connect to live transcription"
	case domain.ErrorCodeChannelRuntime:
		return "Transcription error occurred. Recording continues without live transcript."
	case domain.ErrorCodeAudioEmpty:
		return "No audio data recorded"
	case domain.ErrorCodeUploadFailed:
		return "Failed to upload audio"
	case domain.ErrorCodeTeardown:
		return "Failed to stop recording properly"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
