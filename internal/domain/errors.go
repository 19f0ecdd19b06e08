package domain

import "errors"

// ErrorCode identifies errors reported to collaborators.
type ErrorCode string

const (
	ErrorCodePermissionDenied     ErrorCode = "permission_denied"
	ErrorCodeDeviceNotFound       ErrorCode = "device_not_found"
	ErrorCodeDeviceBusy           ErrorCode = "device_busy"
	ErrorCodeChannelConnectFailed ErrorCode = "channel_connect_failed"
	ErrorCodeChannelRuntime       ErrorCode = "channel_runtime_error"
	ErrorCodeAudioEmpty           ErrorCode = "audio_empty"
	ErrorCodeUploadFailed         ErrorCode = "upload_failed"
	ErrorCodeTeardown             ErrorCode = "teardown"
	ErrorCodeUnknown              ErrorCode = "unknown"
)

var (
	ErrPermissionDenied       = errors.New("audio device permission denied")
	ErrDeviceNotFound         = errors.New("audio device not found")
	ErrDeviceBusy             = errors.New("audio device busy")
	ErrSystemAudioUnsupported = errors.New("system audio capture is not available")
	ErrChannelConnectFailed   = errors.New("transcription channel connect failed")
	ErrChannelRuntime         = errors.New("transcription channel error")
	ErrAudioEmpty             = errors.New("no audio chunks recorded")
	ErrUploadFailed           = errors.New("audio upload failed")
)

// CodeOf classifies err into the reported taxonomy.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return ErrorCodePermissionDenied
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrSystemAudioUnsupported):
		return ErrorCodeDeviceNotFound
	case errors.Is(err, ErrDeviceBusy):
		return ErrorCodeDeviceBusy
	case errors.Is(err, ErrChannelConnectFailed):
		return ErrorCodeChannelConnectFailed
	case errors.Is(err, ErrChannelRuntime):
		return ErrorCodeChannelRuntime
	case errors.Is(err, ErrAudioEmpty):
		return ErrorCodeAudioEmpty
	case errors.Is(err, ErrUploadFailed):
		return ErrorCodeUploadFailed
	default:
		return ErrorCodeUnknown
	}
}
