package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"meetrec/internal/domain"
	"meetrec/internal/pcm"
	"meetrec/internal/ports"
)

func TestParseEncodersKeepsAudioCodecs(t *testing.T) {
	t.Parallel()

	listing := []byte(`Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus
`)
	got := parseEncoders(listing)
	if !got["aac"] || !got["libopus"] {
		t.Fatalf("expected audio encoders, got %v", got)
	}
	if got["libx264"] || got["="] {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestEncoderFactorySupportsWAVWithoutProbe(t *testing.T) {
	t.Parallel()

	f := NewEncoderFactory("/nonexistent/ffmpeg")
	if !f.Supports(MimeWAV) {
		t.Fatalf("expected wav to be supported")
	}
	if f.Supports("audio/mp4") {
		t.Fatalf("expected mp4 to be unsupported without ffmpeg")
	}
	if f.Supports("video/quicktime") {
		t.Fatalf("expected unknown format to be unsupported")
	}
}

func TestEncoderFactoryProbeUsesScript(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "ffmpeg.sh", "#!/usr/bin/env bash\necho ' A....D aac   AAC'\n")
	f := NewEncoderFactory(script)
	if !f.Supports("audio/mp4") {
		t.Fatalf("expected mp4 via aac")
	}
	if f.Supports("audio/webm") {
		t.Fatalf("expected webm to be unsupported without libopus")
	}
}

func TestWAVEncoderFinalizePatchesSizes(t *testing.T) {
	t.Parallel()

	f := NewEncoderFactory("")
	enc, err := f.NewEncoder(ports.EncoderOptions{SampleRate: 8000, Channels: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := enc.Encode(domain.AudioFrame{Samples: []float32{0.5, -0.5}}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	first := enc.Drain()
	if err := enc.Encode(domain.AudioFrame{Samples: []float32{1, -1}}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	rest, err := enc.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}

	blob := append(first, rest...)
	blob = enc.(*wavEncoder).Finalize(blob)
	if len(blob) != wavHeaderSize+8 {
		t.Fatalf("unexpected blob length %d", len(blob))
	}
	if string(blob[0:4]) != "RIFF" || string(blob[8:12]) != "WAVE" {
		t.Fatalf("missing riff header")
	}
	if got := binary.LittleEndian.Uint32(blob[4:8]); got != 36+8 {
		t.Fatalf("unexpected riff size %d", got)
	}
	if got := binary.LittleEndian.Uint32(blob[40:44]); got != 8 {
		t.Fatalf("unexpected data size %d", got)
	}
	if got := binary.LittleEndian.Uint16(blob[22:24]); got != 2 {
		t.Fatalf("unexpected channel count %d", got)
	}
	want := append(pcm.Quantize([]float32{0.5, -0.5}), pcm.Quantize([]float32{1, -1})...)
	if !bytes.Equal(blob[wavHeaderSize:], want) {
		t.Fatalf("unexpected payload")
	}
}

func TestFFMPEGEncoderPipesThroughProcess(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "ffmpeg.sh", "#!/usr/bin/env bash\ncat\n")
	f := NewEncoderFactory(script)
	enc, err := f.NewEncoder(ports.EncoderOptions{MimeType: "audio/mpeg", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	samples := []float32{0.1, 0.2, 0.3}
	if err := enc.Encode(domain.AudioFrame{Samples: samples}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	out, err := enc.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !bytes.Equal(out, pcm.EncodeFloat32(samples)) {
		t.Fatalf("unexpected encoder output %v", out)
	}
}

func TestEncoderFactoryRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := NewEncoderFactory("").NewEncoder(ports.EncoderOptions{MimeType: "audio/flac"}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
