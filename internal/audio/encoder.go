package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/pcm"
	"meetrec/internal/ports"
)

// MimeWAV is encoded in-process and is always available.
const MimeWAV = "audio/wav"

type ffmpegFormat struct {
	codec string
	muxer string
	extra []string
}

var ffmpegFormats = map[string]ffmpegFormat{
	"audio/mp4":              {codec: "aac", muxer: "mp4", extra: []string{"-movflags", "frag_keyframe+empty_moov"}},
	"audio/webm;codecs=opus": {codec: "libopus", muxer: "webm"},
	"audio/webm":             {codec: "libopus", muxer: "webm"},
	"audio/ogg;codecs=opus":  {codec: "libopus", muxer: "ogg"},
	"audio/aac":              {codec: "aac", muxer: "adts"},
	"audio/mpeg":             {codec: "libmp3lame", muxer: "mp3"},
}

// EncoderFactory builds ffmpeg encoders for the formats the local ffmpeg
// supports, plus the in-process WAV encoder.
type EncoderFactory struct {
	command string

	probeOnce sync.Once
	encoders  map[string]bool
	probeErr  error
}

func NewEncoderFactory(command string) *EncoderFactory {
	if command == "" {
		command = "ffmpeg"
	}
	return &EncoderFactory{command: command}
}

// Probe lists the audio encoders reported by ffmpeg. The result is cached.
func (f *EncoderFactory) Probe(ctx context.Context) (map[string]bool, error) {
	f.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		out, err := exec.CommandContext(ctx, f.command, "-hide_banner", "-encoders").Output()
		if err != nil {
			f.probeErr = fmt.Errorf("failed to list ffmpeg encoders: %w", err)
			f.encoders = map[string]bool{}
			return
		}
		f.encoders = parseEncoders(out)
	})
	return f.encoders, f.probeErr
}

func (f *EncoderFactory) Supports(mimeType string) bool {
	if mimeType == MimeWAV {
		return true
	}
	format, ok := ffmpegFormats[mimeType]
	if !ok {
		return false
	}
	encoders, _ := f.Probe(context.Background())
	return encoders[format.codec]
}

func (f *EncoderFactory) NewEncoder(opts ports.EncoderOptions) (ports.Encoder, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.MimeType == "" || opts.MimeType == MimeWAV {
		return newWAVEncoder(opts.SampleRate, opts.Channels), nil
	}
	format, ok := ffmpegFormats[opts.MimeType]
	if !ok {
		return nil, fmt.Errorf("unsupported recording format %q", opts.MimeType)
	}
	return startFFMPEGEncoder(f.command, format, opts)
}

func parseEncoders(listing []byte) map[string]bool {
	encoders := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "A") || fields[1] == "=" {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

type ffmpegEncoder struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer

	mu  sync.Mutex
	buf bytes.Buffer

	readDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func startFFMPEGEncoder(command string, format ffmpegFormat, opts ports.EncoderOptions) (*ffmpegEncoder, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "f32le",
		"-ar", strconv.Itoa(opts.SampleRate),
		"-ac", strconv.Itoa(opts.Channels),
		"-i", "pipe:0",
		"-c:a", format.codec,
	}
	if opts.Bitrate > 0 {
		args = append(args, "-b:a", strconv.Itoa(opts.Bitrate))
	}
	args = append(args, format.extra...)
	args = append(args, "-f", format.muxer, "pipe:1")

	e := &ffmpegEncoder{readDone: make(chan struct{})}
	cmd := exec.Command(command, args...)
	cmd.Stderr = &e.stderr
	e.cmd = cmd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}
	e.stdin = stdin

	go e.readLoop(stdout)
	return e, nil
}

func (e *ffmpegEncoder) readLoop(stdout io.Reader) {
	defer close(e.readDone)
	chunk := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			e.mu.Lock()
			e.buf.Write(chunk[:n])
			e.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (e *ffmpegEncoder) Encode(frame domain.AudioFrame) error {
	if _, err := e.stdin.Write(pcm.EncodeFloat32(frame.Samples)); err != nil {
		return fmt.Errorf("failed to feed encoder: %w", err)
	}
	return nil
}

func (e *ffmpegEncoder) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(e.buf.Bytes())
	e.buf.Reset()
	return out
}

func (e *ffmpegEncoder) Close() ([]byte, error) {
	e.closeOnce.Do(func() {
		_ = e.stdin.Close()
		select {
		case <-e.readDone:
		case <-time.After(5 * time.Second):
			_ = e.cmd.Process.Kill()
			<-e.readDone
		}
		if err := e.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) || e.stderr.Len() > 0 {
				e.closeErr = fmt.Errorf("encoder exited: %w: %s", err, stringsTrimSpaceSafe(e.stderr.String()))
			}
		}
	})
	return e.Drain(), e.closeErr
}

const wavHeaderSize = 44

// wavEncoder streams 16-bit PCM behind a RIFF header whose sizes are patched
// by Finalize once the whole recording is known.
type wavEncoder struct {
	sampleRate int
	channels   int

	mu         sync.Mutex
	pending    bytes.Buffer
	headerSent bool
}

func newWAVEncoder(sampleRate int, channels int) *wavEncoder {
	return &wavEncoder{sampleRate: sampleRate, channels: channels}
}

func (e *wavEncoder) Encode(frame domain.AudioFrame) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.headerSent {
		e.pending.Write(wavHeader(e.sampleRate, e.channels, 0))
		e.headerSent = true
	}
	e.pending.Write(pcm.Quantize(frame.Samples))
	return nil
}

func (e *wavEncoder) Drain() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending.Len() == 0 {
		return nil
	}
	out := bytes.Clone(e.pending.Bytes())
	e.pending.Reset()
	return out
}

func (e *wavEncoder) MimeType() string {
	return MimeWAV
}

func (e *wavEncoder) Close() ([]byte, error) {
	return e.Drain(), nil
}

// Finalize rewrites the RIFF and data sizes of a concatenated recording.
func (e *wavEncoder) Finalize(blob []byte) []byte {
	if len(blob) < wavHeaderSize {
		return blob
	}
	patched := wavHeader(e.sampleRate, e.channels, len(blob)-wavHeaderSize)
	copy(blob, patched)
	return blob
}

func wavHeader(sampleRate int, channels int, dataSize int) []byte {
	const bitsPerSample = 16
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(header[32:34], uint16(channels*bitsPerSample/8))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))
	return header
}
