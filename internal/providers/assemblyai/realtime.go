package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"meetrec/internal/domain"
	"meetrec/internal/ports"
)

const defaultRealtimeURL = "wss://api.assemblyai.com/v2/realtime/ws"

// Config controls the realtime websocket. WriteTimeout bounds each frame
// write so a peer that stops reading fails the session instead of stalling
// the sender.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Provider implements ports.TranscriptionProvider for the AssemblyAI
// realtime protocol. It authenticates with short-lived tokens only.
type Provider struct {
	cfg    Config
	tokens ports.TokenProvider
	dialer *websocket.Dialer
	logger *log.Logger
}

func NewProvider(cfg Config, tokens ports.TokenProvider, logger *log.Logger) *Provider {
	if cfg.URL == "" {
		cfg.URL = defaultRealtimeURL
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.HandshakeTimeout
	return &Provider{cfg: cfg, tokens: tokens, dialer: &dialer, logger: logger}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if p.tokens == nil {
		return nil, fmt.Errorf("%w: no token provider configured", domain.ErrChannelConnectFailed)
	}
	token, err := p.tokens.FetchToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch token: %v", domain.ErrChannelConnectFailed, err)
	}

	wsURL, err := buildRealtimeURL(p.cfg.URL, cfg, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelConnectFailed, err)
	}

	conn, _, err := p.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to realtime websocket: %v", domain.ErrChannelConnectFailed, err)
	}

	sessionID, err := awaitSessionBegins(conn, p.cfg.HandshakeTimeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrChannelConnectFailed, err)
	}
	p.logger.Info("realtime session open", "session", sessionID, "sample_rate", cfg.SampleRate)

	session := newRealtimeSession(conn, p.cfg.WriteTimeout)

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.events)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

type realtimeMessage struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text"`
	SessionID   string `json:"session_id"`
	Created     string `json:"created"`
	Error       string `json:"error"`
}

func awaitSessionBegins(conn *websocket.Conn, timeout time.Duration) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("handshake failed: %w", err)
		}
		var msg realtimeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return "", fmt.Errorf("handshake rejected: %s", msg.Error)
		}
		if msg.MessageType == "SessionBegins" {
			return msg.SessionID, nil
		}
	}
}

// realtimeSession never closes audio. sendDone marks the end of input so
// CloseSend cannot race or wait on a sender blocked behind a slow peer.
type realtimeSession struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	events   chan domain.TranscriptEvent
	audio    chan []byte
	sendDone chan struct{}
	done     chan struct{}
	closing  chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func newRealtimeSession(conn *websocket.Conn, writeTimeout time.Duration) *realtimeSession {
	return &realtimeSession{
		conn:         conn,
		writeTimeout: writeTimeout,
		events:       make(chan domain.TranscriptEvent, 64),
		audio:        make(chan []byte, 32),
		sendDone:     make(chan struct{}),
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
	}
}

var errSendClosed = errors.New("audio stream is already closed")

func (s *realtimeSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	select {
	case <-s.sendDone:
		return errSendClosed
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendDone:
		return errSendClosed
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

func (s *realtimeSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		close(s.sendDone)
	})
	return nil
}

func (s *realtimeSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *realtimeSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *realtimeSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.Close()
	})
	<-s.done
	_ = s.CloseSend()
	return s.waitErr()
}

func (s *realtimeSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *realtimeSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}
	select {
	case <-s.closing:
		return
	default:
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("%w: %v", domain.ErrChannelRuntime, err)
	}
}

func (s *realtimeSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audio:
			if !s.writeAudio(chunk) {
				return
			}
		case <-s.sendDone:
			if !s.drainQueued() {
				return
			}
			if err := s.write(websocket.TextMessage, []byte(`{"terminate_session":true}`)); err != nil {
				s.setErr(fmt.Errorf("failed to terminate session: %w", err))
				_ = s.conn.Close()
			}
			return
		case <-s.closing:
			return
		}
	}
}

// drainQueued writes audio queued before input ended.
func (s *realtimeSession) drainQueued() bool {
	for {
		select {
		case chunk := <-s.audio:
			if !s.writeAudio(chunk) {
				return false
			}
		default:
			return true
		}
	}
}

// writeAudio reports whether the loop may continue. A failed write closes
// the connection so the read loop ends and senders are released.
func (s *realtimeSession) writeAudio(chunk []byte) bool {
	if err := s.write(websocket.BinaryMessage, chunk); err != nil {
		s.setErr(fmt.Errorf("failed to send audio: %w", err))
		_ = s.conn.Close()
		return false
	}
	return true
}

func (s *realtimeSession) write(messageType int, payload []byte) error {
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(messageType, payload)
}

func (s *realtimeSession) readLoop() {
	defer s.wg.Done()
	defer func() {
		// Unblock a writer stuck on a dead connection.
		_ = s.conn.Close()
	}()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}

		if msg.Error != "" {
			s.setErr(errors.New(msg.Error))
			return
		}

		switch msg.MessageType {
		case "PartialTranscript":
			s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: msg.Text, Timestamp: parseCreated(msg.Created)})
		case "FinalTranscript":
			s.emit(domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: msg.Text, Timestamp: parseCreated(msg.Created)})
		case "SessionTerminated":
			return
		}
	}
}

func (s *realtimeSession) emit(event domain.TranscriptEvent) {
	select {
	case s.events <- event:
	case <-s.closing:
	}
}

func parseCreated(value string) time.Time {
	if value != "" {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
			if ts, err := time.Parse(layout, value); err == nil {
				return ts
			}
		}
	}
	return time.Now()
}

func buildRealtimeURL(base string, streamCfg ports.StreamingConfig, token string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = defaultRealtimeURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	realtimeURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid realtime URL: %w", err)
	}
	if realtimeURL.Scheme != "ws" && realtimeURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid realtime URL scheme %q", realtimeURL.Scheme)
	}

	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "pcm_s16le"
	}

	query := realtimeURL.Query()
	query.Set("sample_rate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("encoding", streamCfg.Encoding)
	query.Set("token", token)
	if len(streamCfg.WordBoost) > 0 {
		boost, err := json.Marshal(streamCfg.WordBoost)
		if err != nil {
			return "", fmt.Errorf("invalid word boost: %w", err)
		}
		query.Set("word_boost", string(boost))
	}
	realtimeURL.RawQuery = query.Encode()
	return realtimeURL.String(), nil
}
