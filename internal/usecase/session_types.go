package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"meetrec/internal/domain"
	"meetrec/internal/monitor"
	"meetrec/internal/ports"
)

type activeSession struct {
	id        string
	startedAt time.Time
	cancel    context.CancelFunc

	sources  []ports.AudioSource
	mixer    ports.Mixer
	analyser ports.Analyser
	recorder ports.Recorder
	stream   ports.StreamingSession

	silence  *monitor.Silence
	duration *monitor.Duration

	reconciler *transcriptReconciler
	eventsDone chan struct{}
	audioDone  chan struct{}
	// flushAudio asks the pump to send its partial frame; the pump closes
	// the passed channel when done.
	flushAudio chan chan struct{}

	// stopping is set once teardown begins; late channel failures are
	// expected from then on.
	stopping       atomic.Bool
	senderDisabled atomic.Bool

	mu       sync.Mutex
	reported map[errorKey]struct{}
	warnings map[domain.WarningKind]bool

	stopOnce sync.Once
	result   domain.StopResult
	err      error
}

type errorKey struct {
	code   domain.ErrorCode
	detail string
}

func newActiveSession(id string, startedAt time.Time) *activeSession {
	return &activeSession{
		id:         id,
		startedAt:  startedAt,
		reconciler: newTranscriptReconciler(),
		eventsDone: make(chan struct{}),
		audioDone:  make(chan struct{}),
		flushAudio: make(chan chan struct{}),
		reported:   map[errorKey]struct{}{},
		warnings:   map[domain.WarningKind]bool{},
	}
}

// markReported reports whether (code, detail) is new for this session.
func (s *activeSession) markReported(code domain.ErrorCode, detail string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := errorKey{code: code, detail: detail}
	if _, seen := s.reported[key]; seen {
		return false
	}
	s.reported[key] = struct{}{}
	return true
}

// warningRaised records w and reports whether it just became active.
func (s *activeSession) warningRaised(w domain.Warning) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.warnings[w.Kind]
	s.warnings[w.Kind] = w.Active
	return w.Active && !was
}

func (s *activeSession) sourceKinds() []domain.SourceKind {
	kinds := make([]domain.SourceKind, 0, len(s.sources))
	for _, src := range s.sources {
		kinds = append(kinds, src.Kind())
	}
	return kinds
}
