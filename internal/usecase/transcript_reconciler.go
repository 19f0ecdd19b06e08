package usecase

import (
	"strings"
	"sync"
	"unicode"

	"meetrec/internal/domain"
)

// transcriptReconciler merges partial and final fragments. Confirmed text
// only grows; pending holds the latest partial.
type transcriptReconciler struct {
	mu        sync.Mutex
	confirmed string
	pending   string
}

func newTranscriptReconciler() *transcriptReconciler {
	return &transcriptReconciler{}
}

// Apply folds one event and returns the text to publish. ok is false when
// the event changes nothing.
func (r *transcriptReconciler) Apply(event domain.TranscriptEvent) (text string, committed bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Kind {
	case domain.TranscriptKindPartial:
		r.pending = event.Text
		return joinTranscript(r.confirmed, r.pending), false, true
	case domain.TranscriptKindFinal:
		final := strings.TrimSpace(event.Text)
		if final == "" {
			return "", false, false
		}
		r.pending = ""
		r.confirmed = joinTranscript(r.confirmed, final)
		return r.confirmed, true, true
	default:
		return "", false, false
	}
}

func (r *transcriptReconciler) State() domain.TranscriptState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.TranscriptState{Confirmed: r.confirmed, Pending: r.pending}
}

func (r *transcriptReconciler) Confirmed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmed
}

// joinTranscript concatenates with a single space unless either side
// already provides the separation or right opens with punctuation.
func joinTranscript(left string, right string) string {
	if right == "" {
		return left
	}
	if left == "" {
		return right
	}
	last := []rune(left)[len([]rune(left))-1]
	first := []rune(right)[0]
	if unicode.IsSpace(last) || unicode.IsSpace(first) || strings.ContainsRune(".!?,", first) {
		return left + right
	}
	return left + " " + right
}

// consumeTranscriptEvents publishes reconciled text until the channel's
// event stream closes, then reports a runtime failure if there was one.
func (c *Lifecycle) consumeTranscriptEvents(sess *activeSession) {
	defer close(sess.eventsDone)

	for event := range sess.stream.Events() {
		c.metrics.RecordTranscriptEvent(event.Kind)
		text, committed, ok := sess.reconciler.Apply(event)
		if !ok {
			continue
		}
		c.events.TranscriptUpdated(text, committed)
	}

	if err := sess.stream.Wait(); err != nil {
		c.channelFailed(sess, err)
	}
}
