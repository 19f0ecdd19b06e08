package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetrec/internal/domain"
)

func partial(text string) domain.TranscriptEvent {
	return domain.TranscriptEvent{Kind: domain.TranscriptKindPartial, Text: text}
}

func final(text string) domain.TranscriptEvent {
	return domain.TranscriptEvent{Kind: domain.TranscriptKindFinal, Text: text}
}

func TestTranscriptReconcilerPreviewAndCommit(t *testing.T) {
	t.Parallel()

	r := newTranscriptReconciler()
	text, committed, ok := r.Apply(final("Hello there."))
	require.True(t, ok)
	assert.True(t, committed)
	assert.Equal(t, "Hello there.", text)

	text, committed, ok = r.Apply(partial("How"))
	require.True(t, ok)
	assert.False(t, committed, "partial should publish uncommitted text")
	assert.Equal(t, "Hello there. How", text)
	assert.Equal(t, domain.TranscriptState{Confirmed: "Hello there.", Pending: "How"}, r.State())

	text, committed, _ = r.Apply(final("How are you"))
	assert.True(t, committed)
	assert.Equal(t, "Hello there. How are you", text)
	assert.Empty(t, r.State().Pending, "final should clear pending")
}

func TestTranscriptReconcilerPartialReplacesPending(t *testing.T) {
	t.Parallel()

	r := newTranscriptReconciler()
	r.Apply(partial("hel"))
	r.Apply(partial("hello wor"))
	text, _, _ := r.Apply(partial("hello world"))
	assert.Equal(t, "hello world", text)
	assert.Empty(t, r.Confirmed(), "partials must not commit")

	// An empty partial clears the preview but is still published.
	text, committed, ok := r.Apply(partial(""))
	assert.True(t, ok)
	assert.False(t, committed)
	assert.Empty(t, text)
}

func TestTranscriptReconcilerIgnoresBlankFinal(t *testing.T) {
	t.Parallel()

	r := newTranscriptReconciler()
	r.Apply(final("kept"))
	r.Apply(partial("pending"))
	_, _, ok := r.Apply(final("   "))
	assert.False(t, ok, "blank final should be a no-op")
	assert.Equal(t, domain.TranscriptState{Confirmed: "kept", Pending: "pending"}, r.State())

	_, _, ok = r.Apply(domain.TranscriptEvent{Kind: "session_begins"})
	assert.False(t, ok, "unknown kinds should be ignored")
}

func TestTranscriptReconcilerConfirmedIsJoinOfFinals(t *testing.T) {
	t.Parallel()

	finals := []string{"We should", "ship it.", ", maybe", "Friday?", " Yes"}
	r := newTranscriptReconciler()
	want := ""
	prev := ""
	for i, f := range finals {
		r.Apply(partial(strings.Repeat("x", i)))
		r.Apply(final(f))
		want = joinTranscript(want, strings.TrimSpace(f))
		got := r.Confirmed()
		require.Equal(t, want, got, "after %d finals", i+1)
		require.True(t, strings.HasPrefix(got, prev), "confirmed text shrank from %q to %q", prev, got)
		prev = got
	}
	assert.Equal(t, "We should ship it., maybe Friday? Yes", prev)
}

func TestJoinTranscript(t *testing.T) {
	t.Parallel()

	cases := []struct {
		left, right, want string
	}{
		{"", "", ""},
		{"", "Hello", "Hello"},
		{"Hello", "", "Hello"},
		{"Hello", "world", "Hello world"},
		{"Hello ", "world", "Hello world"},
		{"Hello", " world", "Hello world"},
		{"Hello", ", world", "Hello, world"},
		{"Hello", ".", "Hello."},
		{"Really", "?", "Really?"},
		{"Wow", "!", "Wow!"},
		{"Hello.", "Next", "Hello. Next"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, joinTranscript(tc.left, tc.right), "joinTranscript(%q, %q)", tc.left, tc.right)
	}
}
