package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"meetrec/internal/domain"
)

// printer writes user-facing progress lines. Event callbacks arrive from
// several goroutines, so writes are serialized.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) RecordingStarted(status domain.Status) {
	sources := make([]string, 0, len(status.Sources))
	for _, s := range status.Sources {
		sources = append(sources, string(s))
	}
	p.printf("🎙️  Recording from %s. Press Enter to dismiss a warning, Ctrl+C to stop.\n", strings.Join(sources, " + "))
}

func (p *printer) Transcript(text string) {
	p.printf("📝 %s\n", text)
}

func (p *printer) Result(result domain.StopResult) {
	p.printf("⏹️  Recording stopped (%s, %s)\n", domain.FormatElapsed(int(result.Elapsed/time.Second)), result.Reason)
	if result.Transcript != "" {
		p.printf("\n%s\n\n", result.Transcript)
	} else {
		p.printf("ℹ️  No speech was transcribed\n")
	}
	if result.AudioURL != "" {
		p.printf("✅ Audio saved: %s\n", result.AudioURL)
	}
}

func (p *printer) Check(name string, ok bool, detail string) {
	if ok {
		p.printf("  ✅ %s: %s\n", name, detail)
	} else {
		p.printf("  ❌ %s: %s\n", name, detail)
	}
}

func (p *printer) Info(msg string) {
	p.printf("ℹ️  %s\n", msg)
}

func (p *printer) Success(msg string) {
	p.printf("✅ %s\n", msg)
}

func (p *printer) Warning(msg string) {
	p.printf("⚠️  %s\n", msg)
}

func (p *printer) Error(msg string) {
	p.printf("❌ %s\n", msg)
}
