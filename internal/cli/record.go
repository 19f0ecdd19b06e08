package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"meetrec/internal/bootstrap"
	"meetrec/internal/config"
	"meetrec/internal/domain"
	"meetrec/internal/events"
	"meetrec/internal/notify"
)

func newRecordCmd(root *rootOptions) *cobra.Command {
	var (
		meetingID   string
		noSystem    bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting with live transcription",
		Long:  "Record microphone and system audio until Ctrl+C, prolonged silence or the duration limit.\nPress Enter to keep recording when a warning is shown.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if meetingID != "" {
				cfg.Session.MeetingID = meetingID
			}
			if noSystem {
				cfg.Audio.EnableSystem = false
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.ListenAddr = metricsAddr
			}
			return runRecord(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&meetingID, "meeting", "m", "", "meeting id used in the upload path")
	cmd.Flags().BoolVar(&noSystem, "no-system-audio", false, "record the microphone only")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func runRecord(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	session := newRecordSession(newPrinter(out))

	services, err := bootstrap.Build(cfg, errOut, session.observer())
	if err != nil {
		return err
	}
	session.lc = services.Lifecycle

	if cfg.Metrics.ListenAddr != "" {
		shutdown := serveMetrics(cfg.Metrics.ListenAddr, services.Registry, services.Logger)
		defer shutdown()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = session.run(ctx, stop, in)
	return err
}

// recordingLifecycle is the part of usecase.Lifecycle the command drives.
type recordingLifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context, reason domain.StopReason) (domain.StopResult, error)
	Continue(kind domain.WarningKind) error
	Status() domain.Status
}

// recordSession drives one recording from the terminal.
type recordSession struct {
	lc      recordingLifecycle
	out     *printer
	stopped chan domain.StopReason

	mu      sync.Mutex
	printed int
	warned  map[domain.WarningKind]bool
}

func newRecordSession(out *printer) *recordSession {
	return &recordSession{
		out:     out,
		stopped: make(chan domain.StopReason, 1),
		warned:  map[domain.WarningKind]bool{},
	}
}

// observer prints committed transcript text and warnings, and signals an
// automatic stop.
func (s *recordSession) observer() events.Funcs {
	return events.Funcs{
		OnState: func(state domain.LifecycleState, reason domain.StopReason) {
			if state != domain.StateStopped {
				return
			}
			select {
			case s.stopped <- reason:
			default:
			}
		},
		OnTranscript: func(text string, committed bool) {
			if !committed {
				return
			}
			s.mu.Lock()
			if len(text) < s.printed {
				s.printed = 0
			}
			fresh := strings.TrimSpace(text[s.printed:])
			s.printed = len(text)
			s.mu.Unlock()
			if fresh != "" {
				s.out.Transcript(fresh)
			}
		},
		OnWarning: func(w domain.Warning) {
			s.mu.Lock()
			first := w.Active && !s.warned[w.Kind]
			s.warned[w.Kind] = w.Active
			s.mu.Unlock()
			if first {
				s.out.Warning(notify.WarningMessage(w) + ". Press Enter to keep recording.")
			}
		},
	}
}

// run records until ctx is done or a watchdog stops the session, then
// returns the settled result. release is called once stopping begins so a
// second interrupt terminates the process.
func (s *recordSession) run(ctx context.Context, release func(), in io.Reader) (domain.StopResult, error) {
	if err := s.lc.Start(ctx); err != nil {
		return domain.StopResult{}, err
	}
	s.out.RecordingStarted(s.lc.Status())

	go s.readInput(in)

	select {
	case <-ctx.Done():
		s.out.Info("Stopping recording...")
	case reason := <-s.stopped:
		s.out.Info(notify.StateMessage(domain.StateStopped, reason))
	}
	if release != nil {
		release()
	}

	result, err := s.lc.Stop(context.Background(), domain.StopReasonManual)
	if errors.Is(err, domain.ErrAudioEmpty) || errors.Is(err, domain.ErrUploadFailed) {
		s.out.Warning(notify.ErrorMessage(domain.CodeOf(err), err.Error()))
	}
	if result.SessionID != "" {
		s.out.Result(result)
	}
	return result, err
}

// readInput continues every active warning each time Enter is pressed.
func (s *recordSession) readInput(in io.Reader) {
	if in == nil {
		return
	}
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		for _, w := range s.lc.Status().Warnings {
			if err := s.lc.Continue(w.Kind); err == nil {
				s.out.Info("Recording continued")
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
