// Package runner drives one backend run end to end: push settings, follow
// the event stream, feed the progress estimator, and locate the artifact.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/polyglotvid/lingoctl/internal/api"
	"github.com/polyglotvid/lingoctl/internal/progress"
	"github.com/polyglotvid/lingoctl/internal/settings"
)

var tracer = otel.Tracer("lingoctl")

// Options configures one run.
type Options struct {
	Client   *api.Client
	Settings settings.Settings
	// OnProgress receives estimator events; nil means silent.
	OnProgress progress.Callback
	Logger     *slog.Logger
	// LogDir receives a per-run log file of the raw backend lines.
	// Empty disables the file.
	LogDir string
}

// Result summarizes a completed run.
type Result struct {
	RunID string
	// Output is the produced artifact name, empty when none could be located.
	Output string
	// Warnings are non-fatal problems the operator should see: settings
	// downgrades from the backend, stream drops recovered via fallback,
	// backend-reported job errors.
	Warnings []string
	LogFile  string
}

// RunError wraps a failure with the stage it happened in.
type RunError struct {
	Stage   string
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Run executes one full run. Cancelling ctx closes the event stream and
// stops the progress display without animating to completion; the backend
// job itself is not cancelled from here.
func Run(ctx context.Context, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	runID := ulid.Make().String()
	ctx, span := tracer.Start(ctx, "run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", opts.Settings.Mode),
		attribute.String("level", opts.Settings.Level),
		attribute.Bool("use_llm", opts.Settings.UseLLM),
	)

	res := &Result{RunID: runID}

	// Stage 1: settings.
	if err := opts.Settings.Validate(); err != nil {
		return nil, &RunError{Stage: "settings", Message: "invalid settings", Err: err}
	}
	saved, err := opts.Client.SaveSettings(ctx, opts.Settings)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		return nil, &RunError{Stage: "settings", Message: "failed to save settings", Err: err}
	}
	if !saved.OK {
		span.SetStatus(codes.Error, "save rejected")
		return nil, &RunError{Stage: "settings", Message: fmt.Sprintf("backend rejected settings: %s", saved.Error)}
	}
	res.Warnings = append(res.Warnings, saved.Warnings...)
	for _, w := range saved.Warnings {
		log.WarnContext(ctx, "Settings downgraded on save", "warning", w)
	}

	// Stage 2: run with live progress.
	logSink, logPath := openRunLog(opts.LogDir, runID, log)
	if logSink != nil {
		defer logSink.Close()
	}
	res.LogFile = logPath

	est := progress.NewEstimator(opts.OnProgress)
	est.Start(progress.StartOptions{
		UsesGeneration: opts.Settings.UseLLM,
		ItemCount:      opts.Settings.Items(),
		Bilingual:      opts.Settings.EnableBilingual,
	})

	sawError, err := followStream(ctx, opts.Client, est, logSink, log)
	if err != nil {
		est.Stop()
		if ctx.Err() != nil {
			// User cancel: hide the bar, no animation, nothing to report.
			return nil, ctx.Err()
		}
		// Stream dropped: one-shot fallback fetch of the final log, replayed
		// through the same classifier. No retries beyond this.
		warn := "Event stream lost; recovering from the run log."
		res.Warnings = append(res.Warnings, warn)
		log.WarnContext(ctx, "Run stream failed, falling back to one-shot log fetch", "error", err)

		text, ferr := opts.Client.RunOnce(ctx)
		if ferr != nil {
			span.RecordError(ferr)
			span.SetStatus(codes.Error, "fallback fetch failed")
			return nil, &RunError{Stage: "run", Message: "event stream failed and log fetch failed", Err: ferr}
		}
		// Same run, same estimator: replaying only raises ceilings, the
		// displayed value never moves backwards.
		if replayLog(text, est, logSink) {
			sawError = true
		}
	}
	if sawError {
		res.Warnings = append(res.Warnings, "Backend reported errors during the run; check the run log.")
	}

	est.Finish()

	// Stage 3: locate the artifact.
	if name, err := latestOutput(ctx, opts.Client); err != nil {
		log.WarnContext(ctx, "Could not list outputs after run", "error", err)
	} else {
		res.Output = name
	}

	span.SetAttributes(attribute.String("output", res.Output))
	return res, nil
}

// followStream consumes the live event stream until the done sentinel.
// It reports whether any backend error marker was seen, and returns an
// error only for transport failure.
func followStream(ctx context.Context, client *api.Client, est *progress.Estimator, sink io.Writer, log *slog.Logger) (sawError bool, err error) {
	stream, err := client.OpenRun(ctx)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	for {
		line, ok := stream.Next()
		if !ok {
			break
		}
		if sink != nil {
			fmt.Fprintln(sink, line)
		}
		if api.IsDone(line) {
			return sawError, nil
		}
		if est.Observe(line) == progress.EventError {
			sawError = true
			log.Warn("Backend reported an error", "line", line)
		}
	}
	if serr := stream.Err(); serr != nil {
		return sawError, serr
	}
	// Stream closed without the sentinel; treat as a drop so the fallback
	// can confirm how the run actually ended.
	return sawError, fmt.Errorf("run stream ended before %s sentinel", api.DoneSentinel)
}

// replayLog feeds a complete fetched log through the classifier.
func replayLog(text string, est *progress.Estimator, sink io.Writer) (sawError bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if sink != nil {
			fmt.Fprintln(sink, line)
		}
		if api.IsDone(line) {
			break
		}
		if est.Observe(line) == progress.EventError {
			sawError = true
		}
	}
	return sawError
}

// latestOutput picks the artifact a finished run most plausibly produced:
// the last .mp4 in the name-sorted listing, or failing that the last file.
// The backend reports no timestamps, so name order is the best signal.
func latestOutput(ctx context.Context, client *api.Client) (string, error) {
	items, err := client.ListOutputs(ctx)
	if err != nil {
		return "", err
	}
	var lastFile, lastVideo string
	for _, it := range items {
		if it.IsDir {
			continue
		}
		lastFile = it.Name
		if strings.HasSuffix(strings.ToLower(it.Name), ".mp4") {
			lastVideo = it.Name
		}
	}
	if lastVideo != "" {
		return lastVideo, nil
	}
	return lastFile, nil
}

func openRunLog(dir, runID string, log *slog.Logger) (*os.File, string) {
	if dir == "" {
		return nil, ""
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("Could not create log dir, continuing without a run log", "dir", dir, "error", err)
		return nil, ""
	}
	path := filepath.Join(dir, "run-"+strings.ToLower(runID)+".log")
	f, err := os.Create(path)
	if err != nil {
		log.Warn("Could not create run log file", "path", path, "error", err)
		return nil, ""
	}
	return f, path
}
