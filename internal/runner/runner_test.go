package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyglotvid/lingoctl/internal/api"
	"github.com/polyglotvid/lingoctl/internal/progress"
	"github.com/polyglotvid/lingoctl/internal/settings"
)

// backendStub fakes the four endpoints a run touches.
type backendStub struct {
	saveResult  string
	streamLines []string // served as SSE data frames; empty slice means HTTP 500
	runOnceLog  string
	outputs     string
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/save", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(b.saveResult))
	})
	mux.HandleFunc("/api/run", func(w http.ResponseWriter, r *http.Request) {
		if len(b.streamLines) == 0 {
			http.Error(w, "stream unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, line := range b.streamLines {
			w.Write([]byte("data: " + line + "\n\n"))
			fl.Flush()
		}
	})
	mux.HandleFunc("/api/run-once", func(w http.ResponseWriter, r *http.Request) {
		if b.runOnceLog == "" {
			http.Error(w, "no log", http.StatusNotFound)
			return
		}
		w.Write([]byte(b.runOnceLog))
	})
	mux.HandleFunc("/api/list-outputs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(b.outputs))
	})
	return mux
}

type eventLog struct {
	mu     sync.Mutex
	events []progress.Event
}

func (l *eventLog) record(e progress.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) completeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Stage == progress.StageComplete {
			n++
		}
	}
	return n
}

func (l *eventLog) maxPercent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := 0.0
	for _, e := range l.events {
		if e.Percent > p {
			p = e.Percent
		}
	}
	return p
}

func TestRunHappyPath(t *testing.T) {
	stub := &backendStub{
		saveResult: `{"ok":true}`,
		streamLines: []string{
			"[INFO] MODE=vocab LEVEL=A1",
			"[TTS] selected provider=gtts lang=en",
			"[TTS] ok lang=fr",
			"[SUB] SRT draft written to out/draft.srt",
			"[VIDEO] Final video: out/vocab_a1.mp4",
			"[DONE] All done.",
		},
		outputs: `{"items":[{"name":"draft.srt","is_dir":false},{"name":"vocab_a1.mp4","is_dir":false}]}`,
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	logDir := t.TempDir()
	events := &eventLog{}
	res, err := Run(context.Background(), Options{
		Client:     api.NewClient(srv.URL, time.Second),
		Settings:   settings.Default(),
		OnProgress: events.record,
		LogDir:     logDir,
	})
	require.NoError(t, err)

	assert.Equal(t, "vocab_a1.mp4", res.Output)
	assert.Empty(t, res.Warnings)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, events.completeCount())
	assert.Equal(t, 1.0, events.maxPercent())

	require.NotEmpty(t, res.LogFile)
	raw, err := os.ReadFile(res.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[VIDEO] Final video: out/vocab_a1.mp4")
	assert.Contains(t, string(raw), "[DONE] All done.")
}

func TestRunSurfacesSaveWarnings(t *testing.T) {
	stub := &backendStub{
		saveResult:  `{"ok":true,"warnings":["Free edition: only gTTS is available"]}`,
		streamLines: []string{"[DONE] All done."},
		outputs:     `{"items":[]}`,
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	res, err := Run(context.Background(), Options{
		Client:   api.NewClient(srv.URL, time.Second),
		Settings: settings.Default(),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "gTTS")
}

func TestRunSaveRejected(t *testing.T) {
	stub := &backendStub{saveResult: `{"ok":false,"error":"unknown mode"}`}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	_, err := Run(context.Background(), Options{
		Client:   api.NewClient(srv.URL, time.Second),
		Settings: settings.Default(),
	})
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "settings", runErr.Stage)
	assert.Contains(t, runErr.Error(), "unknown mode")
}

func TestRunInvalidSettingsFailFast(t *testing.T) {
	s := settings.Default()
	s.Mode = "karaoke"

	_, err := Run(context.Background(), Options{
		Client:   api.NewClient("http://127.0.0.1:1", time.Second),
		Settings: s,
	})
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "settings", runErr.Stage)
}

func TestRunStreamDropRecoversViaRunOnce(t *testing.T) {
	stub := &backendStub{
		saveResult: `{"ok":true}`,
		// no streamLines: /api/run answers 500 and the fallback kicks in
		runOnceLog: strings.Join([]string{
			"[INFO] using input file sample.txt",
			"[TTS] ok lang=en",
			"[ERROR] elevenlabs quota exceeded, falling back to gtts",
			"[VIDEO] Final video: out/vocab_a1.mp4",
			"[DONE] All done.",
		}, "\n"),
		outputs: `{"items":[{"name":"vocab_a1.mp4","is_dir":false}]}`,
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	events := &eventLog{}
	res, err := Run(context.Background(), Options{
		Client:     api.NewClient(srv.URL, time.Second),
		Settings:   settings.Default(),
		OnProgress: events.record,
	})
	require.NoError(t, err, "a recovered run is a success with warnings")

	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "Event stream lost")
	assert.Contains(t, res.Warnings[1], "Backend reported errors")
	assert.Equal(t, "vocab_a1.mp4", res.Output)
	assert.Equal(t, 1, events.completeCount())
	assert.Equal(t, 1.0, events.maxPercent())
}

func TestRunStreamAndFallbackBothFail(t *testing.T) {
	stub := &backendStub{saveResult: `{"ok":true}`}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	_, err := Run(context.Background(), Options{
		Client:   api.NewClient(srv.URL, time.Second),
		Settings: settings.Default(),
	})
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "run", runErr.Stage)
}

func TestRunBackendErrorMarkerOnLiveStream(t *testing.T) {
	stub := &backendStub{
		saveResult: `{"ok":true}`,
		streamLines: []string{
			"[INFO] using input file sample.txt",
			"[ERROR] FFmpeg video render failed: exit status 1",
			"[DONE] All done.",
		},
		outputs: `{"items":[]}`,
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	res, err := Run(context.Background(), Options{
		Client:   api.NewClient(srv.URL, time.Second),
		Settings: settings.Default(),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "check the run log")
}

func TestRunUserCancel(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/save", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/api/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: [INFO] MODE=vocab LEVEL=A1\n\n"))
		w.(http.Flusher).Flush()
		<-release
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	events := &eventLog{}
	_, err := Run(ctx, Options{
		Client:     api.NewClient(srv.URL, time.Second),
		Settings:   settings.Default(),
		OnProgress: events.record,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, events.completeCount(), "cancel must not animate to done")
}

func TestLatestOutputPrefersVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
			{"name":"a_frames","is_dir":true},
			{"name":"run1.mp4","is_dir":false},
			{"name":"run2.mp4","is_dir":false},
			{"name":"subs.ass","is_dir":false}
		]}`))
	}))
	defer srv.Close()

	name, err := latestOutput(context.Background(), api.NewClient(srv.URL, time.Second))
	require.NoError(t, err)
	assert.Equal(t, "run2.mp4", name)
}

func TestLatestOutputFallsBackToLastFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[{"name":"notes.txt","is_dir":false},{"name":"subs.ass","is_dir":false}]}`))
	}))
	defer srv.Close()

	name, err := latestOutput(context.Background(), api.NewClient(srv.URL, time.Second))
	require.NoError(t, err)
	assert.Equal(t, "subs.ass", name)
}

func TestReplayLogSkipsBlanksAndStopsAtSentinel(t *testing.T) {
	est := progress.NewEstimator(nil)
	est.Start(progress.StartOptions{ItemCount: 10})
	est.Stop()

	var sink strings.Builder
	sawError := replayLog("[INFO] using input file x.txt\r\n\n[DONE] All done.\n[ERROR] after sentinel\n", est, &sink)

	assert.False(t, sawError, "lines after the sentinel are not replayed")
	assert.Contains(t, sink.String(), "[DONE] All done.")
	assert.NotContains(t, sink.String(), "after sentinel")
	_, ceiling, _ := est.Snapshot()
	assert.Equal(t, progress.MilestoneInput, ceiling)
}

func TestRunErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &RunError{Stage: "run", Message: "event stream failed", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "[run]")
}
