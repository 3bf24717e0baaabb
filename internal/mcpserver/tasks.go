package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/polyglotvid/lingoctl/internal/api"
	"github.com/polyglotvid/lingoctl/internal/observability"
	"github.com/polyglotvid/lingoctl/internal/progress"
	"github.com/polyglotvid/lingoctl/internal/runner"
	"github.com/polyglotvid/lingoctl/internal/settings"
)

// RunStatus is the lifecycle state of one backend run started over MCP.
type RunStatus string

const (
	StatusSubmitted RunStatus = "submitted"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is the tracked state of one generation run.
type Run struct {
	ID              string
	Status          RunStatus
	ProgressPercent int
	StageMessage    string
	Output          string
	Warnings        []string
	ErrorMessage    string
	CreatedAt       time.Time
}

// RunManager starts backend runs in the background and tracks their
// progress in memory. The backend itself executes one pipeline at a time,
// so the concurrency cap mostly guards against client retries piling up.
type RunManager struct {
	mu     sync.Mutex
	runs   map[string]*Run
	order  []string // insertion order, oldest first
	active int

	client    *api.Client
	maxActive int
	logDir    string
	log       *slog.Logger
}

// NewRunManager creates a manager submitting runs through client.
func NewRunManager(client *api.Client, maxActive int, logDir string, logger *slog.Logger) *RunManager {
	return &RunManager{
		runs:      make(map[string]*Run),
		client:    client,
		maxActive: maxActive,
		logDir:    logDir,
		log:       logger,
	}
}

// StartRun submits a run and returns its ID. The run executes in the
// background; poll Get for progress.
func (m *RunManager) StartRun(ctx context.Context, s settings.Settings) (string, error) {
	m.mu.Lock()
	if m.active >= m.maxActive {
		m.mu.Unlock()
		return "", fmt.Errorf("too many active runs (max %d)", m.maxActive)
	}
	id := ulid.Make().String()
	m.runs[id] = &Run{
		ID:        id,
		Status:    StatusSubmitted,
		CreatedAt: time.Now().UTC(),
	}
	m.order = append(m.order, id)
	m.active++
	m.mu.Unlock()

	// Detached context: the run outlives the MCP tool call that started it
	// but keeps its trace lineage.
	go m.execute(observability.DetachTraceContext(ctx), id, s)
	return id, nil
}

// Get returns a copy of the run state.
func (m *RunManager) Get(id string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return *r, true
}

// List returns up to limit runs, newest first.
func (m *RunManager) List(limit int) []Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.runs[m.order[i]])
	}
	return out
}

func (m *RunManager) execute(ctx context.Context, id string, s settings.Settings) {
	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	m.update(id, func(r *Run) { r.Status = StatusRunning })

	res, err := runner.Run(ctx, runner.Options{
		Client:   m.client,
		Settings: s,
		Logger:   m.log,
		LogDir:   m.logDir,
		OnProgress: func(ev progress.Event) {
			m.update(id, func(r *Run) {
				r.ProgressPercent = int(ev.Percent * 100)
				r.StageMessage = ev.Message
			})
		},
	})
	if err != nil {
		m.log.Error("Run failed", "run_id", id, "error", err)
		m.update(id, func(r *Run) {
			r.Status = StatusFailed
			r.ErrorMessage = err.Error()
		})
		return
	}

	m.log.Info("Run completed", "run_id", id, "output", res.Output)
	m.update(id, func(r *Run) {
		r.Status = StatusCompleted
		r.ProgressPercent = 100
		r.Output = res.Output
		r.Warnings = res.Warnings
	})
}

func (m *RunManager) update(id string, fn func(*Run)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.runs[id]; ok {
		fn(r)
	}
}
