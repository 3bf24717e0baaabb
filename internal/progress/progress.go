package progress

import "time"

// Stage identifies which pipeline stage the backend is believed to be in.
// Stages are inferred from log text; the backend never reports them directly.
type Stage string

const (
	StagePrepare   Stage = "prepare"
	StageInput     Stage = "input"
	StageGenerate  Stage = "generate"
	StageAudio     Stage = "audio"
	StageSubtitles Stage = "subtitles"
	StageVideo     Stage = "video"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// Event carries progress information from the estimator to the renderer.
type Event struct {
	Stage        Stage
	Message      string
	Percent      float64 // 0.0–1.0
	SegmentDone  int
	SegmentTotal int
	Elapsed      time.Duration
	Error        error
	// OutputFile is set on StageComplete with the produced artifact name.
	OutputFile string
	// LogFile is the local run log path, set on StageComplete.
	LogFile string
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}
