package progress

import (
	"fmt"
	"sync"
	"time"
)

// Milestones are the fixed ceiling percentages unlocked as each backend stage
// is believed to start. Ordering is load-bearing: the ceiling only ever moves
// forward through this sequence.
const (
	MilestonePrep       = 6.0
	MilestoneInput      = 14.0
	MilestoneGeneration = 22.0
	MilestoneAudioStart = 30.0
	MilestoneAudioEnd   = 78.0
	MilestoneSubtitles  = 86.0
	MilestoneVideo      = 96.0
	MilestoneDone       = 100.0
)

// Smoothing constants, carried over from the original web panel. They are
// cosmetic: the backend never reports a true completion fraction, so these
// tune how the bar feels, not what it measures.
const (
	baseTickInterval = 180 * time.Millisecond
	auxTickInterval  = 450 * time.Millisecond
	finishInterval   = 60 * time.Millisecond

	// Each base tick closes ~6% of the remaining gap to the ceiling, with a
	// band-dependent minimum so the bar neither stalls nor jumps.
	gapFraction = 0.06
	minStepLow  = 0.10 // below lowBand
	minStepHigh = 0.03
	lowBand     = 30.0

	// Audio progress divides by estimatedTotal*1.8 so the bar under-promises
	// and cannot reach MilestoneAudioEnd before synthesis truly ends.
	audioOverestimate = 1.8
	minAudioEstimate  = 10

	// Generation has no per-item events, so the ceiling is nudged and then
	// crept toward a cap below the generation milestone.
	generationNudge    = 4.0
	generationCreepCap = 0.85 * MilestoneGeneration
	auxCreepStep       = 0.4

	// Compositing behaves the same way: ceiling parks just below the video
	// milestone and creeps toward 99% of it.
	videoLead    = 2.0
	videoCreepCap = 0.99 * MilestoneVideo

	// A backend-reported error still advances the bar to at least this value
	// so the user sees "almost there, something broke" rather than a reset.
	errorFloor = 92.0

	// Finish animation: larger steps, hard floor, done threshold.
	finishGapFraction = 0.22
	finishMinStep     = 0.35
	finishThreshold   = 99.6
)

// StartOptions configures a single run of the estimator.
type StartOptions struct {
	// UsesGeneration is true when the run invokes the LLM path instead of
	// reading a static text file.
	UsesGeneration bool
	// ItemCount is the configured number of vocabulary/scenario items.
	ItemCount int
	// Bilingual doubles the expected synthesized segment count.
	Bilingual bool
}

// Estimator turns an unordered, best-effort log stream from a long-running
// backend job into a monotonically increasing, perceptually smooth progress
// percentage. Exactly one run is tracked at a time; Start resets all state.
type Estimator struct {
	mu sync.Mutex

	cb Callback

	value   float64 // displayed percentage, 0–100, never decreases in a run
	ceiling float64 // upper bound value creeps toward, never decreases in a run
	label   string
	stage   Stage

	usesGeneration bool
	audioDone      int
	audioEstTotal  int

	started  time.Time
	finished bool

	baseStop chan struct{}
	auxStop  chan struct{}

	// test seams
	tickInterval time.Duration
	sleep        func(time.Duration)
}

// NewEstimator creates an estimator that reports changes through cb.
// A nil cb is replaced with NopCallback.
func NewEstimator(cb Callback) *Estimator {
	if cb == nil {
		cb = NopCallback
	}
	return &Estimator{
		cb:           cb,
		tickInterval: baseTickInterval,
		sleep:        time.Sleep,
	}
}

// Start resets the estimator and begins the periodic base tick. Any timers
// from a previous run are cancelled first, so starting a new run can never
// leave two tickers advancing the same bar.
func (e *Estimator) Start(opts StartOptions) {
	e.mu.Lock()
	e.stopTimersLocked()

	e.value = 0
	e.ceiling = MilestonePrep
	e.label = "Preparing…"
	e.stage = StagePrepare
	e.usesGeneration = opts.UsesGeneration
	e.audioDone = 0
	e.audioEstTotal = estimateSegments(opts.ItemCount, opts.Bilingual)
	e.started = time.Now()
	e.finished = false

	stop := make(chan struct{})
	e.baseStop = stop
	interval := e.tickInterval
	e.mu.Unlock()

	e.emit()
	go e.runTicker(interval, stop, e.tick)
}

// Stop cancels all timers without animating to 100 and without firing the
// run-finished event. Used for user-initiated cancellation.
func (e *Estimator) Stop() {
	e.mu.Lock()
	e.stopTimersLocked()
	e.mu.Unlock()
}

// Observe classifies one log line and applies the matching stage transition.
// Unrecognized lines cause no state change. It returns the classified event
// so callers can react to terminal markers themselves.
func (e *Estimator) Observe(line string) StageEvent {
	ev := Classify(line)
	e.Apply(ev)
	return ev
}

// Apply performs the stage transition for a classified event. Transitions
// are idempotent: re-raising an already-higher ceiling is a no-op.
func (e *Estimator) Apply(ev StageEvent) {
	switch ev {
	case EventNone:
		return
	case EventInputLoading:
		e.transition(StageInput, "Loading input…", MilestoneInput)
	case EventGenerationStart:
		e.mu.Lock()
		e.stage = StageGenerate
		e.label = "Generating…"
		e.raiseCeilingLocked(e.ceiling + generationNudge)
		e.startAuxLocked(generationCreepCap)
		e.mu.Unlock()
		e.emit()
	case EventGenerationEnd:
		e.mu.Lock()
		e.stopAuxLocked()
		e.stage = StageAudio
		e.label = "Preparing TTS…"
		e.raiseCeilingLocked(MilestoneAudioStart)
		e.mu.Unlock()
		e.emit()
	case EventAudioSegmentDone:
		e.mu.Lock()
		e.audioDone++
		frac := float64(e.audioDone) / max(1, float64(e.audioEstTotal)*audioOverestimate)
		if frac > 1 {
			frac = 1
		}
		e.stage = StageAudio
		e.label = fmt.Sprintf("Synthesizing audio (%d / ~%d)…", e.audioDone, e.audioEstTotal)
		e.raiseCeilingLocked(MilestoneAudioStart + frac*(MilestoneAudioEnd-MilestoneAudioStart))
		e.mu.Unlock()
		e.emit()
	case EventSubtitlesStart:
		e.mu.Lock()
		e.stopAuxLocked()
		e.mu.Unlock()
		e.transition(StageSubtitles, "Writing subtitles…", MilestoneSubtitles)
	case EventVideoStart:
		e.mu.Lock()
		e.stage = StageVideo
		e.label = "Compositing…"
		e.raiseCeilingLocked(MilestoneVideo - videoLead)
		e.startAuxLocked(videoCreepCap)
		e.mu.Unlock()
		e.emit()
	case EventError:
		e.mu.Lock()
		e.stage = StageError
		e.label = "Error"
		e.raiseCeilingLocked(errorFloor)
		e.mu.Unlock()
		e.emit()
	}
}

// Finish stops the base tick and animates the bar to 100, then fires the
// StageComplete event exactly once, even if called multiple times.
func (e *Estimator) Finish() {
	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return
	}
	e.finished = true
	e.raiseCeilingLocked(MilestoneVideo)
	e.stopTimersLocked()
	sleep := e.sleep
	e.mu.Unlock()

	for {
		e.mu.Lock()
		gap := MilestoneDone - e.value
		step := gap * finishGapFraction
		if step < finishMinStep {
			step = finishMinStep
		}
		if step > gap {
			step = gap
		}
		e.value += step
		done := e.value >= finishThreshold
		e.mu.Unlock()
		e.emit()
		if done {
			break
		}
		sleep(finishInterval)
	}

	e.mu.Lock()
	e.value = MilestoneDone
	e.ceiling = MilestoneDone
	e.stage = StageComplete
	e.label = "Done"
	e.mu.Unlock()
	e.emit()
}

// Snapshot returns the current displayed value, ceiling, and stage label.
func (e *Estimator) Snapshot() (value, ceiling float64, label string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.ceiling, e.label
}

// AudioProgress returns the synthesized segment count and the estimated total.
func (e *Estimator) AudioProgress() (done, estimated int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioDone, e.audioEstTotal
}

// tick advances value toward the ceiling by a fraction of the remaining gap.
// Called every base tick interval while a run is active.
func (e *Estimator) tick() {
	e.mu.Lock()
	if e.value < e.ceiling {
		gap := e.ceiling - e.value
		step := gap * gapFraction
		minStep := minStepHigh
		if e.value < lowBand {
			minStep = minStepLow
		}
		if step < minStep {
			step = minStep
		}
		if step > gap {
			step = gap
		}
		e.value += step
	}
	e.mu.Unlock()
	e.emit()
}

// creepToward nudges the ceiling toward cap; the aux timer that drives it
// self-cancels once the cap is reached.
func (e *Estimator) creepToward(limit float64) (reached bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ceiling >= limit {
		return true
	}
	e.raiseCeilingLocked(e.ceiling + auxCreepStep)
	if e.ceiling > limit {
		e.ceiling = limit
	}
	return e.ceiling >= limit
}

func (e *Estimator) transition(stage Stage, label string, milestone float64) {
	e.mu.Lock()
	e.stage = stage
	e.label = label
	e.raiseCeilingLocked(milestone)
	e.mu.Unlock()
	e.emit()
}

// raiseCeilingLocked raises the ceiling to target if higher, clamped to 100.
// The ceiling is never lowered within a run.
func (e *Estimator) raiseCeilingLocked(target float64) {
	if target > MilestoneDone {
		target = MilestoneDone
	}
	if target > e.ceiling {
		e.ceiling = target
	}
}

// startAuxLocked replaces any live aux creep timer with a new one capped at cap.
func (e *Estimator) startAuxLocked(limit float64) {
	e.stopAuxLocked()
	stop := make(chan struct{})
	e.auxStop = stop
	go e.runAux(stop, limit)
}

func (e *Estimator) stopAuxLocked() {
	if e.auxStop != nil {
		close(e.auxStop)
		e.auxStop = nil
	}
}

func (e *Estimator) stopTimersLocked() {
	if e.baseStop != nil {
		close(e.baseStop)
		e.baseStop = nil
	}
	e.stopAuxLocked()
}

func (e *Estimator) runTicker(interval time.Duration, stop <-chan struct{}, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			fn()
		}
	}
}

func (e *Estimator) runAux(stop <-chan struct{}, limit float64) {
	t := time.NewTicker(auxTickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if e.creepToward(limit) {
				return
			}
		}
	}
}

func (e *Estimator) emit() {
	e.mu.Lock()
	ev := Event{
		Stage:        e.stage,
		Message:      e.label,
		Percent:      e.value / 100,
		SegmentDone:  e.audioDone,
		SegmentTotal: e.audioEstTotal,
		Elapsed:      time.Since(e.started),
	}
	cb := e.cb
	e.mu.Unlock()
	cb(ev)
}

// estimateSegments guesses how many speech segments the run will synthesize.
// Bilingual runs speak every item in both languages. The floor keeps early
// audio events from swinging the bar wildly on tiny inputs.
func estimateSegments(items int, bilingual bool) int {
	n := items
	if bilingual {
		n *= 2
	}
	if n < minAudioEstimate {
		n = minAudioEstimate
	}
	return n
}
