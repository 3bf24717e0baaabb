package progress

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a thread-safe event collector; estimator callbacks can arrive
// from timer goroutines as well as the test itself.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) completeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Stage == StageComplete {
			n++
		}
	}
	return n
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// newTestEstimator returns an estimator with timers stopped and sleeps
// disabled, so ticks can be driven deterministically.
func newTestEstimator(cb Callback, opts StartOptions) *Estimator {
	e := NewEstimator(cb)
	e.sleep = func(time.Duration) {}
	e.Start(opts)
	e.Stop()
	return e
}

func TestStartResetsState(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{ItemCount: 20, Bilingual: true})

	// Dirty the state, then start a new run.
	e.Apply(EventVideoStart)
	for i := 0; i < 200; i++ {
		e.tick()
	}
	v, c, _ := e.Snapshot()
	require.Greater(t, v, 0.0)
	require.Greater(t, c, MilestonePrep)

	e.Start(StartOptions{ItemCount: 5})
	e.Stop()

	v, c, label := e.Snapshot()
	assert.Equal(t, 0.0, v)
	assert.Equal(t, MilestonePrep, c)
	assert.Equal(t, "Preparing…", label)

	done, est := e.AudioProgress()
	assert.Equal(t, 0, done)
	assert.Equal(t, minAudioEstimate, est, "small item counts floor at the minimum estimate")
}

func TestSegmentEstimate(t *testing.T) {
	assert.Equal(t, 40, estimateSegments(20, true))
	assert.Equal(t, 20, estimateSegments(20, false))
	assert.Equal(t, 10, estimateSegments(3, false))
	assert.Equal(t, 10, estimateSegments(0, true))
}

func TestInvariantsHoldAcrossAnyEventSequence(t *testing.T) {
	sequences := [][]StageEvent{
		{EventInputLoading, EventAudioSegmentDone, EventSubtitlesStart, EventVideoStart},
		{EventGenerationStart, EventGenerationEnd, EventAudioSegmentDone, EventAudioSegmentDone},
		{EventVideoStart, EventInputLoading, EventError},
		{EventError, EventError, EventSubtitlesStart},
	}

	for i, seq := range sequences {
		t.Run(fmt.Sprintf("sequence_%d", i), func(t *testing.T) {
			e := newTestEstimator(nil, StartOptions{ItemCount: 10})
			prevValue, prevCeiling := 0.0, 0.0

			for _, ev := range seq {
				e.Apply(ev)
				for j := 0; j < 25; j++ {
					e.tick()
					v, c, _ := e.Snapshot()
					assert.LessOrEqual(t, v, c, "value must not pass the ceiling")
					assert.LessOrEqual(t, c, 100.0)
					assert.GreaterOrEqual(t, v, prevValue, "value must never decrease")
					assert.GreaterOrEqual(t, c, prevCeiling, "ceiling must never decrease")
					prevValue, prevCeiling = v, c
				}
			}
		})
	}
}

func TestCeilingNeverLowered(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{})

	e.Apply(EventError)
	_, c, _ := e.Snapshot()
	require.Equal(t, errorFloor, c)

	// A later, lower milestone must not pull the ceiling back down.
	e.Apply(EventInputLoading)
	_, c, _ = e.Snapshot()
	assert.Equal(t, errorFloor, c)
}

func TestAudioMappingBoundedAndMonotonic(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{ItemCount: 10, Bilingual: true})
	e.Apply(EventGenerationEnd)

	_, prev, _ := e.Snapshot()
	for k := 1; k <= 60; k++ {
		e.Apply(EventAudioSegmentDone)
		_, c, _ := e.Snapshot()
		assert.GreaterOrEqual(t, c, MilestoneAudioStart)
		assert.LessOrEqual(t, c, MilestoneAudioEnd)
		assert.GreaterOrEqual(t, c, prev, "audio ceiling must be non-decreasing in k")
		prev = c
	}

	done, _ := e.AudioProgress()
	assert.Equal(t, 60, done)
	// Far past the estimate the mapping clamps at the audio end milestone.
	assert.Equal(t, MilestoneAudioEnd, prev)
}

func TestAudioLabelShowsCounts(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{ItemCount: 10})
	e.Apply(EventAudioSegmentDone)
	e.Apply(EventAudioSegmentDone)
	_, _, label := e.Snapshot()
	assert.Equal(t, "Synthesizing audio (2 / ~10)…", label)
}

func TestGenerationCreepCapsBelowMilestone(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{UsesGeneration: true, ItemCount: 20})
	e.Apply(EventInputLoading)
	e.Apply(EventGenerationStart)
	e.Stop() // kill the aux timer; drive the creep by hand

	for i := 0; i < 100; i++ {
		e.creepToward(generationCreepCap)
	}
	_, c, _ := e.Snapshot()
	assert.Equal(t, generationCreepCap, c)
	assert.Less(t, c, MilestoneGeneration)
}

func TestVideoCreepCapsBelowDone(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{ItemCount: 20})
	e.Apply(EventVideoStart)
	e.Stop()

	for i := 0; i < 100; i++ {
		e.creepToward(videoCreepCap)
	}
	_, c, _ := e.Snapshot()
	assert.Equal(t, videoCreepCap, c)
	assert.Less(t, c, MilestoneVideo)
}

func TestTickApproachesCeilingWithoutOvershoot(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{})
	e.Apply(EventVideoStart)

	for i := 0; i < 10000; i++ {
		e.tick()
	}
	v, c, _ := e.Snapshot()
	assert.InDelta(t, c, v, 1e-9, "value converges to the ceiling")
}

func TestFinishDrivesToHundredExactlyOnce(t *testing.T) {
	rec := &recorder{}
	e := newTestEstimator(rec.handle, StartOptions{ItemCount: 20})
	e.Apply(EventVideoStart)

	before := rec.len()
	e.Finish()
	steps := rec.len() - before
	assert.Less(t, steps, 200, "finish animation must be bounded")

	v, c, _ := e.Snapshot()
	assert.Equal(t, 100.0, v)
	assert.Equal(t, 100.0, c)
	assert.Equal(t, 1, rec.completeCount())

	// A second Finish is a no-op: no extra completion signal.
	e.Finish()
	assert.Equal(t, 1, rec.completeCount())
}

func TestStopEmitsNoCompletion(t *testing.T) {
	rec := &recorder{}
	e := NewEstimator(rec.handle)
	e.sleep = func(time.Duration) {}
	e.Start(StartOptions{ItemCount: 20})
	e.Stop()
	assert.Equal(t, 0, rec.completeCount())
}

func TestObserveSameLineTwiceIsIdempotent(t *testing.T) {
	e := newTestEstimator(nil, StartOptions{})

	require.Equal(t, EventInputLoading, e.Observe("[INFO] Using input file: sample.txt | MODE=vocab"))
	_, c1, l1 := e.Snapshot()

	require.Equal(t, EventInputLoading, e.Observe("[INFO] Using input file: sample.txt | MODE=vocab"))
	_, c2, l2 := e.Snapshot()

	assert.Equal(t, c1, c2)
	assert.Equal(t, l1, l2)
}

// Mirrors the panel's happy path: input file run, three synthesized
// segments, then the stream's done sentinel and completion.
func TestScenarioInputFileRun(t *testing.T) {
	rec := &recorder{}
	e := newTestEstimator(rec.handle, StartOptions{ItemCount: 10, Bilingual: true})

	e.Observe("[INFO] using input file sample.txt")
	_, c, label := e.Snapshot()
	assert.Equal(t, "Loading input…", label)
	assert.Equal(t, MilestoneInput, c)

	for i := 0; i < 3; i++ {
		e.Observe("[TTS] selected provider=gtts lang=en")
	}
	done, _ := e.AudioProgress()
	assert.Equal(t, 3, done)
	_, c, _ = e.Snapshot()
	assert.Greater(t, c, MilestoneAudioStart)
	assert.Less(t, c, MilestoneAudioEnd)

	e.Finish()
	v, _, _ := e.Snapshot()
	assert.Equal(t, 100.0, v)
	assert.Equal(t, 1, rec.completeCount())
}

// Mirrors the failure path: a backend error marker raises the ceiling to the
// error floor so the bar visibly advances, and completion still fires.
func TestScenarioBackendError(t *testing.T) {
	rec := &recorder{}
	e := newTestEstimator(rec.handle, StartOptions{ItemCount: 10})

	e.Observe("[INFO] Using input file: words.txt | MODE=vocab")
	e.Observe("[ERROR] FFmpeg video render failed: exit status 1")

	_, c, label := e.Snapshot()
	assert.GreaterOrEqual(t, c, errorFloor)
	assert.Equal(t, "Error", label)

	e.Finish()
	v, _, _ := e.Snapshot()
	assert.Equal(t, 100.0, v)
	assert.Equal(t, 1, rec.completeCount())
}

func TestStartCancelsPreviousTimers(t *testing.T) {
	rec := &recorder{}
	e := NewEstimator(rec.handle)
	e.sleep = func(time.Duration) {}
	e.tickInterval = time.Millisecond

	e.Start(StartOptions{ItemCount: 10})
	e.Start(StartOptions{ItemCount: 10})
	e.Stop()

	// If the first ticker survived the restart it would keep advancing the
	// bar after Stop; give it a chance to misbehave.
	v1, _, _ := e.Snapshot()
	time.Sleep(20 * time.Millisecond)
	v2, _, _ := e.Snapshot()
	assert.Equal(t, v1, v2)
}
