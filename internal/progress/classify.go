package progress

import "strings"

// StageEvent is the result of classifying one backend log line.
type StageEvent int

const (
	EventNone StageEvent = iota
	EventError
	EventInputLoading
	EventGenerationStart
	EventGenerationEnd
	EventAudioSegmentDone
	EventSubtitlesStart
	EventVideoStart
)

func (ev StageEvent) String() string {
	switch ev {
	case EventError:
		return "error"
	case EventInputLoading:
		return "input-loading"
	case EventGenerationStart:
		return "generation-start"
	case EventGenerationEnd:
		return "generation-end"
	case EventAudioSegmentDone:
		return "audio-segment-done"
	case EventSubtitlesStart:
		return "subtitles-start"
	case EventVideoStart:
		return "video-start"
	default:
		return "none"
	}
}

// classifyRule matches lowercased line content. Rules are checked in order
// and the first match wins, so error markers beat everything else (an
// "[ERROR] FFmpeg video render failed" line must not count as video start).
type classifyRule struct {
	event StageEvent
	match func(line string) bool
}

func containsAny(line string, subs ...string) bool {
	for _, s := range subs {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// rules infer structured progress from the backend's human-readable log
// wording. This is heuristic and lossy by design: the backend promises no
// log format, so unmatched lines simply cause no state change.
var rules = []classifyRule{
	{EventError, func(l string) bool {
		return containsAny(l, "[error]", "[fatal]")
	}},
	{EventInputLoading, func(l string) bool {
		return strings.Contains(l, "using input file") ||
			(strings.Contains(l, "mode=") && strings.Contains(l, "level="))
	}},
	{EventGenerationStart, func(l string) bool {
		return strings.Contains(l, "requesting llm")
	}},
	{EventGenerationEnd, func(l string) bool {
		return containsAny(l, "llm returned", "returned no usable text", "no valid lines", "strict parse")
	}},
	{EventAudioSegmentDone, func(l string) bool {
		return containsAny(l, "selected provider=", "ok lang=")
	}},
	{EventSubtitlesStart, func(l string) bool {
		return containsAny(l, "srt draft written", "ass written", "using draft srt", "using external srt", "writing subtitles")
	}},
	{EventVideoStart, func(l string) bool {
		return containsAny(l, "final video", "video written", "render", "compositing", "muxing")
	}},
}

// Classify maps one free-text log line to a stage event, case-insensitively.
// Feeding the same line twice yields the same event twice; the transitions
// it drives are idempotent.
func Classify(line string) StageEvent {
	l := strings.ToLower(line)
	for _, r := range rules {
		if r.match(l) {
			return r.event
		}
	}
	return EventNone
}
