package worker

import (
	"regexp"
	"strconv"
	"strings"
)

// EventKind identifies a decoded diagnostic-line variant.
type EventKind int

const (
	// EventLog is anything that matched no tag; inert, logged only.
	EventLog EventKind = iota
	// EventReady is the startup sentinel.
	EventReady
	// EventStatus carries a human-readable status message with no value.
	EventStatus
	// EventProgress carries a direct normalized progress value.
	EventProgress
	// EventStage carries a stage/step counter pair.
	EventStage
	// EventEnhancedPrompt is the side-channel enhanced prompt capture.
	EventEnhancedPrompt
	// EventDownload is a model/weight download meter.
	EventDownload
	// EventWorkerError is an ERROR: tagged line from the worker.
	EventWorkerError
)

// Event is one decoded diagnostic frame.
type Event struct {
	Kind    EventKind
	Message string
	// Normalized [0,1] value for EventProgress.
	Value float64
	// Stage counters for EventStage.
	Stage, Step, Total int
	// Percent in [0,100] for EventDownload; -1 when the line carried no
	// usable figure.
	Percent float64
}

// readySentinel marks the worker's startup milestone on stderr.
const readySentinel = "SERVER_READY"

var (
	stageRe = regexp.MustCompile(`^STAGE:(\d+):STEP:(\d+):(\d+):(.*)$`)
	// tqdm-style meters: a percentage, "current/total" counts, and
	// optionally a byte fraction with K/M/G suffixes.
	percentRe  = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	byteFracRe = regexp.MustCompile(`(\d+(?:\.\d+)?)([KMG])i?B?/(\d+(?:\.\d+)?)([KMG])i?B?`)
	countRe    = regexp.MustCompile(`\b(\d+)/(\d+)\b`)
)

// DecodeDiagnosticLine classifies one stderr frame. Tags are case-sensitive
// except the lowercase "enhanced prompt:" form.
func DecodeDiagnosticLine(line string) Event {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == readySentinel:
		return Event{Kind: EventReady}
	case strings.HasPrefix(line, "STATUS:"):
		return Event{Kind: EventStatus, Message: strings.TrimSpace(line[len("STATUS:"):])}
	case strings.HasPrefix(line, "PROGRESS:"):
		return decodeProgress(line[len("PROGRESS:"):])
	case strings.HasPrefix(line, "STAGE:"):
		if m := stageRe.FindStringSubmatch(line); m != nil {
			stage, _ := strconv.Atoi(m[1])
			step, _ := strconv.Atoi(m[2])
			total, _ := strconv.Atoi(m[3])
			return Event{Kind: EventStage, Stage: stage, Step: step, Total: total, Message: strings.TrimSpace(m[4])}
		}
		return Event{Kind: EventLog, Message: line}
	case strings.HasPrefix(line, "ENHANCED_PROMPT:"):
		return Event{Kind: EventEnhancedPrompt, Message: strings.TrimSpace(line[len("ENHANCED_PROMPT:"):])}
	case hasFoldPrefix(line, "enhanced prompt:"):
		return Event{Kind: EventEnhancedPrompt, Message: strings.TrimSpace(line[len("enhanced prompt:"):])}
	case strings.HasPrefix(line, "ERROR:"):
		return Event{Kind: EventWorkerError, Message: strings.TrimSpace(line[len("ERROR:"):])}
	case strings.HasPrefix(line, "DOWNLOAD:"):
		return decodeDownload(strings.TrimSpace(line[len("DOWNLOAD:"):]))
	case looksLikeDownloadMeter(trimmed):
		return decodeDownload(trimmed)
	default:
		return Event{Kind: EventLog, Message: line}
	}
}

func decodeProgress(payload string) Event {
	parts := strings.SplitN(payload, ":", 2)
	v, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Event{Kind: EventLog, Message: "PROGRESS:" + payload}
	}
	// Workers report either a fraction or a percentage.
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	ev := Event{Kind: EventProgress, Value: v}
	if len(parts) == 2 {
		ev.Message = strings.TrimSpace(parts[1])
	}
	return ev
}

// looksLikeDownloadMeter detects free-text tqdm output that leaks onto
// stderr during weight downloads.
func looksLikeDownloadMeter(line string) bool {
	if strings.Contains(line, "%|") {
		return true
	}
	if strings.HasPrefix(line, "Fetching ") && percentRe.MatchString(line) {
		return true
	}
	return byteFracRe.MatchString(line) && percentRe.MatchString(line)
}

func decodeDownload(payload string) Event {
	ev := Event{Kind: EventDownload, Message: payload, Percent: -1}
	if m := percentRe.FindStringSubmatch(payload); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.Percent = clampPercent(v)
			return ev
		}
	}
	if m := byteFracRe.FindStringSubmatch(payload); m != nil {
		cur, err1 := strconv.ParseFloat(m[1], 64)
		total, err2 := strconv.ParseFloat(m[3], 64)
		if err1 == nil && err2 == nil {
			cur *= unitMultiplier(m[2])
			total *= unitMultiplier(m[4])
			if total > 0 {
				ev.Percent = clampPercent(cur / total * 100)
				return ev
			}
		}
	}
	if m := countRe.FindStringSubmatch(payload); m != nil {
		cur, _ := strconv.ParseFloat(m[1], 64)
		total, _ := strconv.ParseFloat(m[2], 64)
		if total > 0 {
			ev.Percent = clampPercent(cur / total * 100)
		}
	}
	return ev
}

func unitMultiplier(u string) float64 {
	switch u {
	case "K":
		return 1 << 10
	case "M":
		return 1 << 20
	case "G":
		return 1 << 30
	}
	return 1
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
