// Package progress maps the worker's heterogeneous progress signals onto a
// single normalized [0,1] bar. The worker's own step counters do not span the
// full user-visible range (weight download, decoding and saving also consume
// wall-clock time), so each macro-phase gets a fixed band.
package progress

import (
	"fmt"
	"strings"
)

// Band boundaries of the fixed schedule.
const (
	// Model/weight download occupies a small reserved band at the start.
	DownloadLow  = 0.01
	DownloadHigh = 0.08

	stage1Base = 0.1
	stage2Base = 0.5
	stageSpan  = 0.4
)

// Stage converts a stage/step counter into the scheduled progress value and
// its display message. Stage 1 generates at half resolution, stage 2 refines
// at full resolution; unknown stages fall back to the stage-2 band so the bar
// never jumps backwards.
func Stage(stage, step, total int) (float64, string) {
	if total <= 0 {
		total = 1
	}
	frac := float64(step) / float64(total)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	switch stage {
	case 1:
		return stage1Base + stageSpan*frac,
			fmt.Sprintf("Stage 1 (%d/%d): Generating at half resolution", step, total)
	case 2:
		return stage2Base + stageSpan*frac,
			fmt.Sprintf("Stage 2 (%d/%d): Refining at full resolution", step, total)
	default:
		return stage2Base + stageSpan*frac,
			fmt.Sprintf("Stage %d (%d/%d)", stage, step, total)
	}
}

// statusAnchors bucket free-text STATUS messages into fixed progress values.
// Best-effort UX smoothing, not exact; first matching substring wins.
var statusAnchors = []struct {
	substr string
	value  float64
}{
	{"Loading", 0.08},
	{"Stage 2", 0.5},
	{"Upsampling", 0.5},
	{"Decoding", 0.9},
	{"Saving", 0.95},
}

// statusDefault anchors any STATUS message that matches no bucket.
const statusDefault = 0.05

// StatusAnchor returns the heuristic progress anchor for a STATUS message.
func StatusAnchor(msg string) float64 {
	for _, a := range statusAnchors {
		if strings.Contains(msg, a.substr) {
			return a.value
		}
	}
	return statusDefault
}

// Download maps a download percentage in [0,100] into the reserved download
// band. A negative percent (meter with no usable figure) pins to the band
// floor.
func Download(percent float64) float64 {
	if percent < 0 {
		return DownloadLow
	}
	if percent > 100 {
		percent = 100
	}
	return DownloadLow + (DownloadHigh-DownloadLow)*percent/100
}
