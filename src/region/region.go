// Package region turns display geometries and a capture mode into the
// regions that make up one capture trigger.
package region

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/GouthamSPC/Screenshot2/src/screenshot"
)

var (
	ErrNoDisplays        = errors.New("no displays available")
	ErrNoDisplaySelected = errors.New("select at least one monitor in multiple mode")
)

// Mode selects which displays a trigger captures.
type Mode int

const (
	ModeSingle Mode = iota
	ModeAll
	ModeMultiple
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeAll:
		return "all"
	case ModeMultiple:
		return "multiple"
	default:
		return "unknown"
	}
}

// ParseMode maps a mode name to a Mode, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return ModeSingle, nil
	case "all", "stitched":
		return ModeAll, nil
	case "multiple", "multi":
		return ModeMultiple, nil
	default:
		return ModeSingle, fmt.Errorf("unknown capture mode %q", s)
	}
}

// Selection is the user's capture-mode choice. Indices are 0-based.
type Selection struct {
	Mode     Mode
	Single   int
	Multiple []int
}

// Target is one region to capture plus the naming it carries into files and captions.
type Target struct {
	Region  screenshot.Region
	Monitor int // 1-based, 0 for the stitched region
	Suffix  string
	Label   string
}

// Resolve computes the capture targets for sel. Out-of-range indices are skipped.
func Resolve(displays []screenshot.Display, sel Selection) ([]Target, error) {
	switch sel.Mode {
	case ModeAll:
		if len(displays) == 0 {
			return nil, ErrNoDisplays
		}
		return []Target{{
			Region: Bounding(displays),
			Suffix: "all_monitors",
			Label:  "All Monitors",
		}}, nil
	case ModeMultiple:
		if len(sel.Multiple) == 0 {
			return nil, ErrNoDisplaySelected
		}
		var targets []Target
		for _, idx := range ascendingUnique(sel.Multiple) {
			if idx < 0 || idx >= len(displays) {
				continue
			}
			targets = append(targets, displayTarget(displays[idx], idx))
		}
		return targets, nil
	default:
		if sel.Single < 0 || sel.Single >= len(displays) {
			return nil, nil
		}
		return []Target{displayTarget(displays[sel.Single], sel.Single)}, nil
	}
}

// Bounding returns the smallest rectangle containing every display.
// Gaps between non-contiguous displays are part of the result.
func Bounding(displays []screenshot.Display) screenshot.Region {
	if len(displays) == 0 {
		return screenshot.Region{}
	}
	minX, minY := displays[0].X, displays[0].Y
	maxX, maxY := displays[0].X+displays[0].Width, displays[0].Y+displays[0].Height
	for _, d := range displays[1:] {
		minX = min(minX, d.X)
		minY = min(minY, d.Y)
		maxX = max(maxX, d.X+d.Width)
		maxY = max(maxY, d.Y+d.Height)
	}
	return screenshot.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func displayTarget(d screenshot.Display, idx int) Target {
	n := idx + 1
	return Target{
		Region:  d.Region(),
		Monitor: n,
		Suffix:  fmt.Sprintf("monitor_%d", n),
		Label:   fmt.Sprintf("Monitor %d", n),
	}
}

func ascendingUnique(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	j := 0
	for i, v := range out {
		if i > 0 && v == out[j-1] {
			continue
		}
		out[j] = v
		j++
	}
	return out[:j]
}
