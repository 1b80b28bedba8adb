// Package status prints the user-visible status line and keeps the last one
// for the tray tooltip.
package status

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/GouthamSPC/Screenshot2/src/logutil"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) prefix() string {
	switch l {
	case LevelWarn:
		return "Warning"
	case LevelError:
		return "Error"
	default:
		return "Status"
	}
}

// Line is one reported status message.
type Line struct {
	Level Level
	Text  string
	Time  time.Time
}

func (l Line) String() string {
	return l.Level.prefix() + ": " + l.Text
}

// Reporter writes status lines to out and to the log. Errors can also be
// raised as desktop alerts.
type Reporter struct {
	mu        sync.Mutex
	out       io.Writer
	now       func() time.Time
	last      Line
	listeners []func(Line)
	alerts    bool
}

// New returns a reporter writing to out, or os.Stdout when out is nil.
func New(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{out: out, now: time.Now, last: Line{Text: "Ready"}}
}

// EnableAlerts turns desktop alerts for errors on or off.
func (r *Reporter) EnableAlerts(on bool) {
	r.mu.Lock()
	r.alerts = on
	r.mu.Unlock()
}

// OnLine registers fn to receive every reported line.
func (r *Reporter) OnLine(fn func(Line)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Last returns the most recent line.
func (r *Reporter) Last() Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reporter) Info(format string, args ...any) { r.report(LevelInfo, format, args...) }
func (r *Reporter) Warn(format string, args ...any) { r.report(LevelWarn, format, args...) }
func (r *Reporter) Error(format string, args ...any) { r.report(LevelError, format, args...) }

func (r *Reporter) report(level Level, format string, args ...any) {
	line := Line{Level: level, Text: logutil.Sanitize(fmt.Sprintf(format, args...)), Time: r.now()}

	r.mu.Lock()
	r.last = line
	listeners := append([]func(Line)(nil), r.listeners...)
	alerts := r.alerts
	fmt.Fprintln(r.out, line.String())
	r.mu.Unlock()

	log.Print(line.String())
	for _, fn := range listeners {
		fn(line)
	}
	if alerts && level == LevelError {
		go func() {
			if err := showAlert("Screenshot2", line.Text); err != nil {
				log.Printf("Failed to show alert: %v", err)
			}
		}()
	}
}
