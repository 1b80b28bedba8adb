package eventloop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/GouthamSPC/Screenshot2/src/logutil"
	"github.com/GouthamSPC/Screenshot2/src/session"
)

// Kind identifies a command posted to the loop.
type Kind int

const (
	Capture Kind = iota
	Describe
	Stop
	ConvertPDF
	StartNew
	Append
	Quit
)

func (k Kind) String() string {
	switch k {
	case Capture:
		return "capture"
	case Describe:
		return "describe"
	case Stop:
		return "stop"
	case ConvertPDF:
		return "convert-pdf"
	case StartNew:
		return "start"
	case Append:
		return "append"
	case Quit:
		return "quit"
	default:
		return "unknown"
	}
}

// Command is one request for the session owner. Arg carries the description
// for Describe and the document path for Append.
type Command struct {
	Kind Kind
	Arg  string
}

// Tracker is the session state the loop drives.
type Tracker interface {
	State() session.State
	HasDocument() bool
	StartNew(folder, caseName, version string) error
	AppendToExisting(path string) error
	SetDescription(desc string)
	Trigger(ctx context.Context) (session.TriggerResult, error)
	Stop(ctx context.Context) (session.StopReport, error)
	ConvertToPDF(ctx context.Context) (string, error)
}

// NewSession holds the arguments used when a StartNew command arrives.
type NewSession struct {
	Folder   string
	CaseName string
	Version  string
}

// Loop is the single goroutine that owns the tracker. Hotkeys, tray clicks
// and console input only post into it.
type Loop struct {
	tracker  Tracker
	start    NewSession
	hotkeyCh chan struct{}
	commands chan Command
}

// New creates a loop around tracker.
func New(tracker Tracker, start NewSession) *Loop {
	return &Loop{
		tracker:  tracker,
		start:    start,
		hotkeyCh: make(chan struct{}, 1),
		commands: make(chan Command, 8),
	}
}

// HotkeyPressed is the hotkey callback. It never blocks: a press is dropped
// while an earlier one is still queued.
func (l *Loop) HotkeyPressed() {
	select {
	case l.hotkeyCh <- struct{}{}:
	default:
		log.Printf("Hotkey press dropped: capture already queued")
	}
}

// Post queues cmd and reports whether it was accepted.
func (l *Loop) Post(cmd Command) bool {
	select {
	case l.commands <- cmd:
		return true
	default:
		log.Printf("Command %s dropped: queue full", cmd.Kind)
		return false
	}
}

// Run processes hotkey presses and commands until ctx is cancelled or a Quit
// command arrives. An active session is stopped and saved before returning.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown(context.WithoutCancel(ctx))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.hotkeyCh:
			l.capture(ctx)
		case cmd := <-l.commands:
			if cmd.Kind == Quit {
				log.Printf("Quit requested")
				return nil
			}
			l.handle(ctx, cmd)
		}
	}
}

func (l *Loop) capture(ctx context.Context) {
	res, err := l.tracker.Trigger(ctx)
	switch {
	case errors.Is(err, session.ErrNotActive):
		log.Printf("Capture ignored: no active session")
	case err != nil:
		log.Printf("Capture failed: %v", err)
	default:
		log.Printf("Capture %d produced %d images (%d errors)", res.Counter, len(res.Records), len(res.Errors))
	}
}

func (l *Loop) handle(ctx context.Context, cmd Command) {
	log.Printf("Command: %s %q", cmd.Kind, logutil.Sanitize(cmd.Arg))
	var err error
	switch cmd.Kind {
	case Capture:
		l.capture(ctx)
	case Describe:
		l.tracker.SetDescription(cmd.Arg)
	case Stop:
		_, err = l.tracker.Stop(ctx)
	case ConvertPDF:
		_, err = l.tracker.ConvertToPDF(ctx)
	case StartNew:
		err = l.tracker.StartNew(l.start.Folder, l.start.CaseName, l.start.Version)
	case Append:
		err = l.tracker.AppendToExisting(cmd.Arg)
	default:
		err = fmt.Errorf("unknown command %d", cmd.Kind)
	}
	if err != nil {
		log.Printf("Command %s failed: %v", cmd.Kind, err)
	}
}

// shutdown saves a document that is still held, whether its session is
// active or an earlier save failed.
func (l *Loop) shutdown(ctx context.Context) {
	if l.tracker.State() != session.Active && !l.tracker.HasDocument() {
		return
	}
	log.Printf("Saving document before exit")
	if _, err := l.tracker.Stop(ctx); err != nil {
		log.Printf("Failed to save document on exit, unsaved captures are lost: %v", err)
	}
}

// ParseCommand reads one console line: "d <text>", "s", "c", "p", "n",
// "a <path>" or "q".
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, errors.New("empty command")
	}
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(verb) {
	case "d", "desc", "description":
		return Command{Kind: Describe, Arg: arg}, nil
	case "s", "stop":
		return Command{Kind: Stop}, nil
	case "c", "capture":
		return Command{Kind: Capture}, nil
	case "p", "pdf":
		return Command{Kind: ConvertPDF}, nil
	case "n", "new":
		return Command{Kind: StartNew}, nil
	case "a", "append":
		if arg == "" {
			return Command{}, errors.New("append needs a document path")
		}
		return Command{Kind: Append, Arg: arg}, nil
	case "q", "quit", "exit":
		return Command{Kind: Quit}, nil
	default:
		return Command{}, fmt.Errorf("unknown command %q", verb)
	}
}

// ReadConsole posts one command per input line until r is exhausted or ctx
// is done. Unparsable lines are reported to errOut.
func (l *Loop) ReadConsole(ctx context.Context, r io.Reader, errOut io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			fmt.Fprintf(errOut, "%v (commands: d <text>, c, s, p, n, a <path>, q)\n", err)
			continue
		}
		if !l.Post(cmd) {
			fmt.Fprintln(errOut, "Busy, please retry")
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("Console input error: %v", err)
	}
}
