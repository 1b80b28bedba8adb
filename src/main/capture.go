package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GouthamSPC/Screenshot2/src/clipboard"
	"github.com/GouthamSPC/Screenshot2/src/config"
	"github.com/GouthamSPC/Screenshot2/src/eventloop"
	"github.com/GouthamSPC/Screenshot2/src/export"
	"github.com/GouthamSPC/Screenshot2/src/hotkey"
	"github.com/GouthamSPC/Screenshot2/src/logutil"
	"github.com/GouthamSPC/Screenshot2/src/region"
	"github.com/GouthamSPC/Screenshot2/src/session"
	"github.com/GouthamSPC/Screenshot2/src/status"
	"github.com/GouthamSPC/Screenshot2/src/tray"
	"github.com/GouthamSPC/Screenshot2/src/worker"
)

type captureOptions struct {
	appendPath string
}

func newCaptureCmd(root *rootOptions) *cobra.Command {
	opts := &captureOptions{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Start a capture session bound to the global hotkey",
		Long: `capture starts a session on a new document ({folder}/{case}_{version}.docx)
or, with --append, on an existing one. Each hotkey press captures the selected
monitors. Type commands on stdin while it runs:

  d <text>   set the description used in captions and filenames
  c          capture now
  s          stop and save the document
  n          start a new document after a stop
  a <path>   append to an existing document after a stop
  p          convert the last saved document to PDF
  q          stop, save and quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root)
			if err != nil {
				return err
			}
			return runCapture(cmd, cfg, *opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.appendPath, "append", "", "append to this existing .docx instead of starting a new document")
	f.String("hotkey", hotkey.Default, "global hotkey, e.g. home or ctrl+alt+s")
	f.StringP("folder", "o", "", "output folder for the document and screenshots")
	f.String("case", session.DefaultCaseName, "case name used in file names")
	f.String("doc-version", session.DefaultVersion, "document version used in file names")
	f.String("mode", "single", "capture mode: single, all or multiple")
	f.Int("monitor", 1, "monitor number captured in single mode")
	f.String("monitors", "", "comma-separated monitor numbers captured in multiple mode")
	f.Bool("timestamp", false, "append a timestamp to the description")
	f.Bool("auto-increment", true, "advance the screenshot counter after each capture")
	f.Int("increment-step", 1, "counter increment per capture")
	f.Bool("delete-images", false, "delete the screenshots after saving")
	f.Bool("spreadsheet", false, "also write a spreadsheet with the images")
	f.Bool("pdf", false, "convert new documents to PDF on stop")
	f.String("pdf-converter", "soffice", "office binary used for PDF conversion")
	f.Bool("clipboard", false, "copy each screenshot to the clipboard")
	f.Bool("tray", false, "show a system tray menu")
	f.Bool("log-file", false, "write a debug log to "+logutil.LogFileName)
	return cmd
}

func runCapture(cmd *cobra.Command, cfg *config.Config, opts captureOptions) error {
	logutil.Setup(cfg.EnableFileLogging)
	enableDPIAwareness()
	if cfg.ConfigFileUsed != "" {
		log.Printf("Using config file: %s", cfg.ConfigFileUsed)
	}

	ctx := cmd.Context()
	reporter := status.New(cmd.OutOrStdout())
	reporter.EnableAlerts(cfg.Tray)

	pool := worker.New(1)
	defer pool.Close()

	sessionOpts := session.Options{
		Converter: export.NewOfficeConverter(cfg.PDFConverter),
		Reporter:  reporter,
	}
	if cfg.CopyToClipboard {
		if err := clipboard.Init(); err != nil {
			reporter.Warn("Clipboard unavailable: %v", err)
		} else {
			sessionOpts.OnCaptured = func(path string) {
				pool.Submit(ctx, "clipboard "+filepath.Base(path), func(context.Context) error {
					return clipboard.WriteImage(path)
				}, nil)
			}
		}
	}

	tracker := session.New(cfg.SessionSettings(), sessionOpts)
	if opts.appendPath != "" {
		if err := tracker.AppendToExisting(opts.appendPath); err != nil {
			return err
		}
	} else if err := tracker.StartNew(cfg.OutputFolder, cfg.CaseName, cfg.Version); err != nil {
		return err
	}

	loop := eventloop.New(tracker, eventloop.NewSession{
		Folder:   cfg.OutputFolder,
		CaseName: cfg.CaseName,
		Version:  cfg.Version,
	})

	keys := hotkey.NewManager()
	if err := keys.Bind(cfg.Hotkey, loop.HotkeyPressed); err != nil {
		_, _ = tracker.Stop(context.WithoutCancel(ctx))
		return err
	}
	defer keys.Unbind()

	fmt.Fprintf(cmd.OutOrStdout(), "Press %s to capture %s. Type s to stop and save, q to quit.\n", keys.Active(), describeMode(cfg))
	go loop.ReadConsole(ctx, cmd.InOrStdin(), cmd.ErrOrStderr())

	var err error
	if cfg.Tray {
		err = runWithTray(ctx, loop, reporter)
	} else {
		err = loop.Run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runWithTray keeps the tray on the calling goroutine and the loop on its own.
func runWithTray(ctx context.Context, loop *eventloop.Loop, reporter *status.Reporter) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- loop.Run(ctx)
		tray.Quit()
	}()

	reporter.OnLine(func(l status.Line) { tray.UpdateTooltip(l.String()) })
	post := func(kind eventloop.Kind) func() {
		return func() { loop.Post(eventloop.Command{Kind: kind}) }
	}
	tray.Run(tray.Menu{
		Title: "Screenshot2",
		Items: []tray.Item{
			{Title: "Capture now", Tooltip: "Capture the selected monitors", OnClick: post(eventloop.Capture)},
			{Title: "Stop and save", Tooltip: "Save the document and end the session", OnClick: post(eventloop.Stop)},
			{Title: "Start new document", Tooltip: "Begin a new session", OnClick: post(eventloop.StartNew)},
			{Title: "Convert to PDF", Tooltip: "Convert the last saved document", OnClick: post(eventloop.ConvertPDF)},
		},
		OnQuit: post(eventloop.Quit),
	}, nil)

	// The tray can also close on its own; make sure the loop follows.
	loop.Post(eventloop.Command{Kind: eventloop.Quit})
	return <-errCh
}

func describeMode(cfg *config.Config) string {
	switch cfg.Mode {
	case region.ModeAll:
		return "all monitors"
	case region.ModeMultiple:
		return fmt.Sprintf("monitors %v", cfg.Monitors)
	default:
		return fmt.Sprintf("monitor %d", cfg.Monitor)
	}
}
