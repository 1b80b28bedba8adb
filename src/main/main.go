package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/GouthamSPC/Screenshot2/src/config"
)

// version is set at build time via ldflags.
var version = "dev"

func init() {
	// The tray and the hotkey hook expect to stay on the main OS thread.
	runtime.LockOSThread()
}

func main() {
	root := newRootCmd()
	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "screenshot2",
		Short: "Capture screenshots into an evidence document with a global hotkey",
		Long: `screenshot2 binds a global hotkey that captures one, several or all monitors
and appends each image with a caption to a Word document. On stop the document
is saved and can be mirrored into a spreadsheet and converted to PDF.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default: ./screenshot2.yaml or ~/.config/screenshot2/screenshot2.yaml)")

	cmd.AddCommand(newCaptureCmd(opts), newMonitorsCmd(opts), newConvertCmd(opts))
	return cmd
}

// flagKeys maps command-line flags to configuration keys. Only flags the
// user changed override the file and environment.
var flagKeys = map[string]string{
	"hotkey":         config.KeyHotkey,
	"folder":         config.KeyOutputFolder,
	"case":           config.KeyCaseName,
	"doc-version":    config.KeyVersion,
	"mode":           config.KeyMode,
	"monitor":        config.KeyMonitor,
	"monitors":       config.KeyMonitors,
	"timestamp":      config.KeyTimestamp,
	"auto-increment": config.KeyAutoIncrement,
	"increment-step": config.KeyIncrementStep,
	"delete-images":  config.KeyDeleteImages,
	"spreadsheet":    config.KeySpreadsheet,
	"pdf":            config.KeyPDF,
	"pdf-converter":  config.KeyPDFConverter,
	"clipboard":      config.KeyCopyToClipboard,
	"tray":           config.KeyTray,
	"log-file":       config.KeyEnableFileLogging,
}

func overridesFromFlags(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = f.Value.String()
	}
	return overrides
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ConfigFile: opts.configFile,
		Overrides:  overridesFromFlags(cmd),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
