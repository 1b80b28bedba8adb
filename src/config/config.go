package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/GouthamSPC/Screenshot2/src/hotkey"
	"github.com/GouthamSPC/Screenshot2/src/region"
	"github.com/GouthamSPC/Screenshot2/src/session"
)

const (
	EnvPrefix  = "SCREENSHOT2"
	EnvFileVar = "SCREENSHOT2_ENV"
	ConfigName = "screenshot2"
)

// Keys accepted in screenshot2.yaml, as SCREENSHOT2_<KEY> environment
// variables and as LoadOptions overrides.
const (
	KeyHotkey            = "hotkey"
	KeyOutputFolder      = "output_folder"
	KeyCaseName          = "case_name"
	KeyVersion           = "version"
	KeyMode              = "mode"
	KeyMonitor           = "monitor"
	KeyMonitors          = "monitors"
	KeyTimestamp         = "timestamp"
	KeyAutoIncrement     = "auto_increment"
	KeyIncrementStep     = "increment_step"
	KeyDeleteImages      = "delete_images"
	KeySpreadsheet       = "spreadsheet"
	KeyPDF               = "pdf"
	KeyPDFConverter      = "pdf_converter"
	KeyCopyToClipboard   = "copy_to_clipboard"
	KeyEnableFileLogging = "enable_file_logging"
	KeyTray              = "tray"
)

var defaults = map[string]any{
	KeyHotkey:            hotkey.Default,
	KeyOutputFolder:      "",
	KeyCaseName:          session.DefaultCaseName,
	KeyVersion:           session.DefaultVersion,
	KeyMode:              "single",
	KeyMonitor:           1,
	KeyMonitors:          "",
	KeyTimestamp:         false,
	KeyAutoIncrement:     true,
	KeyIncrementStep:     1,
	KeyDeleteImages:      false,
	KeySpreadsheet:       false,
	KeyPDF:               false,
	KeyPDFConverter:      "soffice",
	KeyCopyToClipboard:   false,
	KeyEnableFileLogging: false,
	KeyTray:              false,
}

type LoadOptions struct {
	// ConfigFile is an explicit YAML file; it must exist when set.
	ConfigFile string
	// Overrides win over every other source, e.g. changed CLI flags.
	Overrides map[string]any
}

// Config holds the resolved settings. Monitor numbers are 1-based as shown
// to the user.
type Config struct {
	Hotkey            string
	OutputFolder      string
	CaseName          string
	Version           string
	Mode              region.Mode
	Monitor           int
	Monitors          []int
	Timestamp         bool
	AutoIncrement     bool
	IncrementStep     int
	DeleteImages      bool
	Spreadsheet       bool
	PDF               bool
	PDFConverter      string
	CopyToClipboard   bool
	EnableFileLogging bool
	Tray              bool

	// ConfigFileUsed is the YAML file that was read, if any.
	ConfigFileUsed string
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) overrides
	// 2) SCREENSHOT2_* environment, including .env in the executable directory
	//    or the file named by SCREENSHOT2_ENV
	// 3) screenshot2.yaml in the working directory or ~/.config/screenshot2
	// 4) defaults
	if envPath := resolveEnvPath(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	mode, err := region.ParseMode(v.GetString(KeyMode))
	if err != nil {
		return nil, err
	}
	monitors, err := parseMonitors(v.Get(KeyMonitors))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Hotkey:            strings.TrimSpace(v.GetString(KeyHotkey)),
		OutputFolder:      strings.TrimSpace(v.GetString(KeyOutputFolder)),
		CaseName:          strings.TrimSpace(v.GetString(KeyCaseName)),
		Version:           strings.TrimSpace(v.GetString(KeyVersion)),
		Mode:              mode,
		Monitor:           v.GetInt(KeyMonitor),
		Monitors:          monitors,
		Timestamp:         v.GetBool(KeyTimestamp),
		AutoIncrement:     v.GetBool(KeyAutoIncrement),
		IncrementStep:     v.GetInt(KeyIncrementStep),
		DeleteImages:      v.GetBool(KeyDeleteImages),
		Spreadsheet:       v.GetBool(KeySpreadsheet),
		PDF:               v.GetBool(KeyPDF),
		PDFConverter:      strings.TrimSpace(v.GetString(KeyPDFConverter)),
		CopyToClipboard:   v.GetBool(KeyCopyToClipboard),
		EnableFileLogging: v.GetBool(KeyEnableFileLogging),
		Tray:              v.GetBool(KeyTray),
		ConfigFileUsed:    v.ConfigFileUsed(),
	}
	if cfg.Hotkey == "" {
		cfg.Hotkey = hotkey.Default
	}
	if cfg.Monitor < 1 {
		return nil, fmt.Errorf("%s must be 1 or greater, got %d", KeyMonitor, cfg.Monitor)
	}
	if cfg.IncrementStep < 1 {
		return nil, fmt.Errorf("%s must be 1 or greater, got %d", KeyIncrementStep, cfg.IncrementStep)
	}
	return cfg, nil
}

// SessionSettings converts the config to tracker settings with 0-based
// monitor indices.
func (c *Config) SessionSettings() session.Settings {
	monitors := make([]int, 0, len(c.Monitors))
	for _, m := range c.Monitors {
		monitors = append(monitors, m-1)
	}
	return session.Settings{
		OutputFolder:  c.OutputFolder,
		CaseName:      c.CaseName,
		Mode:          c.Mode,
		Monitor:       c.Monitor - 1,
		Monitors:      monitors,
		Timestamp:     c.Timestamp,
		AutoIncrement: c.AutoIncrement,
		IncrementStep: c.IncrementStep,
		DeleteImages:  c.DeleteImages,
		Spreadsheet:   c.Spreadsheet,
		PDF:           c.PDF,
	}
}

// parseMonitors accepts "1,3", a YAML list or an int slice.
func parseMonitors(raw any) ([]int, error) {
	var items []any
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	case []any:
		items = val
	case []int:
		for _, n := range val {
			items = append(items, n)
		}
	case []string:
		for _, s := range val {
			items = append(items, s)
		}
	default:
		items = []any{val}
	}

	monitors := make([]int, 0, len(items))
	for _, item := range items {
		n, err := cast.ToIntE(item)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid monitor number %v in %s", item, KeyMonitors)
		}
		monitors = append(monitors, n)
	}
	return monitors, nil
}

func resolveEnvPath() string {
	if execPath, err := os.Executable(); err == nil {
		exeEnv := filepath.Join(filepath.Dir(execPath), ".env")
		if _, err := os.Stat(exeEnv); err == nil {
			return exeEnv
		}
	}

	if alt := os.Getenv(EnvFileVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}
