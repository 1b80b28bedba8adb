package clipboard

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"sync"

	"golang.design/x/clipboard"
)

var (
	writeMu  sync.Mutex
	initOnce sync.Once
	initErr  error
)

// Init prepares the system clipboard. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() { initErr = clipboard.Init() })
	return initErr
}

// WriteImage places the PNG at path on the clipboard.
func WriteImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("clipboard accepts PNG only: %w", err)
	}
	if err := Init(); err != nil {
		return fmt.Errorf("clipboard unavailable: %w", err)
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtImage, data)
	return nil
}
