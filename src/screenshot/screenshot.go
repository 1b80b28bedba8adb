package screenshot

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/kbinani/screenshot"
)

var (
	ErrInvalidRegion = errors.New("invalid region")
	ErrNoDisplays    = errors.New("no active displays found")
)

// Region represents a screen region to capture, in virtual-desktop coordinates.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Rect returns the region as an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Display is a snapshot of one active display's geometry.
type Display struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
}

// Region returns the display geometry as a capture region.
func (d Display) Region() Region {
	return Region{X: d.X, Y: d.Y, Width: d.Width, Height: d.Height}
}

// Displays enumerates the active displays in the order reported by the OS.
func Displays() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoDisplays
	}
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		b := screenshot.GetDisplayBounds(i)
		displays = append(displays, Display{
			Index:  i,
			X:      b.Min.X,
			Y:      b.Min.Y,
			Width:  b.Dx(),
			Height: b.Dy(),
		})
	}
	return displays, nil
}

// CaptureFunc grabs the pixels of a rectangle of the virtual desktop.
type CaptureFunc func(bounds image.Rectangle) (*image.RGBA, error)

// Sink captures regions and writes them as PNG files.
type Sink struct {
	capture CaptureFunc
}

// NewSink returns a sink backed by the platform screen grabber.
func NewSink() *Sink {
	return &Sink{capture: screenshot.CaptureRect}
}

// NewSinkWithCapture returns a sink using the given capture function.
func NewSinkWithCapture(capture CaptureFunc) *Sink {
	return &Sink{capture: capture}
}

// Save captures region and writes it to path, creating the parent directory if needed.
func (s *Sink) Save(region Region, path string) error {
	if region.Width <= 0 || region.Height <= 0 {
		return fmt.Errorf("%w: width=%d, height=%d", ErrInvalidRegion, region.Width, region.Height)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	img, err := s.capture(region.Rect())
	if err != nil {
		return fmt.Errorf("failed to capture region: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	log.Printf("Saved %dx%d capture to %s", region.Width, region.Height, path)
	return nil
}
