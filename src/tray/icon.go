package tray

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"runtime"
)

const iconSize = 32

var (
	frameColor = color.RGBA{0x00, 0x78, 0xd4, 0xff}
	lensColor  = color.RGBA{0x33, 0x33, 0x33, 0xff}
)

// iconPNG draws a camera-style glyph: a framed body with a round lens.
func iconPNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
	for y := 8; y < 27; y++ {
		for x := 3; x < 29; x++ {
			if y < 10 || y > 24 || x < 5 || x > 26 {
				img.Set(x, y, frameColor)
			}
		}
	}
	for y := 5; y < 8; y++ {
		for x := 11; x < 21; x++ {
			img.Set(x, y, frameColor)
		}
	}
	const cx, cy, r = 16, 17, 5
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			if (x-cx)*(x-cx)+(y-cy)*(y-cy) <= r*r {
				img.Set(x, y, lensColor)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapICO embeds PNG data in a single-image ICO container, which the Windows
// tray requires.
func wrapICO(pngData []byte, size int) []byte {
	var buf bytes.Buffer
	// ICONDIR: reserved, type 1 (icon), 1 image.
	_ = binary.Write(&buf, binary.LittleEndian, [3]uint16{0, 1, 1})
	dim := byte(size)
	if size >= 256 {
		dim = 0
	}
	buf.Write([]byte{dim, dim, 0, 0})
	// planes, bit count, data size, data offset (6 + 16).
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint16{1, 32})
	_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{uint32(len(pngData)), 22})
	buf.Write(pngData)
	return buf.Bytes()
}

// Icon returns the tray icon in the format the current platform expects.
func Icon() ([]byte, error) {
	data, err := iconPNG()
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" {
		return wrapICO(data, iconSize), nil
	}
	return data, nil
}
