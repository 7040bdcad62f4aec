package panel

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var ErrPlaneSize = errors.New("plane size mismatch")

// Panel is a two-plane e-paper display. Dark pixels (< 128) are inked; on
// the accent plane they are inked in the accent color.
type Panel interface {
	Clear() error
	Display(primary, accent *image.Gray) error
	Sleep() error
	Close() error
}

// CheckPlanes verifies both planes match the panel resolution. A nil accent
// plane is allowed and means no accent.
func CheckPlanes(primary, accent *image.Gray, width, height int) error {
	if primary == nil {
		return fmt.Errorf("%w: no primary plane", ErrPlaneSize)
	}
	if primary.Bounds().Dx() != width || primary.Bounds().Dy() != height {
		return fmt.Errorf("%w: primary is %v, panel is %dx%d", ErrPlaneSize, primary.Bounds().Size(), width, height)
	}
	if accent != nil && accent.Bounds().Size() != primary.Bounds().Size() {
		return fmt.Errorf("%w: accent is %v, primary is %v", ErrPlaneSize, accent.Bounds().Size(), primary.Bounds().Size())
	}
	return nil
}

// Pack converts a plane to 1 bit per pixel, rows MSB first, with the bit set
// for light pixels. Rows are padded to whole bytes.
func Pack(img *image.Gray) []byte {
	b := img.Bounds()
	stride := (b.Dx() + 7) / 8
	buf := make([]byte, stride*b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := buf[y*stride : (y+1)*stride]
		for x := 0; x < b.Dx(); x++ {
			if img.GrayAt(b.Min.X+x, b.Min.Y+y).Y >= 0x80 {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
	}
	return buf
}

var accentInk = color.RGBA{R: 0xd0, G: 0x10, B: 0x10, A: 0xff}

// Preview merges both planes into one color image, accent over primary.
func Preview(primary, accent *image.Gray) image.Image {
	b := primary.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if accent != nil && accent.GrayAt(accent.Bounds().Min.X+x, accent.Bounds().Min.Y+y).Y < 0x80 {
				out.SetRGBA(x, y, accentInk)
				continue
			}
			g := primary.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			out.SetRGBA(x, y, color.RGBA{R: g, G: g, B: g, A: 0xff})
		}
	}
	return out
}
