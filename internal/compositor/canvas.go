package compositor

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/png"
	"os"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/bmp"
)

const (
	PanelWidth  = 800
	PanelHeight = 480
)

var (
	Ink        = color.Gray{Y: 0xff}
	Background = color.Gray{Y: 0x00}
	Paper      = color.Gray{Y: 0xff}
)

// Canvas is the pair of planes handed to the panel. Black pixels on the
// accent plane are drawn in the accent color.
type Canvas struct {
	Primary *image.Gray
	Accent  *image.Gray
}

// NewCanvas copies bg into a fresh primary plane and clears the accent plane.
func NewCanvas(bg image.Image) *Canvas {
	b := bg.Bounds()
	primary := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(primary, primary.Bounds(), bg, b.Min, draw.Src)
	return &Canvas{Primary: primary, Accent: blankPlane(primary.Bounds(), Paper)}
}

// BlankCanvas is a dark canvas of the given size.
func BlankCanvas(width, height int) *Canvas {
	r := image.Rect(0, 0, width, height)
	return &Canvas{Primary: blankPlane(r, Background), Accent: blankPlane(r, Paper)}
}

func blankPlane(r image.Rectangle, c color.Gray) *image.Gray {
	img := image.NewGray(r)
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func (c *Canvas) Bounds() image.Rectangle {
	return c.Primary.Bounds()
}

// LoadCanvas opens the background asset. A missing or unreadable background
// falls back to a blank panel-sized canvas.
func LoadCanvas(path string) *Canvas {
	img, err := decodeImage(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Background unavailable, using blank canvas")
		return BlankCanvas(PanelWidth, PanelHeight)
	}
	return NewCanvas(img)
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
