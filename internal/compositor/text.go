package compositor

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	LargeFontSize = 48
	SmallFontSize = 20
)

type Fonts struct {
	Large font.Face
	Small font.Face
}

// LoadFonts parses a TrueType/OpenType file, or the embedded Go Regular font
// when path is empty.
func LoadFonts(path string) (Fonts, error) {
	data := goregular.TTF
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Fonts{}, fmt.Errorf("read font: %w", err)
		}
		data = b
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return Fonts{}, fmt.Errorf("parse font: %w", err)
	}

	large, err := opentype.NewFace(f, &opentype.FaceOptions{Size: LargeFontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return Fonts{}, fmt.Errorf("large face: %w", err)
	}
	small, err := opentype.NewFace(f, &opentype.FaceOptions{Size: SmallFontSize, DPI: 72, Hinting: font.HintingFull})
	if err != nil {
		return Fonts{}, fmt.Errorf("small face: %w", err)
	}
	return Fonts{Large: large, Small: small}, nil
}

// FindFont returns the first TrueType font under <assetsDir>/fonts, or ""
// when there is none.
func FindFont(assetsDir string) string {
	matches, _ := filepath.Glob(filepath.Join(assetsDir, "fonts", "*.ttf"))
	if len(matches) == 0 {
		return ""
	}
	return matches[0]
}

// BasicFonts uses the fixed 7x13 bitmap face for both sizes.
func BasicFonts() Fonts {
	return Fonts{Large: basicfont.Face7x13, Small: basicfont.Face7x13}
}

// TextDrawer renders a string with its top-left corner at origin.
type TextDrawer interface {
	DrawText(dst draw.Image, origin image.Point, face font.Face, s string)
}

type FaceDrawer struct{}

func (FaceDrawer) DrawText(dst draw.Image, origin image.Point, face font.Face, s string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(Ink),
		Face: face,
		Dot:  fixed.P(origin.X, origin.Y).Add(fixed.Point26_6{Y: face.Metrics().Ascent}),
	}
	d.DrawString(s)
}
