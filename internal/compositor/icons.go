package compositor

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
)

var ErrAssetMissing = errors.New("asset missing")

type IconSize string

const (
	IconLarge IconSize = "100x100"
	IconSmall IconSize = "50x50"
)

var iconExtensions = []string{".png", ".bmp"}

// IconPath finds <dir>/icons/<id>-<size>.png, or .bmp.
func IconPath(assetsDir, iconID string, size IconSize) (string, error) {
	base := filepath.Join(assetsDir, "icons", fmt.Sprintf("%s-%s", iconID, size))
	for _, ext := range iconExtensions {
		p := base + ext
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrAssetMissing, base)
}

// invertedMask turns an icon drawn dark on light into an alpha mask that is
// opaque where the icon has ink. Transparent pixels count as light.
func invertedMask(icon image.Image) *image.Alpha {
	b := icon.Bounds()
	mask := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := icon.At(x, y).RGBA()
			over := 0xffff - a
			gray := color.GrayModel.Convert(color.RGBA64{
				R: uint16(r + over),
				G: uint16(g + over),
				B: uint16(bl + over),
				A: 0xffff,
			}).(color.Gray)
			mask.SetAlpha(x-b.Min.X, y-b.Min.Y, color.Alpha{A: 0xff - gray.Y})
		}
	}
	return mask
}

func (c *Compositor) drawIcon(dst draw.Image, iconID string, size IconSize, origin image.Point) error {
	path, err := IconPath(c.assetsDir, iconID, size)
	if err != nil {
		return err
	}
	icon, err := decodeImage(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAssetMissing, err)
	}
	mask := invertedMask(icon)
	r := mask.Bounds().Add(origin)
	draw.DrawMask(dst, r, image.NewUniform(Ink), image.Point{}, mask, image.Point{}, draw.Over)
	return nil
}
