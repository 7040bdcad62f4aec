package store

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 80), B: 0x20, A: 0xff})
		}
	}
	return img
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"frame.png", "frame.bmp", "frame.PNG"} {
		t.Run(name, func(t *testing.T) {
			s := New(filepath.Join(t.TempDir(), "out", name))
			frame := testFrame()

			require.NoError(t, s.SaveFrame(frame))

			got, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, frame.Bounds(), got.Bounds())
			assert.Equal(t,
				color.RGBAModel.Convert(frame.At(3, 2)),
				color.RGBAModel.Convert(got.At(3, 2)))
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", New("/tmp/a.png").ContentType())
	assert.Equal(t, "image/bmp", New("/tmp/a.bmp").ContentType())
	assert.Equal(t, "image/bmp", New("/tmp/a").ContentType())
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "frame.png"))

	require.NoError(t, s.SaveFrame(testFrame()))
	require.NoError(t, s.SaveFrame(testFrame()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "frame.png", entries[0].Name())
}

func TestLoadMissingFrame(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "none.png")).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type failingClose struct {
	*os.File
}

func (f failingClose) Close() error {
	f.File.Close()
	return errors.New("disk full")
}

func TestSaveFailsWhenFlushFails(t *testing.T) {
	orig := createFile
	createFile = func(path string) (frameFile, error) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		return failingClose{f}, nil
	}
	t.Cleanup(func() { createFile = orig })

	dir := t.TempDir()
	s := New(filepath.Join(dir, "frame.png"))

	err := s.SaveFrame(testFrame())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
