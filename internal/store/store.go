package store

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

type frameFile interface {
	io.Writer
	Sync() error
	Close() error
}

// createFile opens the temporary frame file; swapped in tests.
var createFile = func(path string) (frameFile, error) {
	return os.Create(path)
}

// Store keeps the last rendered frame on disk. The encoding follows the file
// extension: .png, anything else is BMP.
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) ContentType() string {
	if s.isPNG() {
		return "image/png"
	}
	return "image/bmp"
}

func (s *Store) isPNG() bool {
	return strings.EqualFold(filepath.Ext(s.path), ".png")
}

// SaveFrame writes img next to the target and renames it into place, so a
// reader never sees a partial frame.
func (s *Store) SaveFrame(img image.Image) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create frame dir: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	file, err := createFile(tmpPath)
	if err != nil {
		return err
	}

	if s.isPNG() {
		err = png.Encode(file, img)
	} else {
		err = bmp.Encode(file, img)
	}
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync frame: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close frame: %w", err)
	}

	return os.Rename(tmpPath, s.path)
}

// Load returns the last saved frame, decoded.
func (s *Store) Load() (image.Image, error) {
	file, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if s.isPNG() {
		return png.Decode(file)
	}
	return bmp.Decode(file)
}
