package panel

import (
	"image"

	"github.com/rs/zerolog/log"
)

// FrameSaver persists a rendered frame.
type FrameSaver interface {
	SaveFrame(img image.Image) error
}

// FilePanel stands in for the hardware: every Display writes a preview
// image instead of refreshing a panel.
type FilePanel struct {
	saver  FrameSaver
	width  int
	height int
}

func NewFilePanel(saver FrameSaver, width, height int) *FilePanel {
	return &FilePanel{saver: saver, width: width, height: height}
}

func (p *FilePanel) Clear() error {
	return nil
}

func (p *FilePanel) Display(primary, accent *image.Gray) error {
	if err := CheckPlanes(primary, accent, p.width, p.height); err != nil {
		return err
	}
	if err := p.saver.SaveFrame(Preview(primary, accent)); err != nil {
		return err
	}
	log.Info().Msg("Frame written to preview file")
	return nil
}

func (p *FilePanel) Sleep() error {
	return nil
}

func (p *FilePanel) Close() error {
	return nil
}

var _ Panel = (*FilePanel)(nil)
