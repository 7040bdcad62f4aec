package shutdown

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingPanel struct {
	calls    []string
	sleepErr error
}

func (p *recordingPanel) Clear() error { return nil }
func (p *recordingPanel) Display(_, _ *image.Gray) error { return nil }

func (p *recordingPanel) Sleep() error {
	p.calls = append(p.calls, "sleep")
	return p.sleepErr
}

func (p *recordingPanel) Close() error {
	p.calls = append(p.calls, "close")
	return nil
}

func stubExit(t *testing.T) *int {
	t.Helper()
	code := -1
	orig := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = orig })
	return &code
}

func TestShutdownSleepsAndClosesPanel(t *testing.T) {
	code := stubExit(t)
	p := &recordingPanel{}
	Register(p)

	Shutdown()

	assert.Equal(t, []string{"sleep", "close"}, p.calls)
	assert.Equal(t, 0, *code)
}

func TestShutdownWithErrorStillClosesPanel(t *testing.T) {
	code := stubExit(t)
	p := &recordingPanel{sleepErr: errors.New("busy timeout")}
	Register(p)

	ShutdownWithError(errors.New("boom"), "fatal")

	assert.Equal(t, []string{"sleep", "close"}, p.calls)
	assert.Equal(t, 1, *code)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := &recordingPanel{}
	Register(p)
	Release()
	Release()
	assert.Equal(t, []string{"sleep", "close"}, p.calls)
}
