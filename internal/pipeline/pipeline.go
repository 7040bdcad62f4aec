// Package pipeline runs render cycles: fetch from Home Assistant, compose
// the canvas and push it to the panel.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/db"
	"github.com/thatsimonsguy/hass-dash/internal/compositor"
	"github.com/thatsimonsguy/hass-dash/internal/datadog"
	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/model"
	"github.com/thatsimonsguy/hass-dash/internal/panel"
	"github.com/thatsimonsguy/hass-dash/internal/rooms"
	"github.com/thatsimonsguy/hass-dash/internal/sun"
	"github.com/thatsimonsguy/hass-dash/internal/weather"
)

const (
	SectionSun     = "sun"
	SectionWeather = "weather"
	SectionRooms   = "rooms"
	SectionCompose = "compose"
	SectionDisplay = "display"
)

type Driver struct {
	mu sync.Mutex

	upstream   hass.Opener
	localizer  *localize.Localizer
	weather    weather.Config
	rooms      []model.Room
	compositor *compositor.Compositor
	background string
	panel      panel.Panel
	frames     panel.FrameSaver
	journal    *sql.DB
	now        func() time.Time
}

type Option func(*Driver)

// WithFrameSaver keeps a preview of every displayed frame.
func WithFrameSaver(s panel.FrameSaver) Option {
	return func(d *Driver) { d.frames = s }
}

// WithJournal records each cycle in the sqlite journal.
func WithJournal(conn *sql.DB) Option {
	return func(d *Driver) { d.journal = conn }
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

func New(
	upstream hass.Opener,
	l *localize.Localizer,
	weatherCfg weather.Config,
	roomList []model.Room,
	comp *compositor.Compositor,
	background string,
	p panel.Panel,
	opts ...Option,
) *Driver {
	if l == nil {
		l = localize.Default()
	}
	d := &Driver{
		upstream:   upstream,
		localizer:  l,
		weather:    weatherCfg,
		rooms:      roomList,
		compositor: comp,
		background: background,
		panel:      p,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunCycle performs one full render cycle. Concurrent callers are
// serialized. A sun or weather failure aborts the cycle before anything is
// displayed; room and drawing failures degrade the frame but still display
// it.
func (d *Driver) RunCycle(ctx context.Context) (model.Cycle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cycle := model.Cycle{
		ID:        uuid.NewString(),
		StartedAt: d.now(),
		Status:    model.CycleRunning,
	}
	if d.journal != nil {
		if err := db.RecordCycleStart(d.journal, cycle.ID, cycle.StartedAt); err != nil {
			log.Warn().Err(err).Msg("Failed to journal cycle start")
		}
	}

	logger := log.With().Str("cycle", cycle.ID).Logger()
	logger.Info().Msg("Render cycle started")

	degraded, err := d.run(ctx, &cycle)

	cycle.FinishedAt = d.now()
	elapsed := cycle.FinishedAt.Sub(cycle.StartedAt)
	switch {
	case err != nil:
		cycle.Status = model.CycleFailed
		cycle.Error = err.Error()
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("Render cycle failed")
	case degraded != nil:
		cycle.Status = model.CyclePartial
		cycle.Error = degraded.Error()
		logger.Warn().Err(degraded).Dur("elapsed", elapsed).Msg("Render cycle finished with errors")
	default:
		cycle.Status = model.CycleOK
		logger.Info().Dur("elapsed", elapsed).Msg("Render cycle finished")
	}

	datadog.Timing("cycle.duration", elapsed, "status:"+string(cycle.Status))
	datadog.Count("cycle.count", 1, "status:"+string(cycle.Status))

	if d.journal != nil {
		if jerr := db.FinishCycle(d.journal, cycle); jerr != nil {
			log.Warn().Err(jerr).Msg("Failed to journal cycle outcome")
		}
	}
	return cycle, err
}

// run returns a fatal error, or the joined non-fatal errors of a cycle that
// still reached the panel.
func (d *Driver) run(ctx context.Context, cycle *model.Cycle) (degraded error, err error) {
	src := d.upstream.OpenSource()
	defer src.Close()

	section := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		s := model.CycleSection{Name: name, Status: model.CycleOK, Duration: time.Since(start)}
		if err != nil {
			s.Status = model.CycleFailed
			s.Error = err.Error()
		}
		cycle.Sections = append(cycle.Sections, s)
		datadog.Timing("section.duration", s.Duration, "section:"+name, "status:"+string(s.Status))
		log.Debug().Str("section", name).Dur("elapsed", s.Duration).Str("status", string(s.Status)).Msg("Section done")
		return err
	}

	sunSvc := sun.NewService(d.localizer)
	if err := section(SectionSun, func() error { return sunSvc.Update(ctx, src) }); err != nil {
		return nil, err
	}
	isNight := sunSvc.IsNight()

	weatherSvc := weather.NewService(d.weather, isNight, d.localizer)
	if err := section(SectionWeather, func() error { return weatherSvc.Update(ctx, src) }); err != nil {
		return nil, err
	}

	var soft []error
	roomSvc := rooms.NewService(d.rooms)
	if err := section(SectionRooms, func() error { return roomSvc.Update(ctx, src) }); err != nil {
		soft = append(soft, fmt.Errorf("%s: %w", SectionRooms, err))
	}

	current, hasWeather := weatherSvc.Current()
	frame := compositor.Frame{
		Weather:    current,
		HasWeather: hasWeather,
		Forecast:   weatherSvc.Forecast(),
		Sun:        sunSvc.Times(),
		HasSun:     true,
		Rooms:      roomSvc.States(),
		RenderedAt: d.now().In(d.localizer.Location()),
	}
	emitGauges(frame)

	canvas := compositor.LoadCanvas(d.background)
	if err := section(SectionCompose, func() error { return d.compositor.Compose(canvas, frame) }); err != nil {
		soft = append(soft, fmt.Errorf("%s: %w", SectionCompose, err))
	}

	if err := section(SectionDisplay, func() error { return d.display(canvas) }); err != nil {
		return errors.Join(soft...), err
	}
	return errors.Join(soft...), nil
}

func (d *Driver) display(canvas *compositor.Canvas) error {
	if d.frames != nil {
		if err := d.frames.SaveFrame(panel.Preview(canvas.Primary, canvas.Accent)); err != nil {
			log.Warn().Err(err).Msg("Failed to save preview frame")
		}
	}

	start := time.Now()
	if err := d.panel.Display(canvas.Primary, canvas.Accent); err != nil {
		return fmt.Errorf("display: %w", err)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Panel updated")

	if err := d.panel.Sleep(); err != nil {
		log.Warn().Err(err).Msg("Failed to put panel to sleep")
	}
	return nil
}

func emitGauges(f compositor.Frame) {
	if t, ok := f.Weather.Temperature.Get(); ok {
		datadog.Gauge("weather.temperature", t)
	}
	if h, ok := f.Weather.Humidity.Get(); ok {
		datadog.Gauge("weather.humidity", h)
	}
	for _, r := range f.Rooms {
		tag := "room:" + r.Room.Name
		if t, ok := r.Temperature.Get(); ok {
			datadog.Gauge("room.temperature", t, tag)
		}
		if h, ok := r.Humidity.Get(); ok {
			datadog.Gauge("room.humidity", h, tag)
		}
	}
}
