package compositor

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

// Layout holds the fixed pixel origins of every element. Text origins are
// the top-left corner of the text.
type Layout struct {
	CurrentIcon image.Point
	CurrentTemp image.Point

	ForecastOrigin     image.Point
	ForecastStride     int
	ForecastTimeOffset image.Point
	ForecastTempOffset image.Point

	Sunrise image.Point
	Sunset  image.Point

	UpdatedAt image.Point
}

var DefaultLayout = Layout{
	CurrentIcon: image.Pt(20, 20),
	CurrentTemp: image.Pt(140, 40),

	ForecastOrigin:     image.Pt(20, 330),
	ForecastStride:     155,
	ForecastTimeOffset: image.Pt(0, 56),
	ForecastTempOffset: image.Pt(0, 82),

	Sunrise: image.Pt(560, 30),
	Sunset:  image.Pt(680, 30),

	UpdatedAt: image.Pt(640, 450),
}

// Frame is everything drawn in one render cycle.
type Frame struct {
	Weather    model.CurrentWeather
	HasWeather bool
	Forecast   []model.ForecastItem
	Sun        model.SunTimes
	HasSun     bool
	Rooms      []model.RoomState
	RenderedAt time.Time
}

type Compositor struct {
	assetsDir string
	layout    Layout
	fonts     Fonts
	text      TextDrawer
}

type Option func(*Compositor)

func WithLayout(l Layout) Option {
	return func(c *Compositor) { c.layout = l }
}

func WithTextDrawer(t TextDrawer) Option {
	return func(c *Compositor) { c.text = t }
}

func New(assetsDir string, fonts Fonts, opts ...Option) *Compositor {
	c := &Compositor{
		assetsDir: assetsDir,
		layout:    DefaultLayout,
		fonts:     fonts,
		text:      FaceDrawer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose draws every element of f. Elements are independent: a failing
// element is logged and the rest are still drawn. The returned error joins
// the element failures.
func (c *Compositor) Compose(canvas *Canvas, f Frame) error {
	var errs []error
	run := func(name string, fn func() error) {
		if err := isolate(fn); err != nil {
			log.Error().Err(err).Str("element", name).Msg("Failed to draw element")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if f.HasWeather {
		run("current_weather", func() error { return c.DrawCurrentWeather(canvas, f.Weather) })
	}
	run("forecast", func() error { return c.DrawForecast(canvas, f.Forecast) })
	if f.HasSun {
		run("sun", func() error { return c.DrawSun(canvas, f.Sun) })
	}
	run("rooms", func() error { return c.DrawRooms(canvas, f.Rooms) })
	run("updated_at", func() error { return c.DrawUpdatedAt(canvas, f.RenderedAt) })

	return errors.Join(errs...)
}

func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while drawing: %v", r)
		}
	}()
	return fn()
}

func checkCanvas(canvas *Canvas) error {
	if canvas == nil || canvas.Primary == nil {
		return errors.New("no canvas")
	}
	return nil
}

func (c *Compositor) DrawCurrentWeather(canvas *Canvas, w model.CurrentWeather) error {
	if err := checkCanvas(canvas); err != nil {
		return err
	}
	if icon, ok := w.IconID.Get(); ok {
		if err := c.drawIcon(canvas.Primary, icon, IconLarge, c.layout.CurrentIcon); err != nil {
			log.Warn().Err(err).Str("icon", icon).Msg("Current weather icon skipped")
		}
	}
	c.text.DrawText(canvas.Primary, c.layout.CurrentTemp, c.fonts.Large, FormatTemperature(w.Temperature))
	return nil
}

func (c *Compositor) DrawForecast(canvas *Canvas, items []model.ForecastItem) error {
	if err := checkCanvas(canvas); err != nil {
		return err
	}
	for i, item := range items {
		if i >= 5 {
			break
		}
		slot := c.layout.ForecastOrigin.Add(image.Pt(i*c.layout.ForecastStride, 0))
		if err := isolate(func() error { return c.drawForecastSlot(canvas, slot, item) }); err != nil {
			log.Warn().Err(err).Int("slot", i).Msg("Forecast slot incomplete")
		}
	}
	return nil
}

func (c *Compositor) drawForecastSlot(canvas *Canvas, slot image.Point, item model.ForecastItem) error {
	var errs []error

	if icon, ok := item.IconID.Get(); ok {
		if err := isolate(func() error { return c.drawIcon(canvas.Primary, icon, IconSmall, slot) }); err != nil {
			log.Warn().Err(err).Str("icon", icon).Msg("Forecast icon skipped")
		}
	}

	if err := isolate(func() error {
		t, ok := item.Timestamp.Get()
		c.text.DrawText(canvas.Primary, slot.Add(c.layout.ForecastTimeOffset), c.fonts.Small, localize.Clock(t, ok, item.RawTimestamp))
		return nil
	}); err != nil {
		errs = append(errs, fmt.Errorf("time: %w", err))
	}

	if err := isolate(func() error {
		c.text.DrawText(canvas.Primary, slot.Add(c.layout.ForecastTempOffset), c.fonts.Small, FormatTemperature(item.Temperature))
		return nil
	}); err != nil {
		errs = append(errs, fmt.Errorf("temperature: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Compositor) DrawSun(canvas *Canvas, s model.SunTimes) error {
	if err := checkCanvas(canvas); err != nil {
		return err
	}
	rise, okRise := s.Sunrise.Get()
	c.text.DrawText(canvas.Primary, c.layout.Sunrise, c.fonts.Small, localize.Clock(rise, okRise, s.RawSunrise))
	set, okSet := s.Sunset.Get()
	c.text.DrawText(canvas.Primary, c.layout.Sunset, c.fonts.Small, localize.Clock(set, okSet, s.RawSunset))
	return nil
}

func (c *Compositor) DrawRooms(canvas *Canvas, rooms []model.RoomState) error {
	if err := checkCanvas(canvas); err != nil {
		return err
	}
	for _, r := range rooms {
		if ref := r.Room.Temperature; ref != nil {
			c.text.DrawText(canvas.Primary, ref.Position, c.fonts.Small, FormatTemperature(r.Temperature))
		}
		if ref := r.Room.Humidity; ref != nil {
			c.text.DrawText(canvas.Primary, ref.Position, c.fonts.Small, FormatHumidity(r.Humidity))
		}
	}
	return nil
}

func (c *Compositor) DrawUpdatedAt(canvas *Canvas, at time.Time) error {
	if err := checkCanvas(canvas); err != nil {
		return err
	}
	if at.IsZero() {
		at = localize.Now()
	}
	c.text.DrawText(canvas.Primary, c.layout.UpdatedAt, c.fonts.Small, "Updated "+at.Format("15:04"))
	return nil
}

func FormatTemperature(v model.Optional[float64]) string {
	if t, ok := v.Get(); ok {
		return fmt.Sprintf("%.1f°C", t)
	}
	return "°C"
}

func FormatHumidity(v model.Optional[float64]) string {
	if h, ok := v.Get(); ok {
		return fmt.Sprintf("%.0f%%", h)
	}
	return "%"
}
