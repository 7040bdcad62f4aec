package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hass-dash/db"
	"github.com/thatsimonsguy/hass-dash/internal/compositor"
	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/hass/hasstest"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/model"
	"github.com/thatsimonsguy/hass-dash/internal/weather"
)

type fakePanel struct {
	mu       sync.Mutex
	displays int
	primary  *image.Gray
	err      error
}

func (p *fakePanel) Clear() error { return nil }
func (p *fakePanel) Sleep() error { return nil }
func (p *fakePanel) Close() error { return nil }

func (p *fakePanel) Display(primary, accent *image.Gray) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.displays++
	p.primary = primary
	return nil
}

type fakeSaver struct {
	frames int
}

func (s *fakeSaver) SaveFrame(image.Image) error {
	s.frames++
	return nil
}

func seededSource() *hasstest.Source {
	src := hasstest.New()
	src.SetState("sun.sun", "above_horizon", model.Attributes{
		"next_dawn":    "2025-01-10T06:40:00+00:00",
		"next_dusk":    "2025-01-10T16:20:00+00:00",
		"next_rising":  "2025-01-10T07:30:00+00:00",
		"next_setting": "2025-01-10T15:30:00+00:00",
	})
	src.SetState("weather.home", "cloudy", model.Attributes{
		"temperature": 4.5,
		"humidity":    88,
	})
	var hourly []model.Attributes
	for i := 0; i < 10; i++ {
		hourly = append(hourly, model.Attributes{
			"datetime":    time.Date(2025, 1, 10, 8+i, 0, 0, 0, time.UTC).Format(time.RFC3339),
			"temperature": float64(i),
			"condition":   "rainy",
		})
	}
	src.Forecasts["weather.home"] = hourly
	src.SetState("climate.living_room", "heat", model.Attributes{"current_temperature": 21.5})
	src.SetState("sensor.living_room_humidity", "45", nil)
	return src
}

func testRooms() []model.Room {
	return []model.Room{{
		Name:        "Living Room",
		Temperature: &model.EntityReference{EntityID: "climate.living_room", Position: image.Pt(100, 200)},
		Humidity:    &model.EntityReference{EntityID: "sensor.living_room_humidity", Position: image.Pt(100, 230)},
	}}
}

func newTestDriver(t *testing.T, src hass.Opener, p *fakePanel, opts ...Option) *Driver {
	t.Helper()
	return newTestDriverWithAssets(t, t.TempDir(), src, p, opts...)
}

func newTestDriverWithAssets(t *testing.T, assetsDir string, src hass.Opener, p *fakePanel, opts ...Option) *Driver {
	t.Helper()
	l, err := localize.New("UTC")
	require.NoError(t, err)
	comp := compositor.New(assetsDir, compositor.BasicFonts())
	return New(src, l, weather.Config{EntityID: "weather.home"}, testRooms(), comp,
		t.TempDir()+"/background.bmp", p, opts...)
}

func sectionNames(c model.Cycle) []string {
	var names []string
	for _, s := range c.Sections {
		names = append(names, s.Name)
	}
	return names
}

func TestRunCycleDisplaysFrame(t *testing.T) {
	src := seededSource()
	p := &fakePanel{}
	saver := &fakeSaver{}
	d := newTestDriver(t, src, p, WithFrameSaver(saver))

	cycle, err := d.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.CycleOK, cycle.Status)
	assert.NotEmpty(t, cycle.ID)
	assert.Equal(t, []string{SectionSun, SectionWeather, SectionRooms, SectionCompose, SectionDisplay}, sectionNames(cycle))
	assert.Equal(t, 1, p.displays)
	assert.Equal(t, image.Rect(0, 0, compositor.PanelWidth, compositor.PanelHeight), p.primary.Bounds())
	assert.Equal(t, 1, saver.frames)
	assert.Equal(t, 1, src.Opened)
	assert.Equal(t, 1, src.CloseHits)
}

// writeSolidIcon writes a square large icon filled with one color.
func writeSolidIcon(t *testing.T, assetsDir, id string, c color.Color) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	dir := filepath.Join(assetsDir, "icons")
	require.NoError(t, os.MkdirAll(dir, 0755))
	f, err := os.Create(filepath.Join(dir, id+"-"+string(compositor.IconLarge)+".png"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestRunCycleUsesNightIconAfterDusk(t *testing.T) {
	assets := t.TempDir()
	writeSolidIcon(t, assets, "weather-night-partly-cloudy", color.Black)
	writeSolidIcon(t, assets, "weather-partly-cloudy", color.White)

	src := seededSource()
	src.SetState("weather.home", "partlycloudy", model.Attributes{"temperature": 4.5})
	p := &fakePanel{}
	d := newTestDriverWithAssets(t, assets, src, p)

	cycle, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, model.CycleOK, cycle.Status)

	at := compositor.DefaultLayout.CurrentIcon
	assert.Equal(t, compositor.Ink, p.primary.GrayAt(at.X+1, at.Y+1))
}

func TestRunCycleUsesDayIconBeforeDusk(t *testing.T) {
	assets := t.TempDir()
	writeSolidIcon(t, assets, "weather-night-partly-cloudy", color.White)
	writeSolidIcon(t, assets, "weather-partly-cloudy", color.Black)

	src := seededSource()
	src.SetState("sun.sun", "above_horizon", model.Attributes{
		"next_dawn": "2025-01-11T06:40:00+00:00",
		"next_dusk": "2025-01-10T16:20:00+00:00",
	})
	src.SetState("weather.home", "partlycloudy", model.Attributes{"temperature": 4.5})
	p := &fakePanel{}
	d := newTestDriverWithAssets(t, assets, src, p)

	_, err := d.RunCycle(context.Background())
	require.NoError(t, err)

	at := compositor.DefaultLayout.CurrentIcon
	assert.Equal(t, compositor.Ink, p.primary.GrayAt(at.X+1, at.Y+1))
}

func TestRunCycleAbortsWhenSunFails(t *testing.T) {
	src := seededSource()
	src.Fail("sun.sun", hass.ErrUpstream)
	p := &fakePanel{}
	d := newTestDriver(t, src, p)

	cycle, err := d.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, hass.ErrUpstream)
	assert.Equal(t, model.CycleFailed, cycle.Status)
	assert.Equal(t, []string{SectionSun}, sectionNames(cycle))
	assert.Zero(t, p.displays)
	assert.Equal(t, 1, src.CloseHits)
}

func TestRunCycleAbortsWhenWeatherFails(t *testing.T) {
	src := seededSource()
	delete(src.Forecasts, "weather.home")
	p := &fakePanel{}
	d := newTestDriver(t, src, p)

	cycle, err := d.RunCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, hass.ErrEntityNotFound)
	assert.Equal(t, model.CycleFailed, cycle.Status)
	assert.Zero(t, p.displays)
}

func TestRunCycleContinuesWhenRoomFails(t *testing.T) {
	src := seededSource()
	src.Fail("sensor.living_room_humidity", hass.ErrUpstream)
	p := &fakePanel{}
	d := newTestDriver(t, src, p)

	cycle, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.CyclePartial, cycle.Status)
	assert.Contains(t, cycle.Error, "rooms")
	assert.Equal(t, 1, p.displays)
}

func TestRunCycleJournalsOutcome(t *testing.T) {
	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	defer conn.Close()

	p := &fakePanel{}
	d := newTestDriver(t, seededSource(), p, WithJournal(conn))

	cycle, err := d.RunCycle(context.Background())
	require.NoError(t, err)

	last, err := db.GetLastCycle(conn)
	require.NoError(t, err)
	assert.Equal(t, cycle.ID, last.ID)
	assert.Equal(t, model.CycleOK, last.Status)
	assert.Len(t, last.Sections, 5)
}

func TestRunCycleSerializesCallers(t *testing.T) {
	p := &fakePanel{}
	d := newTestDriver(t, seededSource(), p)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.RunCycle(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, p.displays)
}

func TestNewSchedulerRejectsBadExpression(t *testing.T) {
	d := newTestDriver(t, seededSource(), &fakePanel{})
	_, err := NewScheduler(d, "not a schedule")
	assert.Error(t, err)
}

func TestSchedulerRunsCycles(t *testing.T) {
	p := &fakePanel{}
	d := newTestDriver(t, seededSource(), p)
	s, err := NewScheduler(d, "* * * * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.displays > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	<-done
}

// blockingSource hangs on every request until its context is canceled.
type blockingSource struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingSource) OpenSource() hass.ScopedSource { return b }
func (b *blockingSource) Close() error                  { return nil }

func (b *blockingSource) GetEntityState(ctx context.Context, entityID string) (*hass.EntityState, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingSource) GetForecast(ctx context.Context, req hass.ForecastRequest) (hass.Forecasts, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSchedulerCancelsRunningCycle(t *testing.T) {
	src := &blockingSource{started: make(chan struct{})}
	p := &fakePanel{}
	d := newTestDriver(t, src, p)
	s, err := NewScheduler(d, "* * * * * *")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-src.started:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled cycle never started")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop while a cycle was running")
	}
	assert.Zero(t, p.displays)
}
