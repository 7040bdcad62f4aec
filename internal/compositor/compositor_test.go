package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"

	"github.com/thatsimonsguy/hass-dash/internal/model"
)

type drawnText struct {
	origin image.Point
	text   string
}

type recordingDrawer struct {
	texts []drawnText
	panic bool
}

func (r *recordingDrawer) DrawText(_ draw.Image, origin image.Point, _ font.Face, s string) {
	if r.panic {
		panic("glyph cache exploded")
	}
	r.texts = append(r.texts, drawnText{origin: origin, text: s})
}

func newRecording(t *testing.T, assetsDir string) (*Compositor, *recordingDrawer) {
	t.Helper()
	rec := &recordingDrawer{}
	return New(assetsDir, BasicFonts(), WithTextDrawer(rec)), rec
}

// writeIcon writes a square icon: black ink on a white field with a
// transparent top-left pixel.
func writeIcon(t *testing.T, assetsDir, id string, size IconSize, side int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, side, side))
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			img.Set(x, y, color.White)
		}
	}
	img.Set(1, 1, color.Black)
	img.Set(0, 0, color.Transparent)

	dir := filepath.Join(assetsDir, "icons")
	require.NoError(t, os.MkdirAll(dir, 0755))
	f, err := os.Create(filepath.Join(dir, id+"-"+string(size)+".png"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestCurrentWeatherMissingIconStillDrawsTemperature(t *testing.T) {
	c, rec := newRecording(t, t.TempDir())
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	err := c.DrawCurrentWeather(canvas, model.CurrentWeather{
		Temperature: model.Some(21.5),
		IconID:      model.Some("weather-rainy"),
	})
	require.NoError(t, err)

	require.Len(t, rec.texts, 1)
	assert.Equal(t, DefaultLayout.CurrentTemp, rec.texts[0].origin)
	assert.Equal(t, "21.5°C", rec.texts[0].text)
}

func TestCurrentWeatherIconIsInverted(t *testing.T) {
	assets := t.TempDir()
	writeIcon(t, assets, "weather-sunny", IconLarge, 4)
	c, _ := newRecording(t, assets)
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	require.NoError(t, c.DrawCurrentWeather(canvas, model.CurrentWeather{IconID: model.Some("weather-sunny")}))

	at := DefaultLayout.CurrentIcon
	assert.Equal(t, Ink, canvas.Primary.GrayAt(at.X+1, at.Y+1), "ink pixel drawn light on the dark canvas")
	assert.Equal(t, Background, canvas.Primary.GrayAt(at.X+2, at.Y+2), "white pixel leaves the canvas untouched")
	assert.Equal(t, Background, canvas.Primary.GrayAt(at.X, at.Y), "transparent pixel counts as light")
}

func TestForecastSlotsAreIndependent(t *testing.T) {
	c, rec := newRecording(t, t.TempDir())
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	at := time.Date(2024, 6, 1, 19, 0, 0, 0, time.UTC)
	items := []model.ForecastItem{
		{Temperature: model.Some(12.0), Timestamp: model.Some(at), IconID: model.Some("weather-rainy")},
		{RawTimestamp: "garbage"},
	}
	for i := 0; i < 5; i++ {
		items = append(items, model.ForecastItem{Temperature: model.Some(float64(i))})
	}

	require.NoError(t, c.DrawForecast(canvas, items))

	require.Len(t, rec.texts, 10, "five slots, time and temperature each")
	slot0 := DefaultLayout.ForecastOrigin
	assert.Equal(t, drawnText{slot0.Add(DefaultLayout.ForecastTimeOffset), "19:00"}, rec.texts[0])
	assert.Equal(t, drawnText{slot0.Add(DefaultLayout.ForecastTempOffset), "12.0°C"}, rec.texts[1])

	slot1 := slot0.Add(image.Pt(DefaultLayout.ForecastStride, 0))
	assert.Equal(t, drawnText{slot1.Add(DefaultLayout.ForecastTimeOffset), "garbage"}, rec.texts[2])
	assert.Equal(t, drawnText{slot1.Add(DefaultLayout.ForecastTempOffset), "°C"}, rec.texts[3])
}

func TestSunFallsBackToRaw(t *testing.T) {
	c, rec := newRecording(t, t.TempDir())
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	rise := time.Date(2024, 6, 2, 4, 30, 0, 0, time.UTC)
	require.NoError(t, c.DrawSun(canvas, model.SunTimes{
		Sunrise:   model.Some(rise),
		RawSunset: "tonight",
	}))

	assert.Equal(t, []drawnText{
		{DefaultLayout.Sunrise, "04:30"},
		{DefaultLayout.Sunset, "tonight"},
	}, rec.texts)
}

func TestRoomWithOnlyHumidity(t *testing.T) {
	c, rec := newRecording(t, t.TempDir())
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	pos := image.Pt(420, 260)
	require.NoError(t, c.DrawRooms(canvas, []model.RoomState{{
		Room:     model.Room{Name: "Office", Humidity: &model.EntityReference{EntityID: "sensor.office", Position: pos}},
		Humidity: model.Some(47.6),
	}}))

	assert.Equal(t, []drawnText{{pos, "48%"}}, rec.texts)
}

func TestRoomsDrawAbsentValues(t *testing.T) {
	c, rec := newRecording(t, t.TempDir())
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	require.NoError(t, c.DrawRooms(canvas, []model.RoomState{{
		Room: model.Room{
			Name:        "Hall",
			Temperature: &model.EntityReference{Position: image.Pt(1, 2)},
			Humidity:    &model.EntityReference{Position: image.Pt(3, 4)},
		},
	}}))

	assert.Equal(t, []drawnText{{image.Pt(1, 2), "°C"}, {image.Pt(3, 4), "%"}}, rec.texts)
}

func TestComposeIsolatesPanics(t *testing.T) {
	rec := &recordingDrawer{panic: true}
	c := New(t.TempDir(), BasicFonts(), WithTextDrawer(rec))
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	err := c.Compose(canvas, Frame{
		HasWeather: true,
		HasSun:     true,
		RenderedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "current_weather")
	assert.Contains(t, err.Error(), "sun")
	assert.Contains(t, err.Error(), "updated_at")
}

func TestComposeDrawsEveryElement(t *testing.T) {
	c, rec := newRecording(t, t.TempDir())
	canvas := BlankCanvas(PanelWidth, PanelHeight)

	err := c.Compose(canvas, Frame{
		Weather:    model.CurrentWeather{Temperature: model.Some(3.0)},
		HasWeather: true,
		HasSun:     true,
		Sun:        model.SunTimes{RawSunrise: "a", RawSunset: "b"},
		RenderedAt: time.Date(2024, 6, 1, 12, 34, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	last := rec.texts[len(rec.texts)-1]
	assert.Equal(t, drawnText{DefaultLayout.UpdatedAt, "Updated 12:34"}, last)
	assert.Len(t, rec.texts, 4)
}

func TestComposeRejectsMissingCanvas(t *testing.T) {
	c, _ := newRecording(t, t.TempDir())
	assert.Error(t, c.DrawSun(nil, model.SunTimes{}))
}

func TestFaceDrawerInksCanvas(t *testing.T) {
	canvas := BlankCanvas(200, 50)
	FaceDrawer{}.DrawText(canvas.Primary, image.Pt(5, 5), BasicFonts().Small, "21.5")

	inked := 0
	for _, p := range canvas.Primary.Pix {
		if p == Ink.Y {
			inked++
		}
	}
	assert.Greater(t, inked, 0)
}

func TestLoadFonts(t *testing.T) {
	fonts, err := LoadFonts("")
	require.NoError(t, err)
	assert.NotNil(t, fonts.Large)
	assert.NotNil(t, fonts.Small)

	_, err = LoadFonts(filepath.Join(t.TempDir(), "missing.ttf"))
	assert.Error(t, err)
}

func TestLoadCanvasFallsBackToBlank(t *testing.T) {
	canvas := LoadCanvas(filepath.Join(t.TempDir(), "background.bmp"))
	assert.Equal(t, image.Rect(0, 0, PanelWidth, PanelHeight), canvas.Bounds())
	assert.Equal(t, canvas.Primary.Bounds(), canvas.Accent.Bounds())
}

func TestIconPath(t *testing.T) {
	assets := t.TempDir()
	writeIcon(t, assets, "weather-fog", IconSmall, 2)

	p, err := IconPath(assets, "weather-fog", IconSmall)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(assets, "icons", "weather-fog-50x50.png"), p)

	_, err = IconPath(assets, "weather-fog", IconLarge)
	assert.ErrorIs(t, err, ErrAssetMissing)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "-2.3°C", FormatTemperature(model.Some(-2.26)))
	assert.Equal(t, "°C", FormatTemperature(model.None[float64]()))
	assert.Equal(t, "55%", FormatHumidity(model.Some(55.0)))
	assert.Equal(t, "%", FormatHumidity(model.None[float64]()))
}
