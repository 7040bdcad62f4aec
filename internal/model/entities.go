package model

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/icons"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
)

// ForecastItem is one parsed forecast record. It is built once and not
// modified afterwards.
type ForecastItem struct {
	Temperature  Optional[float64]
	Humidity     Optional[float64]
	Timestamp    Optional[time.Time]
	RawTimestamp string
	Condition    Optional[string]
	IconID       Optional[string]

	Precipitation            Optional[float64]
	PrecipitationProbability Optional[float64]
	WindSpeed                Optional[float64]
	WindGustSpeed            Optional[float64]
	WindBearing              Optional[float64]
	CloudCoverage            Optional[float64]
	UVIndex                  Optional[float64]
}

// NewForecastItem parses a raw forecast record. It never fails: every field
// it cannot read is left unset.
func NewForecastItem(attrs Attributes, isNight bool, l *localize.Localizer) ForecastItem {
	if l == nil {
		l = localize.Default()
	}

	item := ForecastItem{
		Temperature:              attrs.Float(TemperatureKeys...),
		Humidity:                 attrs.Float(HumidityKeys...),
		Condition:                attrs.Text(ConditionKeys...),
		Precipitation:            attrs.Float("precipitation"),
		PrecipitationProbability: attrs.Float("precipitation_probability"),
		WindSpeed:                attrs.Float("wind_speed"),
		WindGustSpeed:            attrs.Float("wind_gust_speed"),
		WindBearing:              attrs.Float("wind_bearing"),
		CloudCoverage:            attrs.Float("cloud_coverage"),
		UVIndex:                  attrs.Float("uv_index"),
	}

	if raw, ok := attrs.First(TimestampKeys...); ok {
		if s, isString := raw.(string); isString {
			item.RawTimestamp = s
			t, err := l.Localize(s)
			if err != nil {
				log.Warn().Err(err).Str("raw", s).Msg("Could not localize forecast timestamp")
			} else {
				item.Timestamp = Some(t)
			}
		} else {
			item.RawTimestamp = fmt.Sprint(raw)
		}
	}

	if cond, ok := item.Condition.Get(); ok {
		if icon, found := icons.Resolve(cond, isNight); found {
			item.IconID = Some(icon)
		}
	}

	return item
}

func (f ForecastItem) String() string {
	timeStr := "n/a"
	if t, ok := f.Timestamp.Get(); ok {
		timeStr = t.Format("15:04")
	}
	tempStr := "n/a"
	if v, ok := f.Temperature.Get(); ok {
		tempStr = fmt.Sprintf("%.1f°C", v)
	}
	humStr := "n/a"
	if v, ok := f.Humidity.Get(); ok {
		humStr = fmt.Sprintf("%d%%", int(v))
	}
	return fmt.Sprintf("ForecastItem(time=%s, condition=%s, temperature=%s, humidity=%s, icon=%s)",
		timeStr, f.Condition, tempStr, humStr, f.IconID)
}

// CurrentWeather is the weather entity state plus its raw hourly forecast.
type CurrentWeather struct {
	Temperature Optional[float64]
	Humidity    Optional[float64]
	Condition   Optional[string]
	IconID      Optional[string]
	Forecast    []ForecastItem
}

func (w CurrentWeather) String() string {
	parts := []string{}
	if v, ok := w.Temperature.Get(); ok {
		parts = append(parts, fmt.Sprintf("temperature=%v", v))
	}
	if v, ok := w.Humidity.Get(); ok {
		parts = append(parts, fmt.Sprintf("humidity=%v", v))
	}
	if w.Forecast != nil {
		parts = append(parts, fmt.Sprintf("forecast_len=%d", len(w.Forecast)))
	}
	return "CurrentWeather(" + strings.Join(parts, ", ") + ")"
}

// SunTimes holds the next sun events, localized. Raw strings are kept for
// display when localization failed.
type SunTimes struct {
	Dawn    Optional[time.Time]
	Dusk    Optional[time.Time]
	Sunrise Optional[time.Time]
	Sunset  Optional[time.Time]

	RawSunrise string
	RawSunset  string
}

// IsNight reports whether the next dawn comes before the next dusk. Either
// time missing means day.
func (s SunTimes) IsNight() bool {
	dawn, okDawn := s.Dawn.Get()
	dusk, okDusk := s.Dusk.Get()
	return okDawn && okDusk && !dawn.After(dusk)
}

// EntityReference points at an external sensor and where its value goes on
// the panel. It is configuration and never changes at runtime.
type EntityReference struct {
	EntityID    string
	DisplayName string
	Position    image.Point
}

// Room is the configured identity of a room. Either reference may be nil.
type Room struct {
	Name        string
	Temperature *EntityReference
	Humidity    *EntityReference
}

// RoomState carries the values last polled for a room.
type RoomState struct {
	Room        Room
	Temperature Optional[float64]
	Humidity    Optional[float64]
}

func (r RoomState) String() string {
	parts := []string{"name=" + r.Room.Name}
	if v, ok := r.Temperature.Get(); ok {
		parts = append(parts, fmt.Sprintf("temperature=%v", v))
	}
	if v, ok := r.Humidity.Get(); ok {
		parts = append(parts, fmt.Sprintf("humidity=%v", v))
	}
	return "Room(" + strings.Join(parts, ", ") + ")"
}
