package weather

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/icons"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

const (
	DefaultEntityID = "weather.home"
	ForecastSlots   = 5
)

type Config struct {
	EntityID       string
	ForecastDevice string
	ForecastType   string
}

type Service struct {
	cfg       Config
	isNight   bool
	localizer *localize.Localizer

	current *model.CurrentWeather
}

// NewService binds the night flag for this render cycle; it is not
// re-evaluated on Update.
func NewService(cfg Config, isNight bool, l *localize.Localizer) *Service {
	if cfg.EntityID == "" {
		cfg.EntityID = DefaultEntityID
	}
	if cfg.ForecastType == "" {
		cfg.ForecastType = "hourly"
	}
	if l == nil {
		l = localize.Default()
	}
	return &Service{cfg: cfg, isNight: isNight, localizer: l}
}

// Update fetches the weather entity and its forecast. The previous value
// stays in place until the whole fetch has succeeded.
func (s *Service) Update(ctx context.Context, src hass.Source) error {
	state, err := src.GetEntityState(ctx, s.cfg.EntityID)
	if err != nil {
		return fmt.Errorf("weather update: %w", err)
	}

	next := &model.CurrentWeather{
		Temperature: model.ToFloat(state.Attributes["temperature"]),
		Humidity:    model.ToFloat(state.Attributes["humidity"]),
	}
	if state.State != "" {
		next.Condition = model.Some(state.State)
		if icon, ok := icons.Resolve(state.State, s.isNight); ok {
			next.IconID = model.Some(icon)
		}
	}

	forecasts, err := src.GetForecast(ctx, hass.ForecastRequest{
		DeviceID: s.cfg.ForecastDevice,
		EntityID: s.cfg.EntityID,
		Type:     s.cfg.ForecastType,
	})
	if err != nil {
		return fmt.Errorf("forecast update: %w", err)
	}
	records, ok := forecasts[s.cfg.EntityID]
	if !ok {
		return fmt.Errorf("forecast update: %w: no forecast for %s", hass.ErrEntityNotFound, s.cfg.EntityID)
	}

	next.Forecast = make([]model.ForecastItem, 0, len(records))
	for _, rec := range records {
		next.Forecast = append(next.Forecast, model.NewForecastItem(rec, s.isNight, s.localizer))
	}

	s.current = next

	log.Debug().
		Str("weather", next.String()).
		Str("icon", next.IconID.String()).
		Msg("Weather updated")
	return nil
}

// Current returns the last fetched weather, false before the first
// successful Update.
func (s *Service) Current() (model.CurrentWeather, bool) {
	if s.current == nil {
		return model.CurrentWeather{}, false
	}
	return *s.current, true
}

// Forecast returns the display window of the hourly forecast.
func (s *Service) Forecast() []model.ForecastItem {
	if s.current == nil {
		return nil
	}
	return Window(s.current.Forecast)
}

// Window picks raw indices 1, 3, 5, 7, 9: the hourly list repeats the
// current hour first, and every second hour fits the strip.
func Window(items []model.ForecastItem) []model.ForecastItem {
	out := make([]model.ForecastItem, 0, ForecastSlots)
	for i := 1; i < len(items) && len(out) < ForecastSlots; i += 2 {
		out = append(out, items[i])
	}
	return out
}
