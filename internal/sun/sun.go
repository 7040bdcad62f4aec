package sun

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

const EntityID = "sun.sun"

type Service struct {
	localizer *localize.Localizer
	times     model.SunTimes
}

func NewService(l *localize.Localizer) *Service {
	if l == nil {
		l = localize.Default()
	}
	return &Service{localizer: l}
}

// Update fetches sun.sun and replaces the stored times. Timestamps that are
// missing or unparsable are left unset.
func (s *Service) Update(ctx context.Context, src hass.Source) error {
	state, err := src.GetEntityState(ctx, EntityID)
	if err != nil {
		return fmt.Errorf("sun update: %w", err)
	}

	attrs := state.Attributes
	next := model.SunTimes{
		Dawn:    s.localizeAttr(attrs, "next_dawn"),
		Dusk:    s.localizeAttr(attrs, "next_dusk"),
		Sunrise: s.localizeAttr(attrs, "next_rising"),
		Sunset:  s.localizeAttr(attrs, "next_setting"),
	}
	next.RawSunrise = attrs.Text("next_rising").OrElse("")
	next.RawSunset = attrs.Text("next_setting").OrElse("")

	s.times = next

	log.Debug().
		Bool("is_night", next.IsNight()).
		Str("sunrise", next.RawSunrise).
		Str("sunset", next.RawSunset).
		Msg("Sun times updated")
	return nil
}

func (s *Service) localizeAttr(attrs model.Attributes, key string) model.Optional[time.Time] {
	raw, ok := attrs.Text(key).Get()
	if !ok {
		log.Warn().Str("attribute", key).Msg("Sun attribute missing")
		return model.None[time.Time]()
	}
	t, err := s.localizer.Localize(raw)
	if err != nil {
		log.Warn().Err(err).Str("attribute", key).Msg("Sun attribute not a valid timestamp")
		return model.None[time.Time]()
	}
	return model.Some(t)
}

func (s *Service) Times() model.SunTimes {
	return s.times
}

func (s *Service) IsNight() bool {
	return s.times.IsNight()
}
