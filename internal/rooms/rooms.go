package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

const (
	ClimateDomain = "climate"
	SensorDomain  = "sensor"

	CurrentTemperatureAttr = "current_temperature"
)

type Service struct {
	rooms  []model.Room
	states []model.RoomState
}

func NewService(rooms []model.Room) *Service {
	states := make([]model.RoomState, len(rooms))
	for i, r := range rooms {
		states[i] = model.RoomState{Room: r}
	}
	return &Service{rooms: rooms, states: states}
}

// Update polls every configured reference. The temperature and humidity of a
// room are fetched independently; a failed fetch clears that value and is
// reported once all rooms have been tried.
func (s *Service) Update(ctx context.Context, src hass.Source) error {
	var errs []error
	for i, room := range s.rooms {
		st := model.RoomState{Room: room}

		if room.Temperature != nil {
			v, err := readTemperature(ctx, src, room.Temperature)
			if err != nil {
				log.Error().Err(err).Str("room", room.Name).Msg("Room temperature fetch failed")
				errs = append(errs, fmt.Errorf("room %s: %w", room.Name, err))
			}
			st.Temperature = v
		}

		if room.Humidity != nil {
			v, err := readHumidity(ctx, src, room.Humidity)
			if err != nil {
				log.Error().Err(err).Str("room", room.Name).Msg("Room humidity fetch failed")
				errs = append(errs, fmt.Errorf("room %s: %w", room.Name, err))
			}
			st.Humidity = v
		}

		s.states[i] = st
		log.Debug().Str("room", st.String()).Msg("Room updated")
	}
	return errors.Join(errs...)
}

func readTemperature(ctx context.Context, src hass.Source, ref *model.EntityReference) (model.Optional[float64], error) {
	state, err := src.GetEntityState(ctx, ref.EntityID)
	if err != nil {
		return model.None[float64](), err
	}
	raw, ok := state.Attributes[CurrentTemperatureAttr]
	if !ok || raw == nil {
		log.Warn().Str("entity_id", ref.EntityID).Msg("Climate entity has no current_temperature")
		return model.None[float64](), nil
	}
	v, err := model.ParseFloat(raw)
	if err != nil {
		log.Warn().Err(err).Str("entity_id", ref.EntityID).Msg("Could not read room temperature")
		return model.None[float64](), nil
	}
	return model.Some(v), nil
}

func readHumidity(ctx context.Context, src hass.Source, ref *model.EntityReference) (model.Optional[float64], error) {
	state, err := src.GetEntityState(ctx, ref.EntityID)
	if err != nil {
		return model.None[float64](), err
	}
	v, err := model.ParseFloat(state.State)
	if err != nil {
		log.Warn().Err(err).Str("entity_id", ref.EntityID).Msg("Could not read room humidity")
		return model.None[float64](), nil
	}
	return model.Some(v), nil
}

// States returns a copy of the last polled values, in configuration order.
func (s *Service) States() []model.RoomState {
	out := make([]model.RoomState, len(s.states))
	copy(out, s.states)
	return out
}
