package sun

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/hass/hasstest"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

func newService(t *testing.T) *Service {
	t.Helper()
	l, err := localize.New("Europe/Copenhagen")
	require.NoError(t, err)
	return NewService(l)
}

func TestUpdateNight(t *testing.T) {
	src := hasstest.New()
	src.SetState(EntityID, "below_horizon", model.Attributes{
		"next_dawn":    "2024-06-02T01:30:00+00:00",
		"next_dusk":    "2024-06-02T20:45:00+00:00",
		"next_rising":  "2024-06-02T02:30:00.123456+00:00",
		"next_setting": "2024-06-02T19:50:00+00:00",
	})
	svc := newService(t)

	require.NoError(t, svc.Update(context.Background(), src))
	assert.True(t, svc.IsNight())

	times := svc.Times()
	rise, ok := times.Sunrise.Get()
	require.True(t, ok)
	assert.Equal(t, "04:30", rise.Format("15:04"))
	assert.Equal(t, "2024-06-02T19:50:00+00:00", times.RawSunset)
}

func TestUpdateDay(t *testing.T) {
	src := hasstest.New()
	src.SetState(EntityID, "above_horizon", model.Attributes{
		"next_dawn": "2024-06-02T01:30:00+00:00",
		"next_dusk": "2024-06-01T20:45:00+00:00",
	})
	svc := newService(t)

	require.NoError(t, svc.Update(context.Background(), src))
	assert.False(t, svc.IsNight())
}

func TestIsNightFalseWhenDawnMissing(t *testing.T) {
	src := hasstest.New()
	src.SetState(EntityID, "below_horizon", model.Attributes{
		"next_dusk": "2024-06-02T20:45:00+00:00",
	})
	svc := newService(t)

	require.NoError(t, svc.Update(context.Background(), src))
	assert.False(t, svc.IsNight())
	assert.False(t, svc.Times().Dawn.IsSet())
}

func TestUnparsableTimestampsLeaveFieldsUnset(t *testing.T) {
	src := hasstest.New()
	src.SetState(EntityID, "above_horizon", model.Attributes{
		"next_dawn":    "not a time",
		"next_dusk":    "2024-06-02T20:45:00+00:00",
		"next_rising":  "later",
		"next_setting": 42,
	})
	svc := newService(t)

	require.NoError(t, svc.Update(context.Background(), src))
	times := svc.Times()
	assert.False(t, times.Dawn.IsSet())
	assert.False(t, times.Sunrise.IsSet())
	assert.False(t, times.Sunset.IsSet())
	assert.Equal(t, "later", times.RawSunrise)
	assert.Equal(t, "42", times.RawSunset)
	assert.False(t, svc.IsNight())
}

func TestUpdateFetchError(t *testing.T) {
	svc := newService(t)
	err := svc.Update(context.Background(), hasstest.New())
	assert.ErrorIs(t, err, hass.ErrEntityNotFound)
}
