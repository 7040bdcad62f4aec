// Package hasstest provides an in-memory Home Assistant source for tests.
package hasstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/model"
)

type Source struct {
	mu sync.Mutex

	States      map[string]*hass.EntityState
	Errors      map[string]error
	Forecasts   hass.Forecasts
	ForecastErr error

	Calls     []string
	Requests  []hass.ForecastRequest
	Opened    int
	CloseHits int
}

func New() *Source {
	return &Source{
		States:    map[string]*hass.EntityState{},
		Errors:    map[string]error{},
		Forecasts: hass.Forecasts{},
	}
}

func (s *Source) SetState(entityID, state string, attrs model.Attributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.States[entityID] = &hass.EntityState{EntityID: entityID, State: state, Attributes: attrs}
}

func (s *Source) Fail(entityID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors[entityID] = err
}

func (s *Source) GetEntityState(_ context.Context, entityID string) (*hass.EntityState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, entityID)
	if err, ok := s.Errors[entityID]; ok {
		return nil, err
	}
	st, ok := s.States[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hass.ErrEntityNotFound, entityID)
	}
	return st, nil
}

func (s *Source) GetForecast(_ context.Context, req hass.ForecastRequest) (hass.Forecasts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.ForecastErr != nil {
		return nil, s.ForecastErr
	}
	return s.Forecasts, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseHits++
	return nil
}

func (s *Source) OpenSource() hass.ScopedSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Opened++
	return s
}

var (
	_ hass.ScopedSource = (*Source)(nil)
	_ hass.Opener       = (*Source)(nil)
)
