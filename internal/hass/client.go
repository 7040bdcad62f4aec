package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/thatsimonsguy/hass-dash/internal/model"
)

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrUpstream       = errors.New("home assistant request failed")
	ErrSessionClosed  = errors.New("session closed")
)

// EntityState is the body of GET /api/states/<entity_id>.
type EntityState struct {
	EntityID    string           `json:"entity_id"`
	State       string           `json:"state"`
	Attributes  model.Attributes `json:"attributes"`
	LastChanged string           `json:"last_changed"` // "2023-12-27T15:28:26.287133+00:00"
	LastUpdated string           `json:"last_updated"`
}

// ForecastRequest targets weather.get_forecasts. DeviceID wins over EntityID
// when both are set.
type ForecastRequest struct {
	DeviceID string
	EntityID string
	Type     string // "hourly", "daily", "twice_daily"
}

// Forecasts maps a weather entity id to its forecast records.
type Forecasts map[string][]model.Attributes

// Source is what the entity services need from Home Assistant.
type Source interface {
	GetEntityState(ctx context.Context, entityID string) (*EntityState, error)
	GetForecast(ctx context.Context, req ForecastRequest) (Forecasts, error)
}

type httpStatusError struct {
	status int
	body   string
}

func (e httpStatusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("home assistant returned status %d", e.status)
	}
	return fmt.Sprintf("home assistant returned status %d: %s", e.status, e.body)
}

func (e httpStatusError) Unwrap() error {
	if e.status == http.StatusNotFound {
		return ErrEntityNotFound
	}
	return ErrUpstream
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit caps outgoing requests. rps may be fractional.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open starts a session. Callers must Close it on every path.
func (c *Client) Open() *Session {
	return &Session{client: c, opened: time.Now()}
}

// ScopedSource is a Source bound to a session that must be closed.
type ScopedSource interface {
	Source
	Close() error
}

// Opener hands out scoped sources, one per render cycle.
type Opener interface {
	OpenSource() ScopedSource
}

func (c *Client) OpenSource() ScopedSource {
	return c.Open()
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait canceled: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUpstream, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %w", method, path, httpStatusError{status: resp.StatusCode, body: strings.TrimSpace(string(b))})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}

// Session is one scoped use of the client.
type Session struct {
	client   *Client
	opened   time.Time
	requests int
	closed   bool
}

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.client.httpClient.CloseIdleConnections()
	log.Debug().
		Int("requests", s.requests).
		Dur("duration", time.Since(s.opened)).
		Msg("Home Assistant session closed")
	return nil
}

func (s *Session) GetEntityState(ctx context.Context, entityID string) (*EntityState, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.requests++

	var state EntityState
	if err := s.client.do(ctx, http.MethodGet, "/api/states/"+url.PathEscape(entityID), nil, &state); err != nil {
		return nil, fmt.Errorf("get state of %s: %w", entityID, err)
	}
	if state.Attributes == nil {
		state.Attributes = model.Attributes{}
	}
	return &state, nil
}

type forecastResponse struct {
	ServiceResponse map[string]struct {
		Forecast json.RawMessage `json:"forecast"`
	} `json:"service_response"`
}

func (s *Session) GetForecast(ctx context.Context, req ForecastRequest) (Forecasts, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.requests++

	body := map[string]any{"type": req.Type}
	switch {
	case req.DeviceID != "":
		body["device_id"] = req.DeviceID
	case req.EntityID != "":
		body["entity_id"] = req.EntityID
	default:
		return nil, fmt.Errorf("forecast request needs a device_id or entity_id")
	}

	var resp forecastResponse
	if err := s.client.do(ctx, http.MethodPost, "/api/services/weather/get_forecasts?return_response", body, &resp); err != nil {
		return nil, fmt.Errorf("get %s forecast: %w", req.Type, err)
	}

	out := make(Forecasts, len(resp.ServiceResponse))
	for entityID, block := range resp.ServiceResponse {
		var records []model.Attributes
		if err := json.Unmarshal(block.Forecast, &records); err != nil {
			return nil, fmt.Errorf("%w: forecast data for %s is not a list", ErrUpstream, entityID)
		}
		out[entityID] = records
	}
	return out, nil
}

var (
	_ ScopedSource = (*Session)(nil)
	_ Opener       = (*Client)(nil)
)
