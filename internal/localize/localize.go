package localize

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

const DefaultZone = "Europe/Copenhagen"

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Layouts tried in order. Timestamps without an offset are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

type Localizer struct {
	loc *time.Location
}

func New(zone string) (*Localizer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &Localizer{loc: loc}, nil
}

func (l *Localizer) Location() *time.Location {
	return l.loc
}

// Localize parses an ISO-8601 timestamp and converts it to the target zone.
func (l *Localizer) Localize(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTimestamp)
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, trimmed, time.UTC)
		if err == nil {
			return t.In(l.loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

var (
	mu       sync.RWMutex
	instance *Localizer
)

// Init sets the process-wide target zone. It is meant to be called once at
// startup, before any entity is parsed.
func Init(zone string) error {
	l, err := New(zone)
	if err != nil {
		return err
	}
	mu.Lock()
	instance = l
	mu.Unlock()
	return nil
}

func Default() *Localizer {
	mu.RLock()
	l := instance
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		l, err := New(DefaultZone)
		if err != nil {
			// tzdata is embedded, so this only fails on a broken build
			panic(err)
		}
		instance = l
	}
	return instance
}

// Localize converts with the process-wide localizer.
func Localize(s string) (time.Time, error) {
	return Default().Localize(s)
}

// Now returns the current time in the target zone.
func Now() time.Time {
	return time.Now().In(Default().Location())
}

// Clock formats t as HH:MM, or returns raw when t is not set.
func Clock(t time.Time, ok bool, raw string) string {
	if !ok {
		return raw
	}
	return t.Format("15:04")
}
