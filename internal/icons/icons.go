package icons

import "strings"

const (
	PartlyCloudy      = "weather-partly-cloudy"
	NightPartlyCloudy = "weather-night-partly-cloudy"
)

type entry struct {
	condition string
	icon      string
}

// Multi-word conditions come before the single words they contain.
var conditionTable = []entry{
	{"lightning-rainy", "weather-lightning-rainy"},
	{"snowy-rainy", "weather-snowy-rainy"},
	{"windy-variant", "weather-windy-variant"},
	{"clear-night", "weather-night"},
	{"lightning", "weather-lightning"},
	{"hail", "weather-hail"},
	{"pouring", "weather-pouring"},
	{"rainy", "weather-rainy"},
	{"snowy", "weather-snowy"},
	{"partlycloudy", PartlyCloudy},
	{"cloudy", "weather-cloudy"},
	{"fog", "weather-fog"},
	{"sunny", "weather-sunny"},
	{"windy", "weather-windy"},
	{"exceptional", "weather-cloudy-alert"},
}

var normalizedTable = buildNormalizedTable()

func buildNormalizedTable() map[string]string {
	m := make(map[string]string, len(conditionTable))
	for _, e := range conditionTable {
		key := normalize(e.condition)
		if _, exists := m[key]; exists {
			continue
		}
		m[key] = e.icon
	}
	return m
}

// normalize keeps ASCII letters and digits only, lowercased.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
		}
	}
	return b.String()
}

// Resolve maps a weather condition to an icon id. The second return is false
// when the condition is unknown or empty.
func Resolve(condition string, isNight bool) (string, bool) {
	key := normalize(condition)
	if key == "" {
		return "", false
	}
	icon, ok := normalizedTable[key]
	if !ok {
		return "", false
	}
	if icon == PartlyCloudy && isNight {
		icon = NightPartlyCloudy
	}
	return icon, true
}

// Conditions lists the canonical condition keys in lookup order.
func Conditions() []string {
	out := make([]string, 0, len(conditionTable))
	for _, e := range conditionTable {
		out = append(out, e.condition)
	}
	return out
}
