package env

import (
	"github.com/thatsimonsguy/hass-dash/internal/config"
)

var (
	Cfg *config.Config
)
