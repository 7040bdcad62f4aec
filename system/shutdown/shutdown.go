package shutdown

import (
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/internal/datadog"
	"github.com/thatsimonsguy/hass-dash/internal/panel"
)

var (
	mu     sync.Mutex
	active panel.Panel
	exit   = os.Exit
)

// Register sets the panel that Shutdown puts to sleep.
func Register(p panel.Panel) {
	mu.Lock()
	defer mu.Unlock()
	active = p
}

// Release puts the registered panel into deep sleep and closes it.
func Release() {
	mu.Lock()
	p := active
	active = nil
	mu.Unlock()

	if p == nil {
		return
	}
	if err := p.Sleep(); err != nil {
		log.Error().Err(err).Msg("Failed to put panel to sleep")
	} else {
		log.Info().Msg("Panel asleep")
	}
	if err := p.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close panel")
	}
}

func Shutdown() {
	Release()
	datadog.Close()
	log.Info().Msg("hass-dash stopped")
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Release()
	datadog.Close()
	exit(1)
}
