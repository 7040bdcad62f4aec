package main

import (
	"context"
	"math"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/hass-dash/db"
	"github.com/thatsimonsguy/hass-dash/internal/api"
	"github.com/thatsimonsguy/hass-dash/internal/compositor"
	"github.com/thatsimonsguy/hass-dash/internal/config"
	"github.com/thatsimonsguy/hass-dash/internal/datadog"
	"github.com/thatsimonsguy/hass-dash/internal/env"
	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/logging"
	"github.com/thatsimonsguy/hass-dash/internal/panel"
	"github.com/thatsimonsguy/hass-dash/internal/panel/epd"
	"github.com/thatsimonsguy/hass-dash/internal/pipeline"
	"github.com/thatsimonsguy/hass-dash/internal/store"
	"github.com/thatsimonsguy/hass-dash/internal/weather"
	"github.com/thatsimonsguy/hass-dash/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("hass_url", cfg.HassURL).
		Str("panel", cfg.Panel).
		Str("schedule", cfg.Schedule).
		Msg("Starting hass-dash")

	if err := localize.Init(cfg.Timezone); err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("Unknown timezone")
	}
	datadog.InitMetrics()

	rooms, err := config.LoadRooms(cfg.RoomsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.RoomsFile).Msg("Failed to load rooms")
	}
	log.Info().Int("rooms", len(rooms)).Msg("Loaded rooms")

	fontPath := cfg.FontFile
	if fontPath == "" {
		fontPath = compositor.FindFont(cfg.AssetsDir)
	}
	fonts, err := compositor.LoadFonts(fontPath)
	if err != nil {
		log.Warn().Err(err).Str("path", fontPath).Msg("Font unavailable, using embedded font")
		fonts, err = compositor.LoadFonts("")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load embedded font")
		}
	}

	burst := int(math.Max(1, math.Ceil(cfg.RateLimitRPS)))
	client := hass.New(cfg.HassURL, cfg.HassToken, hass.WithRateLimit(cfg.RateLimitRPS, burst))

	frames := store.New(cfg.OutputFile)
	p, driverOpts := openPanel(&cfg, frames)
	shutdown.Register(p)

	start := time.Now()
	if err := p.Clear(); err != nil {
		shutdown.ShutdownWithError(err, "Failed to clear panel")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Panel cleared")

	journal, err := db.Open(cfg.DBPath)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open cycle journal")
	}
	driverOpts = append(driverOpts, pipeline.WithJournal(journal))

	driver := pipeline.New(
		client,
		localize.Default(),
		weather.Config{EntityID: cfg.WeatherEntity, ForecastDevice: cfg.ForecastDevice},
		rooms,
		compositor.New(cfg.AssetsDir, fonts),
		filepath.Join(cfg.AssetsDir, "background.bmp"),
		p,
		driverOpts...,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ListenAddr != "" {
		srv := api.NewServer(journal, driver, frames)
		go func() {
			if err := srv.Start(ctx, cfg.ListenAddr); err != nil {
				log.Error().Err(err).Msg("Status API stopped")
			}
		}()
	}

	if cfg.Schedule == "" {
		_, err := driver.RunCycle(ctx)
		journal.Close()
		if err != nil {
			shutdown.ShutdownWithError(err, "Render cycle failed")
		}
		shutdown.Shutdown()
	}

	sched, err := pipeline.NewScheduler(driver, cfg.Schedule)
	if err != nil {
		shutdown.ShutdownWithError(err, "Invalid render schedule")
	}

	if _, err := driver.RunCycle(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial render cycle failed, waiting for the schedule")
	}
	sched.Run(ctx)

	journal.Close()
	shutdown.Shutdown()
}

// openPanel selects the hardware driver or the preview file. The file panel
// already writes the frame store, so only the hardware path adds a preview
// saver to the driver.
func openPanel(cfg *config.Config, frames *store.Store) (panel.Panel, []pipeline.Option) {
	if cfg.Panel == "file" {
		log.Info().Str("output", frames.Path()).Msg("Using preview file panel")
		return panel.NewFilePanel(frames, compositor.PanelWidth, compositor.PanelHeight), nil
	}

	start := time.Now()
	dev, err := epd.Open(epd.Pins{
		SPIPort: cfg.PanelPins.SPIPort,
		Reset:   cfg.PanelPins.Reset,
		DC:      cfg.PanelPins.DC,
		Busy:    cfg.PanelPins.Busy,
		Power:   cfg.PanelPins.Power,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open e-paper panel")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("E-paper panel opened")
	return dev, []pipeline.Option{pipeline.WithFrameSaver(frames)}
}
