package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/thatsimonsguy/hass-dash/db"
	"github.com/thatsimonsguy/hass-dash/internal/compositor"
	"github.com/thatsimonsguy/hass-dash/internal/config"
	"github.com/thatsimonsguy/hass-dash/internal/env"
	"github.com/thatsimonsguy/hass-dash/internal/hass"
	"github.com/thatsimonsguy/hass-dash/internal/localize"
	"github.com/thatsimonsguy/hass-dash/internal/logging"
	"github.com/thatsimonsguy/hass-dash/internal/panel"
	"github.com/thatsimonsguy/hass-dash/internal/pinctrl"
	"github.com/thatsimonsguy/hass-dash/internal/pipeline"
	"github.com/thatsimonsguy/hass-dash/internal/store"
	"github.com/thatsimonsguy/hass-dash/internal/sun"
	"github.com/thatsimonsguy/hass-dash/internal/weather"
	"github.com/thatsimonsguy/hass-dash/system/startup"
)

func main() {
	DebugCLI()
}

type options struct {
	dbPath    string
	command   string
	entity    string
	out       string
	roomsFile string
	assetsDir string
	limit     int
	keep      time.Duration
	logLevel  string
}

func DebugCLI() {
	var o options
	flag.StringVar(&o.dbPath, "db", "data/hass-dash.db", "Path to the SQLite cycle journal")
	flag.StringVar(&o.command, "cmd", "", "Command to run: render, state, weather, cycles, prune, pins, install-service, park-pins")
	flag.StringVar(&o.entity, "entity", "", "Entity id for the state command")
	flag.StringVar(&o.out, "out", "preview.bmp", "Output image for the render command")
	flag.StringVar(&o.roomsFile, "rooms-file", "rooms.yml", "Path to the rooms YAML file")
	flag.StringVar(&o.assetsDir, "assets-dir", "assets", "Directory holding background, icons and fonts")
	flag.IntVar(&o.limit, "limit", 10, "Number of cycles to list")
	flag.DurationVar(&o.keep, "keep", 7*24*time.Hour, "Journal retention for the prune command")
	flag.StringVar(&o.logLevel, "log-level", "warn", "Log level")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || o.command == "" {
		fmt.Println("\nUsage of hass-dash-debug:")
		flag.PrintDefaults()
		fmt.Println("\nCommands:")
		fmt.Println("  render           compose a frame from live data and write it to -out")
		fmt.Println("  state            dump an entity's state and attributes as JSON")
		fmt.Println("  weather          print the current weather and forecast window")
		fmt.Println("  cycles           list recent render cycles")
		fmt.Println("  prune            delete cycles older than -keep")
		fmt.Println("  pins             show the panel pin states")
		fmt.Println("  install-service  write the boot script and systemd units")
		fmt.Println("  park-pins        apply the boot pin state now")
		os.Exit(0)
	}

	var err error
	switch o.command {
	case "render":
		err = render(o)
	case "state":
		if o.entity == "" {
			fmt.Println("Error: -entity is required")
			os.Exit(1)
		}
		err = dumpState(o)
	case "weather":
		err = printWeather(o)
	case "cycles":
		err = db.ListCyclesCLI(os.Stdout, o.dbPath, o.limit)
	case "prune":
		err = db.PruneCyclesCLI(os.Stdout, o.dbPath, o.keep)
	case "pins":
		err = printPins(o)
	case "install-service":
		err = installService(o)
	case "park-pins":
		cfg := loadConfig(o)
		err = startup.ParkPins(cfg.PanelPins)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", o.command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", o.command)
}

// loadConfig reads the same .env and environment as the service, without
// its command line.
func loadConfig(o options) *config.Config {
	cfg := config.LoadFrom(flag.NewFlagSet("hass-dash", flag.ContinueOnError), nil)
	cfg.DBPath = o.dbPath
	cfg.RoomsFile = o.roomsFile
	cfg.AssetsDir = o.assetsDir
	env.Cfg = &cfg

	logging.Init(config.ParseLogLevel(o.logLevel), "-")
	if err := localize.Init(cfg.Timezone); err != nil {
		fmt.Printf("Warning: %v, using %s\n", err, localize.DefaultZone)
	}
	return &cfg
}

func newClient(cfg *config.Config) *hass.Client {
	return hass.New(cfg.HassURL, cfg.HassToken)
}

func render(o options) error {
	cfg := loadConfig(o)
	rooms, err := config.LoadRooms(cfg.RoomsFile)
	if err != nil {
		return err
	}
	fonts, err := compositor.LoadFonts(compositor.FindFont(cfg.AssetsDir))
	if err != nil {
		return err
	}

	frames := store.New(o.out)
	driver := pipeline.New(
		newClient(cfg),
		localize.Default(),
		weather.Config{EntityID: cfg.WeatherEntity, ForecastDevice: cfg.ForecastDevice},
		rooms,
		compositor.New(cfg.AssetsDir, fonts),
		filepath.Join(cfg.AssetsDir, "background.bmp"),
		panel.NewFilePanel(frames, compositor.PanelWidth, compositor.PanelHeight),
	)

	cycle, err := driver.RunCycle(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Cycle %s: %s\n", cycle.ID, cycle.Status)
	for _, s := range cycle.Sections {
		fmt.Printf("  %-8s %-8s %6s %s\n", s.Name, s.Status, s.Duration.Round(time.Millisecond), s.Error)
	}
	fmt.Printf("Frame written to %s\n", frames.Path())
	return nil
}

func dumpState(o options) error {
	cfg := loadConfig(o)
	sess := newClient(cfg).Open()
	defer sess.Close()

	state, err := sess.GetEntityState(context.Background(), o.entity)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

func printWeather(o options) error {
	cfg := loadConfig(o)
	ctx := context.Background()
	sess := newClient(cfg).Open()
	defer sess.Close()

	sunSvc := sun.NewService(localize.Default())
	if err := sunSvc.Update(ctx, sess); err != nil {
		return err
	}
	svc := weather.NewService(
		weather.Config{EntityID: cfg.WeatherEntity, ForecastDevice: cfg.ForecastDevice},
		sunSvc.IsNight(),
		localize.Default(),
	)
	if err := svc.Update(ctx, sess); err != nil {
		return err
	}

	title := cases.Title(language.English)
	current, _ := svc.Current()
	fmt.Printf("Now: %s  %s  humidity %s  icon %s\n",
		title.String(current.Condition.OrElse("unknown")),
		compositor.FormatTemperature(current.Temperature),
		compositor.FormatHumidity(current.Humidity),
		current.IconID.OrElse("-"),
	)

	times := sunSvc.Times()
	rise, okRise := times.Sunrise.Get()
	set, okSet := times.Sunset.Get()
	fmt.Printf("Sun: rise %s  set %s  night %v\n",
		localize.Clock(rise, okRise, times.RawSunrise),
		localize.Clock(set, okSet, times.RawSunset),
		times.IsNight(),
	)

	fmt.Printf("Forecast (%d records):\n", len(current.Forecast))
	for _, item := range svc.Forecast() {
		ts, ok := item.Timestamp.Get()
		fmt.Printf("  %5s  %-8s %-18s %s\n",
			localize.Clock(ts, ok, item.RawTimestamp),
			compositor.FormatTemperature(item.Temperature),
			title.String(item.Condition.OrElse("-")),
			item.IconID.OrElse("-"),
		)
	}
	return nil
}

func printPins(o options) error {
	cfg := loadConfig(o)
	labels := map[string]string{
		cfg.PanelPins.Reset: "reset",
		cfg.PanelPins.DC:    "dc",
		cfg.PanelPins.Busy:  "busy",
		cfg.PanelPins.Power: "power",
	}
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)

	states, err := pinctrl.ReadPins(names...)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Printf("%-6s %-7s %s\n", labels[name], name, states[name])
	}

	busy, err := pinctrl.PinNumber(cfg.PanelPins.Busy)
	if err != nil {
		return err
	}
	idle, err := pinctrl.ReadLevel(busy)
	if err != nil {
		return err
	}
	if idle {
		fmt.Println("Panel is idle (busy line high)")
	} else {
		fmt.Println("Panel is busy (busy line low)")
	}
	return nil
}

func installService(o options) error {
	loadConfig(o)
	if err := startup.WriteStartupScript(); err != nil {
		return fmt.Errorf("write boot script: %w", err)
	}
	if err := startup.InstallStartupService(); err != nil {
		return fmt.Errorf("install boot service: %w", err)
	}
	if err := startup.InstallDashService(); err != nil {
		return fmt.Errorf("install dashboard service: %w", err)
	}
	fmt.Printf("Wrote %s, %s and %s\n", env.Cfg.BootScriptPath, env.Cfg.BootServicePath, env.Cfg.ServicePath)
	return nil
}
