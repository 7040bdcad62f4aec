package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrConfig = errors.New("configuration error")

// PanelPins names the GPIO lines of the e-paper HAT.
type PanelPins struct {
	SPIPort string
	Reset   string
	DC      string
	Busy    string
	Power   string
}

type Config struct {
	HassURL        string
	HassToken      string
	WeatherEntity  string
	ForecastDevice string
	Timezone       string
	RateLimitRPS   float64

	RoomsFile  string
	AssetsDir  string
	FontFile   string
	OutputFile string
	DBPath     string

	Panel      string
	PanelPins  PanelPins
	Schedule   string
	ListenAddr string

	LogLevel zerolog.Level
	LogFile  string

	EnableDatadog bool
	DDAgentAddr   string
	DDNamespace   string
	DDTags        []string

	ServicePath     string
	BootScriptPath  string
	BootServicePath string
	ServiceUser     string
	WorkDir         string
}

// Load reads .env, the environment and the command line flags. Missing
// required settings panic.
func Load() Config {
	return LoadFrom(flag.CommandLine, os.Args[1:])
}

func LoadFrom(fs *flag.FlagSet, args []string) Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	var cfg Config
	var logLevel string
	var ddTags string

	fs.StringVar(&cfg.RoomsFile, "rooms-file", "rooms.yml", "Path to the rooms YAML file")
	fs.StringVar(&cfg.AssetsDir, "assets-dir", "assets", "Directory holding background, icons and fonts")
	fs.StringVar(&cfg.FontFile, "font", "", "TrueType font file (default: embedded Go font)")
	fs.StringVar(&cfg.OutputFile, "output", "data/frame.bmp", "Where the last rendered frame is written")
	fs.StringVar(&cfg.DBPath, "db", "data/hass-dash.db", "Path to the SQLite cycle journal")
	fs.StringVar(&cfg.Panel, "panel", "epd", "Panel output: epd or file")
	fs.StringVar(&cfg.Schedule, "schedule", "0 */15 * * * *", "Cron schedule for render cycles (empty: run once)")
	fs.StringVar(&cfg.ListenAddr, "listen", "", "Address for the status API (empty: disabled)")
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFile, "log-file", "-", "Log file path ('-' for stderr)")
	fs.StringVar(&cfg.ServicePath, "service-path", "/etc/systemd/system/hass-dash.service", "systemd unit path")
	fs.StringVar(&cfg.BootScriptPath, "boot-script", "/usr/local/bin/hass-dash-pins.sh", "Boot script that parks the panel pins")
	fs.StringVar(&cfg.BootServicePath, "boot-service-path", "/etc/systemd/system/hass-dash-pins.service", "systemd unit path for the boot script")
	fs.Parse(args)

	cfg.LogLevel = ParseLogLevel(logLevel)

	cfg.HassURL = os.Getenv("HASS_URL")
	cfg.HassToken = os.Getenv("HASS_TOKEN")
	cfg.WeatherEntity = getenv("HASS_WEATHER_ENTITY", "weather.home")
	cfg.ForecastDevice = os.Getenv("HASS_FORECAST_DEVICE_ID")
	cfg.Timezone = getenv("DASH_TIMEZONE", "Europe/Copenhagen")
	cfg.RateLimitRPS = getenvFloat("HASS_RATE_LIMIT_RPS", 5)

	cfg.PanelPins = PanelPins{
		SPIPort: getenv("EPD_SPI_PORT", ""),
		Reset:   getenv("EPD_RST_PIN", "GPIO17"),
		DC:      getenv("EPD_DC_PIN", "GPIO25"),
		Busy:    getenv("EPD_BUSY_PIN", "GPIO24"),
		Power:   getenv("EPD_PWR_PIN", "GPIO18"),
	}

	cfg.ServiceUser = getenv("DASH_SERVICE_USER", "pi")
	cfg.WorkDir = getenv("DASH_WORKDIR", "/home/pi/hass-dash")

	cfg.DDAgentAddr = os.Getenv("DD_AGENT_ADDR")
	cfg.EnableDatadog = cfg.DDAgentAddr != ""
	cfg.DDNamespace = getenv("DD_NAMESPACE", "hass_dash.")
	ddTags = os.Getenv("DD_TAGS")
	if ddTags != "" {
		cfg.DDTags = strings.Split(ddTags, ",")
	}

	cfg.validate()
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Ignoring invalid numeric setting")
		return fallback
	}
	return f
}

func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var missing []string
	if cfg.HassURL == "" {
		missing = append(missing, "HASS_URL")
	}
	if cfg.HassToken == "" {
		missing = append(missing, "HASS_TOKEN")
	}
	if len(missing) > 0 {
		panic("Missing required environment: " + strings.Join(missing, ", "))
	}

	switch cfg.Panel {
	case "epd", "file":
	default:
		panic("Unknown panel output " + strconv.Quote(cfg.Panel) + " (want epd or file)")
	}
}
