package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mcdev12/liveshop/go/internal/bus"
)

const (
	BusDriverNATS   = bus.DriverNATS
	BusDriverMemory = bus.DriverMemory
)

// Config holds the settings shared by the game server and the gateway.
type Config struct {
	BusDriver      string
	NATSURL        string
	SubjectPrefix  string
	StreamName     string
	HistoryMaxAge  time.Duration
	HistoryReplay  int
	TickInterval   time.Duration
	GuidedDemo     bool
	MaxLoops       int
	StrictNoReplay bool
	HTTPAddr       string
	GatewayAddr    string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
	CatalogDir     string
}

// Load reads .env files into the environment. A missing file is not an error.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// NewConfigFromEnv reads the environment (with defaults).
func NewConfigFromEnv() Config {
	return Config{
		BusDriver:      strings.ToLower(getEnv("BUS_DRIVER", BusDriverNATS)),
		NATSURL:        getEnv("NATS_URL", "nats://localhost:4222"),
		SubjectPrefix:  getEnv("BUS_SUBJECT_PREFIX", "livestream"),
		StreamName:     getEnv("BUS_STREAM_NAME", "LIVESTREAM_HISTORY"),
		HistoryMaxAge:  getEnvAsDuration("BUS_HISTORY_MAX_AGE", 24*time.Hour),
		HistoryReplay:  getEnvAsInt("HISTORY_REPLAY_LIMIT", 100),
		TickInterval:   getEnvAsDuration("TICK_INTERVAL", time.Second),
		GuidedDemo:     getEnvAsBool("GUIDED_DEMO", false),
		MaxLoops:       getEnvAsInt("MAX_LOOPS", 5),
		StrictNoReplay: getEnvAsBool("STRICT_NO_REPLAY", false),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		GatewayAddr:    getEnv("GATEWAY_ADDR", ":8081"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "console"),
		CatalogDir:     getEnv("CATALOG_DIR", ""),
	}
}

// Validate reports settings the binaries cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.BusDriver {
	case BusDriverNATS, BusDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("BUS_DRIVER must be %q or %q, got %q", BusDriverNATS, BusDriverMemory, c.BusDriver))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval))
	}
	if c.MaxLoops < 0 {
		errs = append(errs, fmt.Errorf("MAX_LOOPS must not be negative, got %d", c.MaxLoops))
	}
	return errors.Join(errs...)
}

// BusConfig maps the bus settings onto the NATS transport config.
func (c Config) BusConfig() bus.NATSConfig {
	cfg := bus.DefaultNATSConfig()
	cfg.URL = c.NATSURL
	cfg.SubjectPrefix = c.SubjectPrefix
	cfg.StreamName = c.StreamName
	cfg.MaxAge = c.HistoryMaxAge
	return cfg
}

// AutoStart reports whether the timeline starts at boot. Guided demos wait for START_STREAM.
func (c Config) AutoStart() bool {
	return !c.GuidedDemo
}

// LoopLimit is the number of wrap-arounds before the loop stops; zero means unlimited.
func (c Config) LoopLimit() int {
	if !c.GuidedDemo {
		return 0
	}
	return c.MaxLoops
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if b, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return b
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
