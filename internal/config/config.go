package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerWSURL   string
	ServerAPIURL  string
	AuthToken     string
	Addr          string
	LocalAPIToken string
	LogLevel      string

	StorageDriver string
	SQLITEDsn     string
	PostgresDsn   string

	ReconnectBase     time.Duration
	ReconnectFactor   float64
	ReconnectMax      time.Duration
	ReconnectAttempts int
	AckTimeout        time.Duration
	SendRetryCeiling  int

	HeartbeatInterval time.Duration
	InactivityTimeout time.Duration
	PresenceCacheTTL  time.Duration

	TypingEmitInterval time.Duration
	TypingIdleStop     time.Duration
	TypingRemoteTTL    time.Duration

	PageSize int
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

// parse errors are collected so Load reports every bad key at once
type loader struct{ errs []error }

func (l *loader) getint(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (l *loader) getfloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(getenv(key, strconv.FormatFloat(def, 'f', -1, 64)), 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

func (l *loader) getduration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getenv(key, def.String()))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return v
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var l loader
	cfg := Config{
		ServerWSURL:   getenv("SERVER_WS_URL", "ws://localhost:8080/api/ws"),
		ServerAPIURL:  getenv("SERVER_API_URL", "http://localhost:8080/api"),
		AuthToken:     getenv("AUTH_TOKEN", ""),
		Addr:          getenv("HTTP_ADDR", "127.0.0.1:7070"),
		LocalAPIToken: getenv("LOCAL_API_TOKEN", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		StorageDriver: getenv("STORAGE_DRIVER", "sqlite"),
		SQLITEDsn:     getenv("SQLITE_DSN", "file:mmsync.db?_pragma=foreign_keys(ON)"),
		PostgresDsn:   getenv("POSTGRES_DSN", ""),

		ReconnectBase:     l.getduration("RECONNECT_BASE", time.Second),
		ReconnectFactor:   l.getfloat("RECONNECT_FACTOR", 2),
		ReconnectMax:      l.getduration("RECONNECT_MAX", 30*time.Second),
		ReconnectAttempts: l.getint("RECONNECT_ATTEMPTS", 10),
		AckTimeout:        l.getduration("ACK_TIMEOUT", 10*time.Second),
		SendRetryCeiling:  l.getint("SEND_RETRY_CEILING", 5),

		HeartbeatInterval: l.getduration("HEARTBEAT_INTERVAL", 30*time.Second),
		InactivityTimeout: l.getduration("INACTIVITY_TIMEOUT", 5*time.Minute),
		PresenceCacheTTL:  l.getduration("PRESENCE_CACHE_TTL", 2*time.Minute),

		TypingEmitInterval: l.getduration("TYPING_EMIT_INTERVAL", time.Second),
		TypingIdleStop:     l.getduration("TYPING_IDLE_STOP", 4*time.Second),
		TypingRemoteTTL:    l.getduration("TYPING_REMOTE_TTL", 6*time.Second),

		PageSize: l.getint("PAGE_SIZE", 50),
	}
	if err := errors.Join(l.errs...); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

func (c Config) Validate() error {
	var errs []error
	if c.ServerWSURL == "" || c.ServerAPIURL == "" {
		errs = append(errs, errors.New("SERVER_WS_URL and SERVER_API_URL are required"))
	}
	if c.AuthToken == "" {
		errs = append(errs, errors.New("AUTH_TOKEN is required"))
	}
	switch c.StorageDriver {
	case "sqlite":
	case "postgres":
		if c.PostgresDsn == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q: want sqlite or postgres", c.StorageDriver))
	}
	if c.ReconnectBase <= 0 || c.ReconnectMax < c.ReconnectBase {
		errs = append(errs, errors.New("RECONNECT_BASE must be positive and not above RECONNECT_MAX"))
	}
	if c.ReconnectFactor < 1 {
		errs = append(errs, errors.New("RECONNECT_FACTOR must be at least 1"))
	}
	if c.ReconnectAttempts < 1 || c.SendRetryCeiling < 1 {
		errs = append(errs, errors.New("RECONNECT_ATTEMPTS and SEND_RETRY_CEILING must be at least 1"))
	}
	if c.AckTimeout <= 0 || c.HeartbeatInterval <= 0 || c.InactivityTimeout <= 0 || c.PresenceCacheTTL <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.TypingEmitInterval <= 0 || c.TypingIdleStop <= 0 || c.TypingRemoteTTL <= 0 {
		errs = append(errs, errors.New("typing intervals must be positive"))
	}
	if c.PageSize < 1 || c.PageSize > 500 {
		errs = append(errs, errors.New("PAGE_SIZE must be between 1 and 500"))
	}
	return errors.Join(errs...)
}
