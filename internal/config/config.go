package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds pixnetd server settings, loaded from environment variables
// with flag.Parse expected to override individual fields afterward (see
// cmd/pixnet-server).
type Config struct {
	Host          string // bind address, e.g. 0.0.0.0
	Port          int
	ContentDir    string // directory scanned for *.pxnt pages
	MaxConns      int
	SessionMaxAge time.Duration // inactive sessions older than this are swept
	SweepInterval time.Duration

	Verbose       bool   // dump decoded pages via go-spew on load
	ManifestCache string // path to the sqlite manifest cache; "" disables it

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load reads Config from environment. Call LoadEnvFile(".env") before Load
// to source a .env file first.
func Load() *Config {
	c := &Config{
		Host:          getEnv("PIXNET_HOST", "127.0.0.1"),
		Port:          getEnvInt("PIXNET_PORT", 7621),
		ContentDir:    getEnv("PIXNET_CONTENT_DIR", "./content"),
		MaxConns:      getEnvInt("PIXNET_MAX_CONNS", 64),
		SessionMaxAge: getEnvDuration("PIXNET_SESSION_MAX_AGE", 300*time.Second),
		SweepInterval: getEnvDuration("PIXNET_SWEEP_INTERVAL", 60*time.Second),
		Verbose:       getEnvBool("PIXNET_VERBOSE", false),
		ManifestCache: getEnv("PIXNET_MANIFEST_CACHE", ""),
		ReadTimeout:   getEnvDuration("PIXNET_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:  getEnvDuration("PIXNET_WRITE_TIMEOUT", 10*time.Second),
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.SessionMaxAge <= 0 {
		c.SessionMaxAge = 300 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultVal
	}
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
