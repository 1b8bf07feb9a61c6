package app

import (
	"time"

	"github.com/hyperifyio/bunkmate/internal/calc"
	"github.com/hyperifyio/bunkmate/internal/driver"
	"github.com/hyperifyio/bunkmate/internal/store"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Document source. InputPath wins over PageURL; PageURL is still
	// recorded as the page address for a local file.
	InputPath string
	PageURL   string
	UserAgent string
	// Cookie is sent with every portal request so a logged-in session can
	// be reused.
	Cookie string

	Target float64 `validate:"gt=0,lte=100"`

	// Persistence
	StoreKind        string `validate:"oneof=file redis memory"`
	StoreDir         string `validate:"required_if=StoreKind file"`
	StoreStrictPerms bool
	StoreClear       bool
	MaxAge           time.Duration `validate:"gte=0"`

	// Redis. Follow prints notifications published by other processes.
	RedisAddr     string `validate:"required_if=StoreKind redis"`
	NotifyChannel string
	Follow        bool `validate:"excluded_without=RedisAddr"`

	// Driver
	Retries      int           `validate:"gte=1,lte=20"`
	RetryDelay   time.Duration `validate:"gte=0"`
	Watch        bool
	PollInterval time.Duration `validate:"gte=0"`
	Quiet        time.Duration `validate:"gte=0"`

	// HTTP service
	Serve       bool
	Listen      string `validate:"required_if=Serve true"`
	CORSOrigins []string

	// Output
	OutputPDFPath string
	Verbose       bool
}

// Defaults used by flags and by ApplyFileConfig to detect unset values.
const (
	DefaultStoreDir  = ".bunkmate"
	DefaultListen    = "127.0.0.1:8088"
	DefaultUserAgent = "bunkmate/1.0 (+https://github.com/hyperifyio/bunkmate)"
)

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		UserAgent:    DefaultUserAgent,
		Target:       calc.DefaultTarget,
		StoreKind:    StoreFile,
		StoreDir:     DefaultStoreDir,
		MaxAge:       store.DefaultMaxAge,
		Retries:      driver.DefaultRetries,
		RetryDelay:   driver.DefaultRetryDelay,
		PollInterval: driver.DefaultPollInterval,
		Quiet:        driver.DefaultQuiet,
		Listen:       DefaultListen,
	}
}
