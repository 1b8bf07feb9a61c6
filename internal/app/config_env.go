package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ApplyEnvOverrides overrides cfg fields with environment variables that are
// set. It runs after the config file and before explicit flags, so env beats
// the file and flags beat env.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.InputPath, "BUNKMATE_INPUT")
	setString(&cfg.PageURL, "BUNKMATE_URL")
	setString(&cfg.UserAgent, "BUNKMATE_USER_AGENT")
	setString(&cfg.Cookie, "BUNKMATE_COOKIE")
	setString(&cfg.StoreKind, "BUNKMATE_STORE")
	setString(&cfg.StoreDir, "BUNKMATE_STORE_DIR")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.NotifyChannel, "BUNKMATE_NOTIFY_CHANNEL")
	setString(&cfg.Listen, "BUNKMATE_LISTEN")
	setString(&cfg.OutputPDFPath, "BUNKMATE_PDF")

	if v := strings.TrimSpace(os.Getenv("BUNKMATE_TARGET")); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64); err == nil {
			cfg.Target = f
		} else {
			log.Warn().Str("value", v).Msg("ignoring BUNKMATE_TARGET")
		}
	}
	if v := strings.TrimSpace(os.Getenv("BUNKMATE_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retries = n
		}
	}

	setDuration := func(dst *time.Duration, key string) {
		if s := strings.TrimSpace(os.Getenv(key)); s != "" {
			if d, err := time.ParseDuration(s); err == nil {
				*dst = d
			} else {
				log.Warn().Str("key", key).Str("value", s).Msg("ignoring unparsable duration")
			}
		}
	}
	setDuration(&cfg.MaxAge, "BUNKMATE_MAX_AGE")
	setDuration(&cfg.PollInterval, "BUNKMATE_POLL_INTERVAL")
	setDuration(&cfg.Quiet, "BUNKMATE_QUIET")

	if v := strings.TrimSpace(os.Getenv("BUNKMATE_CORS_ORIGINS")); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	// Booleans override when env present and truthy/falsey
	setBool := func(dst *bool, key string) {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.StoreStrictPerms, "BUNKMATE_STORE_STRICT_PERMS")
	setBool(&cfg.Watch, "BUNKMATE_WATCH")
	setBool(&cfg.Serve, "BUNKMATE_SERVE")
	setBool(&cfg.StoreClear, "BUNKMATE_STORE_CLEAR")
}

// splitList splits a comma-separated list, dropping empty items.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
