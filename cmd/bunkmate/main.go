package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/bunkmate/internal/app"
)

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	var (
		configPath string
		envFiles   string
		cors       string
		version    bool
	)
	fl := app.DefaultConfig()

	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file (default $BUNKMATE_CONFIG)")
	flag.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load; missing files are skipped")
	flag.StringVar(&fl.InputPath, "input", "", "Saved attendance page (HTML file)")
	flag.StringVar(&fl.PageURL, "url", "", "Attendance page URL; fetched when -input is not set")
	flag.StringVar(&fl.UserAgent, "ua", fl.UserAgent, "User-Agent for portal requests")
	flag.StringVar(&fl.Cookie, "cookie", "", "Cookie header for portal requests, e.g. a session cookie")
	flag.Float64Var(&fl.Target, "target", fl.Target, "Target attendance percentage (0, 100]")
	flag.StringVar(&fl.StoreKind, "store", fl.StoreKind, "Store backend: file, redis or memory")
	flag.StringVar(&fl.StoreDir, "store.dir", fl.StoreDir, "Directory for the file store")
	flag.BoolVar(&fl.StoreStrictPerms, "store.strictPerms", false, "Restrict file store permissions (0700 dirs, 0600 files)")
	flag.BoolVar(&fl.StoreClear, "store.clear", false, "Clear the file store before running")
	flag.DurationVar(&fl.MaxAge, "store.maxAge", fl.MaxAge, "Age after which a stored record is reported stale; 0 disables")
	flag.StringVar(&fl.RedisAddr, "redis", "", "Redis address for the redis store and notifications")
	flag.StringVar(&fl.NotifyChannel, "notify.channel", "", "Redis channel for notifications")
	flag.IntVar(&fl.Retries, "retries", fl.Retries, "Extraction attempts per pass")
	flag.DurationVar(&fl.RetryDelay, "retry.delay", fl.RetryDelay, "Delay between extraction attempts")
	flag.BoolVar(&fl.Watch, "watch", false, "Re-run extraction whenever the page changes")
	flag.DurationVar(&fl.PollInterval, "watch.poll", fl.PollInterval, "Page polling interval in watch mode")
	flag.DurationVar(&fl.Quiet, "watch.quiet", fl.Quiet, "Quiet period before a change triggers a pass")
	flag.BoolVar(&fl.Serve, "serve", false, "Run the HTTP service")
	flag.StringVar(&fl.Listen, "listen", fl.Listen, "HTTP listen address")
	flag.StringVar(&cors, "cors", "", "Comma-separated CORS origins for the HTTP service")
	flag.BoolVar(&fl.Follow, "follow", false, "Print notifications published by other bunkmate processes (needs -redis)")
	flag.StringVar(&fl.OutputPDFPath, "pdf", "", "Write a PDF summary to this path")
	flag.BoolVar(&fl.Verbose, "v", false, "Verbose logging")
	flag.BoolVar(&version, "version", false, "Print version and exit")
	flag.Parse()

	if version {
		fmt.Printf("bunkmate %s (%s)\n", app.BuildVersion, app.BuildCommit)
		return
	}
	if cors != "" {
		fl.CORSOrigins = splitList(cors)
	}

	if err := app.LoadEnvFiles(splitList(envFiles)...); err != nil {
		log.Error().Err(err).Msg("load env files")
		os.Exit(1)
	}
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	configPath = configFile(configPath, set["config"])

	// Precedence: flags > env > config file > defaults.
	cfg := app.DefaultConfig()
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			log.Error().Err(err).Str("path", configPath).Msg("load config file")
			os.Exit(1)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	if cors != "" {
		set["cors"] = true
	}
	applyFlags(&cfg, fl, set)

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("run failed")
		// Exit code 2 means the page was read but gave no usable data.
		if errors.Is(err, app.ErrNoData) || errors.Is(err, app.ErrNotAttendancePage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cfg app.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	return a.Run(ctx, os.Stdout)
}

// configFile returns the config path from -config, or from BUNKMATE_CONFIG
// read after the dotenv files are loaded.
func configFile(flagValue string, explicit bool) string {
	if explicit {
		return flagValue
	}
	return os.Getenv("BUNKMATE_CONFIG")
}

// applyFlags copies the explicitly set flags from fl onto cfg.
func applyFlags(cfg *app.Config, fl app.Config, set map[string]bool) {
	copies := map[string]func(){
		"input":             func() { cfg.InputPath = fl.InputPath },
		"url":               func() { cfg.PageURL = fl.PageURL },
		"ua":                func() { cfg.UserAgent = fl.UserAgent },
		"cookie":            func() { cfg.Cookie = fl.Cookie },
		"target":            func() { cfg.Target = fl.Target },
		"store":             func() { cfg.StoreKind = fl.StoreKind },
		"store.dir":         func() { cfg.StoreDir = fl.StoreDir },
		"store.strictPerms": func() { cfg.StoreStrictPerms = fl.StoreStrictPerms },
		"store.clear":       func() { cfg.StoreClear = fl.StoreClear },
		"store.maxAge":      func() { cfg.MaxAge = fl.MaxAge },
		"redis":             func() { cfg.RedisAddr = fl.RedisAddr },
		"notify.channel":    func() { cfg.NotifyChannel = fl.NotifyChannel },
		"retries":           func() { cfg.Retries = fl.Retries },
		"retry.delay":       func() { cfg.RetryDelay = fl.RetryDelay },
		"watch":             func() { cfg.Watch = fl.Watch },
		"watch.poll":        func() { cfg.PollInterval = fl.PollInterval },
		"watch.quiet":       func() { cfg.Quiet = fl.Quiet },
		"serve":             func() { cfg.Serve = fl.Serve },
		"listen":            func() { cfg.Listen = fl.Listen },
		"cors":              func() { cfg.CORSOrigins = fl.CORSOrigins },
		"follow":            func() { cfg.Follow = fl.Follow },
		"pdf":               func() { cfg.OutputPDFPath = fl.OutputPDFPath },
		"v":                 func() { cfg.Verbose = fl.Verbose },
	}
	for name := range set {
		if f, ok := copies[name]; ok {
			f()
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
