package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and env.
type FileConfig struct {
	Input  string  `yaml:"input" json:"input"`
	URL    string  `yaml:"url" json:"url"`
	Target float64 `yaml:"target" json:"target"`
	PDF    string  `yaml:"pdf" json:"pdf"`

	Portal struct {
		UserAgent string `yaml:"userAgent" json:"userAgent"`
		Cookie    string `yaml:"cookie" json:"cookie"`
	} `yaml:"portal" json:"portal"`

	Store struct {
		Kind        string   `yaml:"kind" json:"kind"`
		Dir         string   `yaml:"dir" json:"dir"`
		StrictPerms bool     `yaml:"strictPerms" json:"strictPerms"`
		Clear       bool     `yaml:"clear" json:"clear"`
		MaxAge      Duration `yaml:"maxAge" json:"maxAge"`
	} `yaml:"store" json:"store"`

	Redis struct {
		Addr    string `yaml:"addr" json:"addr"`
		Channel string `yaml:"channel" json:"channel"`
	} `yaml:"redis" json:"redis"`

	Driver struct {
		Retries      int      `yaml:"retries" json:"retries"`
		RetryDelay   Duration `yaml:"retryDelay" json:"retryDelay"`
		Watch        bool     `yaml:"watch" json:"watch"`
		PollInterval Duration `yaml:"pollInterval" json:"pollInterval"`
		Quiet        Duration `yaml:"quiet" json:"quiet"`
	} `yaml:"driver" json:"driver"`

	Server struct {
		Enable  bool     `yaml:"enable" json:"enable"`
		Listen  string   `yaml:"listen" json:"listen"`
		Origins []string `yaml:"origins" json:"origins"`
	} `yaml:"server" json:"server"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// Duration accepts "90s" style strings in YAML and JSON.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.set(n.Value)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays the values set in fc onto cfg. It runs on top of
// DefaultConfig, before env and flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setString := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setDuration := func(dst *time.Duration, v Duration) {
		if v > 0 {
			*dst = time.Duration(v)
		}
	}

	setString(&cfg.InputPath, fc.Input)
	setString(&cfg.PageURL, fc.URL)
	setString(&cfg.OutputPDFPath, fc.PDF)
	if fc.Target != 0 {
		cfg.Target = fc.Target
	}

	setString(&cfg.UserAgent, fc.Portal.UserAgent)
	setString(&cfg.Cookie, fc.Portal.Cookie)

	setString(&cfg.StoreKind, fc.Store.Kind)
	setString(&cfg.StoreDir, fc.Store.Dir)
	if fc.Store.StrictPerms {
		cfg.StoreStrictPerms = true
	}
	if fc.Store.Clear {
		cfg.StoreClear = true
	}
	setDuration(&cfg.MaxAge, fc.Store.MaxAge)

	setString(&cfg.RedisAddr, fc.Redis.Addr)
	setString(&cfg.NotifyChannel, fc.Redis.Channel)

	if fc.Driver.Retries > 0 {
		cfg.Retries = fc.Driver.Retries
	}
	setDuration(&cfg.RetryDelay, fc.Driver.RetryDelay)
	setDuration(&cfg.PollInterval, fc.Driver.PollInterval)
	setDuration(&cfg.Quiet, fc.Driver.Quiet)
	if fc.Driver.Watch {
		cfg.Watch = true
	}

	if fc.Server.Enable {
		cfg.Serve = true
	}
	setString(&cfg.Listen, fc.Server.Listen)
	if len(fc.Server.Origins) > 0 {
		cfg.CORSOrigins = append([]string{}, fc.Server.Origins...)
	}

	if fc.Verbose {
		cfg.Verbose = true
	}
}

var configValidator = validator.New()

// ValidateConfig checks struct tags and the rules that span fields.
func ValidateConfig(cfg Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q (got %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if !cfg.Serve && !cfg.Follow && strings.TrimSpace(cfg.InputPath) == "" && strings.TrimSpace(cfg.PageURL) == "" {
		return errors.New("config: an input file or page url is required (or enable the http service)")
	}
	if cfg.Watch && cfg.PollInterval <= 0 {
		return errors.New("config: watch mode needs a positive poll interval")
	}
	return nil
}
