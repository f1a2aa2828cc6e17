// Package server exposes workflow runs over HTTP: submit, inspect, resolve
// pending requests, abandon, and a live run-event stream.
package server

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"relayflow/incident"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// hostname_port validates "host:port" with a numeric port; an empty
	// host (":8090") is allowed.
	validate.RegisterValidation("hostname_port", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		_, port, err := net.SplitHostPort(addr)
		if err != nil || port == "" {
			return false
		}
		_, err = net.LookupPort("tcp", port)
		return err == nil
	})

	// url_format validates URL structure.
	validate.RegisterValidation("url_format", func(fl validator.FieldLevel) bool {
		u, err := url.Parse(fl.Field().String())
		return err == nil && u.Scheme != "" && u.Host != ""
	})
}

// Config is the server configuration, loaded from YAML with struct-tag
// defaults. String values support ${VAR} and ${VAR:default} references.
type Config struct {
	Addr         string        `yaml:"addr" default:":8090" validate:"hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s" validate:"gte=1s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s" validate:"gte=1s"`

	Tracker  TrackerConfig  `yaml:"tracker"`
	Notifier NotifierConfig `yaml:"notifier"`
}

// TrackerConfig selects the issue tracker backing the pipeline.
type TrackerConfig struct {
	Mode    string        `yaml:"mode" default:"simulated" validate:"oneof=simulated rest"`
	BaseURL string        `yaml:"base_url" default:"https://api.github.com" validate:"omitempty,url_format"`
	Repo    string        `yaml:"repo" default:"contoso/incidents" validate:"required"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout" default:"15s" validate:"gte=1s"`
}

// NotifierConfig selects the channel notifier backing the pipeline.
type NotifierConfig struct {
	Mode       string        `yaml:"mode" default:"simulated" validate:"oneof=simulated webhook"`
	WebhookURL string        `yaml:"webhook_url" validate:"omitempty,url_format"`
	Timeout    time.Duration `yaml:"timeout" default:"10s" validate:"gte=1s"`
}

// LoadConfig reads path (optional; defaults apply when empty), resolves env
// references, and validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
		raw := map[string]any{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("error unmarshalling config: %w", err)
		}
		// Merge through mapstructure so "10s" strings land in
		// time.Duration fields.
		if err := decodeConfig(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("error applying config values: %w", err)
		}
	}

	if err := cfg.resolveEnv(); err != nil {
		return Config{}, err
	}

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var msgs []string
			for _, fieldErr := range verrs {
				msgs = append(msgs, fmt.Sprintf("field '%s' failed rule '%s'", fieldErr.Field(), fieldErr.Tag()))
			}
			return Config{}, fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
		}
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func decodeConfig(raw map[string]any, target *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

// envVarPattern matches ${VAR} and ${VAR:default} values.
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

func (c *Config) resolveEnv() error {
	fields := []*string{
		&c.Addr,
		&c.Tracker.BaseURL, &c.Tracker.Repo, &c.Tracker.Token,
		&c.Notifier.WebhookURL,
	}
	for _, field := range fields {
		resolved, err := resolveEnvVar(*field)
		if err != nil {
			return err
		}
		*field = resolved
	}
	return nil
}

func resolveEnvVar(value string) (string, error) {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return value, nil
	}

	name := matches[1]
	defaultPart := matches[2]

	if env, exists := os.LookupEnv(name); exists {
		return env, nil
	}
	if defaultPart != "" {
		return strings.TrimPrefix(defaultPart, ":"), nil
	}
	return "", fmt.Errorf("required environment variable not set: %s", name)
}

// Collaborators builds the pipeline's external systems from the config.
func (c Config) Collaborators() incident.Collaborators {
	var collab incident.Collaborators
	if c.Tracker.Mode == "rest" {
		collab.Tracker = incident.NewRestTracker(c.Tracker.BaseURL, c.Tracker.Repo, c.Tracker.Token, c.Tracker.Timeout)
	} else {
		collab.Tracker = &incident.SimulatedTracker{Repo: c.Tracker.Repo}
	}
	if c.Notifier.Mode == "webhook" {
		collab.Notifier = incident.NewWebhookNotifier(c.Notifier.WebhookURL, c.Notifier.Timeout)
	} else {
		collab.Notifier = incident.SimulatedNotifier{}
	}
	return collab
}
