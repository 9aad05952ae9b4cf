package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultControlPort = 12345
	DefaultStatusPort  = 12371
	DefaultMaxZoom     = 10.0
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Control   ControlConfig   `yaml:"control"`
	Status    StatusConfig    `yaml:"status"`
	Booth     BoothConfig     `yaml:"booth"`
	Filter    FilterConfig    `yaml:"filter"`
	Camera    CameraConfig    `yaml:"camera"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Log       LogConfig       `yaml:"log"`
	Mock      MockConfig      `yaml:"mock"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ControlConfig configures the inbound OSC trigger listener.
type ControlConfig struct {
	ListenHost    string  `yaml:"listen_host"`
	Port          int     `yaml:"port" validate:"min=1,max=65535"`
	QueueSize     int     `yaml:"queue_size" validate:"min=1,max=4096"`
	RateLimit     float64 `yaml:"rate_limit" validate:"finite,gt=0"`
	Burst         int     `yaml:"burst" validate:"min=1"`
	AddressPrefix string  `yaml:"address_prefix"`
}

// StatusConfig configures the outbound OSC status sender.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host" validate:"required_if=Enabled true"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`
}

// BoothConfig holds the session timings.
type BoothConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval" validate:"gt=0"`
	CountdownFrom      int           `yaml:"countdown_from" validate:"min=1,max=60"`
	TransitionDuration time.Duration `yaml:"transition_duration" validate:"gt=0"`
	MaxZoom            float64       `yaml:"max_zoom" validate:"finite,gte=1"`
	ZoomCurve          string        `yaml:"zoom_curve" validate:"oneof=linear smoothstep"`
	ApplyFilterTimeout time.Duration `yaml:"apply_filter_timeout" validate:"gte=0"`
	MaxPixels          int64         `yaml:"max_pixels" validate:"gte=0"`
	EndScreenTimeout   time.Duration `yaml:"end_screen_timeout" validate:"gt=0"`
	Pulse              PulseConfig   `yaml:"pulse"`
}

// PulseConfig shapes the countdown number's spring animation.
type PulseConfig struct {
	Size      float64 `yaml:"size" validate:"finite,gt=0"`
	Frequency float64 `yaml:"frequency" validate:"finite,gt=0"`
	Damping   float64 `yaml:"damping" validate:"finite,gte=0"`
}

type FilterConfig struct {
	Gain     float64 `yaml:"gain" validate:"finite,gte=0"`
	Exponent float64 `yaml:"exponent" validate:"finite,gt=0"`
}

type CameraConfig struct {
	// Source is "pattern" (synthetic test card) or "static" (still image).
	Source           string `yaml:"source" validate:"oneof=pattern static"`
	StaticImage      string `yaml:"static_image" validate:"required_if=Source static"`
	Width            int    `yaml:"width" validate:"min=1"`
	Height           int    `yaml:"height" validate:"min=1"`
	FailureThreshold int    `yaml:"failure_threshold" validate:"min=1"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle" validate:"gt=0"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" validate:"gt=0"`
	MaxConnections   int           `yaml:"max_connections" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MockConfig drives the scripted trigger generator used in demo mode.
type MockConfig struct {
	StartEvery time.Duration `yaml:"start_every" validate:"gt=0"`
	HoldFilter time.Duration `yaml:"hold_filter" validate:"gt=0"`
}

var validate = newValidator()

// newValidator adds a "finite" tag: YAML accepts .inf and .nan, which pass
// numeric comparisons.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsInf(f, 0) && !math.IsNaN(f)
	})
	return v
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Control: ControlConfig{
			ListenHost: "0.0.0.0",
			Port:       DefaultControlPort,
			QueueSize:  16,
			RateLimit:  50,
			Burst:      10,
		},
		Status: StatusConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    DefaultStatusPort,
		},
		Booth: BoothConfig{
			TickInterval:       16 * time.Millisecond,
			CountdownFrom:      3,
			TransitionDuration: 2 * time.Second,
			MaxZoom:            DefaultMaxZoom,
			ZoomCurve:          "linear",
			ApplyFilterTimeout: 20 * time.Second,
			EndScreenTimeout:   10 * time.Second,
			Pulse: PulseConfig{
				Size:      240,
				Frequency: 9,
				Damping:   0.35,
			},
		},
		Filter: FilterConfig{
			Gain:     1.0,
			Exponent: 1.0,
		},
		Camera: CameraConfig{
			Source:           "pattern",
			Width:            640,
			Height:           480,
			FailureThreshold: 5,
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotInterval: 5 * time.Second,
			MaxConnections:   32,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Mock: MockConfig{
			StartEvery: 20 * time.Second,
			HoldFilter: 6 * time.Second,
		},
	}
}

// Default returns the built-in configuration. It always validates.
func Default() *Config {
	return defaultConfig()
}

// Load reads path, applies it over the defaults and the PHOTOBOOTH_*
// environment overrides, then validates. An invalid value is an error here
// so that nothing starts with a bad configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = defaultConfig()
		if err := cfg.applyEnv(os.LookupEnv); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Camera.Source == "static" {
		if _, err := os.Stat(c.Camera.StaticImage); err != nil {
			return fmt.Errorf("invalid config: camera.static_image: %w", err)
		}
	}
	if c.Status.Enabled && c.Control.Port == c.Status.Port && isLoopback(c.Status.Host) {
		return fmt.Errorf("invalid config: status.port %d would loop back into control.port", c.Status.Port)
	}
	return nil
}

func isLoopback(host string) bool {
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"PHOTOBOOTH_SERVER_PORT", &c.Server.Port},
		{"PHOTOBOOTH_CONTROL_PORT", &c.Control.Port},
		{"PHOTOBOOTH_STATUS_PORT", &c.Status.Port},
		{"PHOTOBOOTH_COUNTDOWN_FROM", &c.Booth.CountdownFrom},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", e.key, err)
		}
		*e.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"PHOTOBOOTH_SERVER_HOST", &c.Server.Host},
		{"PHOTOBOOTH_AUTH_TOKEN", &c.Server.AuthToken},
		{"PHOTOBOOTH_STATUS_HOST", &c.Status.Host},
		{"PHOTOBOOTH_LOG_LEVEL", &c.Log.Level},
		{"PHOTOBOOTH_STATIC_IMAGE", &c.Camera.StaticImage},
	}
	for _, e := range strs {
		if v, ok := lookup(e.key); ok && v != "" {
			*e.dst = strings.TrimSpace(v)
		}
	}
	return nil
}

// Diff returns the dotted keys whose values differ between c and other.
// Used to log what a reload changed.
func (c *Config) Diff(other *Config) []string {
	var changed []string
	add := func(key string, differs bool) {
		if differs {
			changed = append(changed, key)
		}
	}
	add("server.port", c.Server.Port != other.Server.Port)
	add("server.host", c.Server.Host != other.Server.Host)
	add("server.auth_token", c.Server.AuthToken != other.Server.AuthToken)
	add("server.allowed_origins", !slices.Equal(c.Server.AllowedOrigins, other.Server.AllowedOrigins))
	add("control.listen_host", c.Control.ListenHost != other.Control.ListenHost)
	add("control.port", c.Control.Port != other.Control.Port)
	add("control.queue_size", c.Control.QueueSize != other.Control.QueueSize)
	add("control.rate_limit", c.Control.RateLimit != other.Control.RateLimit || c.Control.Burst != other.Control.Burst)
	add("control.address_prefix", c.Control.AddressPrefix != other.Control.AddressPrefix)
	add("status", c.Status != other.Status)
	add("booth.tick_interval", c.Booth.TickInterval != other.Booth.TickInterval)
	add("booth.countdown_from", c.Booth.CountdownFrom != other.Booth.CountdownFrom)
	add("booth.transition_duration", c.Booth.TransitionDuration != other.Booth.TransitionDuration)
	add("booth.max_zoom", c.Booth.MaxZoom != other.Booth.MaxZoom)
	add("booth.zoom_curve", c.Booth.ZoomCurve != other.Booth.ZoomCurve)
	add("booth.apply_filter_timeout", c.Booth.ApplyFilterTimeout != other.Booth.ApplyFilterTimeout)
	add("booth.max_pixels", c.Booth.MaxPixels != other.Booth.MaxPixels)
	add("booth.end_screen_timeout", c.Booth.EndScreenTimeout != other.Booth.EndScreenTimeout)
	add("booth.pulse", c.Booth.Pulse != other.Booth.Pulse)
	add("filter", c.Filter != other.Filter)
	add("camera", c.Camera != other.Camera)
	add("broadcast", c.Broadcast != other.Broadcast)
	add("log", c.Log != other.Log)
	add("mock", c.Mock != other.Mock)
	return changed
}

// RestartRequired reports whether any of the changed keys only take effect
// after a restart. Booth timings and filter defaults apply live; listeners,
// senders and the camera are built once.
func RestartRequired(changed []string) bool {
	for _, k := range changed {
		if k != "filter" && !strings.HasPrefix(k, "booth.") {
			return true
		}
	}
	return false
}
