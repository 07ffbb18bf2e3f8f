package server

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signadot/docsync/system/syncd/api"
	"github.com/signadot/docsync/system/syncd/storage"
	"github.com/signadot/docsync/system/syncd/storage/seq"
	"github.com/signadot/docsync/system/syncd/track"
)

// Spec holds the runtime specification for the server.
// Config contains the serializable settings loaded from a file.
type Spec struct {
	Config *Config
	// Store defaults to a store built from Config.
	Store *storage.Store
	Log   *slog.Logger
	// Registerer receives the server's metrics. Defaults to a private
	// registry.
	Registerer prometheus.Registerer
	// Gatherer is what /metrics serves. It may be left nil when Registerer
	// is itself a Gatherer.
	Gatherer prometheus.Gatherer
}

// Config is the syncd configuration file structure.
type Config struct {
	History HistoryConfig `yaml:"history"`
	// IDs selects the snapshot id generator: "ulid" or "counter".
	IDs  string     `yaml:"ids"`
	Push PushConfig `yaml:"push"`
	// Coalesce delays a cycle after the first notification so that a burst
	// is handled by one cycle. Zero handles notifications immediately.
	Coalesce Duration        `yaml:"coalesce"`
	Derived  []DerivedConfig `yaml:"derived"`
}

type HistoryConfig struct {
	// Limit is the number of snapshots kept per stream. Zero keeps all of
	// them until the stream is disposed.
	Limit int `yaml:"limit"`
}

type PushConfig struct {
	// Timeout bounds a single push to a subscriber.
	Timeout Duration `yaml:"timeout"`
	// Buffer is the depth of each TCP session's outgoing notification
	// queue.
	Buffer int `yaml:"buffer"`
}

// DerivedConfig declares a derived value published with each stream's
// representation.
type DerivedConfig struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
	// On lists the change categories invalidating the value, e.g.
	// "state,topology". Empty means all.
	On string `yaml:"on"`
}

// Categories parses On.
func (d *DerivedConfig) Categories() (track.Category, error) {
	if d.On == "" {
		return track.All, nil
	}
	return track.ParseCategory(d.On)
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalYAML(b []byte) error {
	var s string
	if err := yaml.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// LoadConfig loads a configuration file in YAML format. Unset fields keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		History: HistoryConfig{Limit: storage.DefaultHistoryLimit},
		IDs:     seq.KindULID,
		Push: PushConfig{
			Timeout: Duration(DefaultPushTimeout),
			Buffer:  100,
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.History.Limit < 0 {
		return api.NewError(api.ErrCodeInvalidConfig, fmt.Sprintf("history.limit %d is negative", c.History.Limit))
	}
	if _, err := seq.New(c.IDs); err != nil {
		return api.WrapError(api.ErrCodeInvalidConfig, err, "ids")
	}
	if c.Push.Timeout < 0 || c.Coalesce < 0 {
		return api.NewError(api.ErrCodeInvalidConfig, "negative duration")
	}
	if c.Push.Buffer < 0 {
		return api.NewError(api.ErrCodeInvalidConfig, fmt.Sprintf("push.buffer %d is negative", c.Push.Buffer))
	}
	seen := map[string]bool{}
	for i := range c.Derived {
		d := &c.Derived[i]
		if d.Name == "" || d.Expr == "" {
			return api.NewError(api.ErrCodeInvalidConfig, fmt.Sprintf("derived[%d] needs a name and an expr", i))
		}
		if seen[d.Name] {
			return api.NewError(api.ErrCodeInvalidConfig, fmt.Sprintf("duplicate derived value %q", d.Name))
		}
		seen[d.Name] = true
		if _, err := d.Categories(); err != nil {
			return api.WrapError(api.ErrCodeInvalidConfig, err, "derived %s", d.Name)
		}
	}
	return nil
}

func (c *Config) newStore(log *slog.Logger) (*storage.Store, error) {
	ids, err := seq.New(c.IDs)
	if err != nil {
		return nil, err
	}
	return storage.New(&storage.Spec{
		HistoryLimit: c.History.Limit,
		IDs:          ids,
		Log:          log,
	}), nil
}
