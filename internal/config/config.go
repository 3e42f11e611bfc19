// Package config loads cronbeat settings from an optional YAML file.
// Command-line flags override file values, and zero values fall back to
// defaults, so a bare `cronbeat` with no file still starts.
package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

type Config struct {
	Addr         string `yaml:"addr"`
	DBPath       string `yaml:"db_path"`
	RedisURL     string `yaml:"redis_url"`
	DefaultQueue string `yaml:"default_queue"`
	Debug        bool   `yaml:"debug"`

	Beat BeatConfig `yaml:"beat"`
}

type BeatConfig struct {
	RefreshEvery    Duration `yaml:"refresh_every"`
	MinTick         Duration `yaml:"min_tick"`
	DispatchTimeout Duration `yaml:"dispatch_timeout"`
}

// Duration decodes YAML strings like "5s" or "2m30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

func Default() Config {
	return Config{
		Addr:         ":8080",
		DBPath:       "cronbeat.db",
		RedisURL:     "redis://localhost:6379/0",
		DefaultQueue: "celery",
		Beat: BeatConfig{
			RefreshEvery:    Duration(5 * time.Second),
			MinTick:         Duration(time.Second),
			DispatchTimeout: Duration(10 * time.Second),
		},
	}
}

// Load reads path if non-empty, overlaying file values on the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.merge(file)
	return cfg, nil
}

func (c *Config) merge(o Config) {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.DBPath != "" {
		c.DBPath = o.DBPath
	}
	if o.RedisURL != "" {
		c.RedisURL = o.RedisURL
	}
	if o.DefaultQueue != "" {
		c.DefaultQueue = o.DefaultQueue
	}
	if o.Debug {
		c.Debug = true
	}
	if o.Beat.RefreshEvery > 0 {
		c.Beat.RefreshEvery = o.Beat.RefreshEvery
	}
	if o.Beat.MinTick > 0 {
		c.Beat.MinTick = o.Beat.MinTick
	}
	if o.Beat.DispatchTimeout > 0 {
		c.Beat.DispatchTimeout = o.Beat.DispatchTimeout
	}
}
