// Package appconfig loads and validates the control plane's own
// server-level settings: everything about how the process runs that
// isn't part of a recipe. Recipes stay JSON; this is the small YAML
// document describing bind address, state directory, pool sizing,
// cache TTLs, and chain GC interval.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"gopkg.in/yaml.v3"
)

// DefaultExecutorPoolSize mirrors the executor pool's own default.
const DefaultExecutorPoolSize = 4

// DefaultChainGCInterval is how often the chain tracker's background
// sweep runs when the settings file doesn't override it.
const DefaultChainGCInterval = time.Hour

// DefaultCardTTL is used for any card not named in CardTTLs.
const DefaultCardTTL = 30 * time.Second

// Config is the on-disk settings document.
type Config struct {
	BindAddress      string              `yaml:"bind_address" validate:"required,hostname_port"`
	StateDir         string              `yaml:"state_dir" validate:"required"`
	RecipeDir        string              `yaml:"recipe_dir" validate:"required"`
	ExecutorPoolSize int                 `yaml:"executor_pool_size" validate:"min=1,max=64"`
	MaxQueueLen      int                 `yaml:"max_queue_len" validate:"min=1"`
	CardTTLs         map[string]Duration `yaml:"card_ttls,omitempty"`
	ChainGCInterval  Duration            `yaml:"chain_gc_interval" validate:"min=0"`
	LogLevel         string              `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		BindAddress:      "127.0.0.1:8085",
		StateDir:         ".state",
		RecipeDir:        "recipes",
		ExecutorPoolSize: DefaultExecutorPoolSize,
		MaxQueueLen:      16,
		ChainGCInterval:  Duration(DefaultChainGCInterval),
		LogLevel:         "info",
	}
}

// TTLFor returns the declared TTL for card, or DefaultCardTTL if none
// was configured.
func (c Config) TTLFor(card string) time.Duration {
	if ttl, ok := c.CardTTLs[card]; ok && ttl.Std() > 0 {
		return ttl.Std()
	}
	return DefaultCardTTL
}

// Load reads, parses, and validates the settings file at path, starting
// from Default() so an operator only has to override what they care
// about.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate runs the struct-tag validation plus the cross-field checks
// the tags alone can't express.
func Validate(cfg Config) error {
	v := catalog.Validate()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for card, ttl := range cfg.CardTTLs {
		if ttl.Std() <= 0 {
			return fmt.Errorf("invalid config: card_ttls[%q] must be positive", card)
		}
	}

	return nil
}
