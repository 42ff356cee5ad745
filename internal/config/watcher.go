package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigWatcher watches the configuration file for changes and triggers
// callbacks with the reloaded NodeConfig. A provider uses this to pick up
// a changed refresh interval or bootstrap peer list without a restart.
type ConfigWatcher struct {
	v          *viper.Viper
	cfgFile    string
	mu         sync.RWMutex
	callbacks  []func(*NodeConfig)
	lastConfig *NodeConfig
}

// NewConfigWatcher creates a new configuration watcher.
func NewConfigWatcher(cfgFile string) (*ConfigWatcher, error) {
	v := newViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if err, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		_ = notFound
	}

	return &ConfigWatcher{
		v:       v,
		cfgFile: cfgFile,
	}, nil
}

// OnChange registers a callback invoked with the reloaded configuration.
func (cw *ConfigWatcher) OnChange(callback func(*NodeConfig)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// Start begins watching for configuration file changes.
func (cw *ConfigWatcher) Start() error {
	cw.v.OnConfigChange(func(e fsnotify.Event) {
		cw.handleChange()
	})
	cw.v.WatchConfig()
	return nil
}

func (cw *ConfigWatcher) handleChange() {
	cw.mu.RLock()
	callbacks := make([]func(*NodeConfig), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	cfg, err := cw.load()
	if err != nil {
		return
	}

	for _, cb := range callbacks {
		cb(cfg)
	}

	cw.mu.Lock()
	cw.lastConfig = cfg
	cw.mu.Unlock()
}

func (cw *ConfigWatcher) load() (*NodeConfig, error) {
	defaults := DefaultNodeConfig()
	setViperDefaults(cw.v, defaults)

	var cfg NodeConfig
	if err := cw.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	return &cfg, nil
}

// CurrentConfig returns the last loaded configuration.
func (cw *ConfigWatcher) CurrentConfig() *NodeConfig {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.lastConfig
}

// Reload forces a configuration reload.
func (cw *ConfigWatcher) Reload() error {
	if err := cw.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	cw.handleChange()
	return nil
}
