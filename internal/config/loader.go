package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// AppName is the configuration namespace used for search paths and env vars.
const AppName = "shard"

// configSearchPaths returns the paths to search for config files. Viper
// searches them in the order given and uses the first config file it finds,
// so earlier paths take precedence.
func configSearchPaths() []string {
	paths := []string{filepath.Join("/etc", AppName)}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, cwd)
	}

	return paths
}

// UserConfigDir returns the user-specific config directory for shard.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", AppName), nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	for _, path := range configSearchPaths() {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the shard node configuration, merging defaults, an optional
// explicit config file, and SHARD_-prefixed environment overrides.
func Load(cfgFile string) (*NodeConfig, error) {
	v := newViper()

	defaults := DefaultNodeConfig()
	setViperDefaults(v, defaults)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	return &cfg, nil
}

func setViperDefaults(v *viper.Viper, c *NodeConfig) {
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.output", c.Log.Output)
	v.SetDefault("log.max_size_mb", c.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", c.Log.MaxBackups)
	v.SetDefault("log.max_age_days", c.Log.MaxAgeDays)
	v.SetDefault("log.audit_max_age_days", c.Log.AuditMaxAgeDays)
	v.SetDefault("log.redact_fields", c.Log.RedactFields)

	v.SetDefault("p2p.enabled", c.P2P.Enabled)
	v.SetDefault("p2p.identity.key_path", c.P2P.Identity.KeyPath)
	v.SetDefault("p2p.listen_addresses", c.P2P.ListenAddresses)
	v.SetDefault("p2p.connection_manager.low_watermark", c.P2P.ConnManager.LowWatermark)
	v.SetDefault("p2p.connection_manager.high_watermark", c.P2P.ConnManager.HighWatermark)
	v.SetDefault("p2p.connection_manager.grace_period", c.P2P.ConnManager.GracePeriod)
	v.SetDefault("p2p.bootstrap.peers", c.P2P.Bootstrap.Peers)
	v.SetDefault("p2p.bootstrap.min_peers", c.P2P.Bootstrap.MinPeers)
	v.SetDefault("p2p.bootstrap.retry_interval", c.P2P.Bootstrap.RetryInterval)
	v.SetDefault("p2p.bootstrap.max_retry_interval", c.P2P.Bootstrap.MaxRetryInterval)
	v.SetDefault("p2p.mdns.enabled", c.P2P.MDNS.Enabled)
	v.SetDefault("p2p.mdns.service_name", c.P2P.MDNS.ServiceName)
	v.SetDefault("p2p.dht.enabled", c.P2P.DHT.Enabled)
	v.SetDefault("p2p.dht.mode", c.P2P.DHT.Mode)
	v.SetDefault("p2p.peer_store.path", c.P2P.PeerStore.Path)
	v.SetDefault("p2p.metrics.bandwidth_metering", c.P2P.Metrics.BandwidthMetering)

	v.SetDefault("store.db_path", c.Store.DBPath)

	v.SetDefault("refresh.enabled", c.Refresh.Enabled)
	v.SetDefault("refresh.interval", c.Refresh.Interval)
}

// NewViperFromConfig creates a viper instance populated with values from cfg,
// used to render a config file from in-memory defaults.
func NewViperFromConfig(c *NodeConfig) *viper.Viper {
	v := viper.New()
	setViperDefaults(v, c)
	return v
}

// ConfigFileUsed returns the config file path that was loaded, if any.
func ConfigFileUsed() string {
	v := newViper()
	_ = v.ReadInConfig()
	return v.ConfigFileUsed()
}
