// Package config provides configuration loading and management for shard.
package config

import "time"

// LogConfig holds logging configuration.
type LogConfig struct {
	Level           string   `mapstructure:"level"`              // debug, info, warn, error
	Format          string   `mapstructure:"format"`             // text, json, pretty
	Output          string   `mapstructure:"output"`             // stdout, stderr, or file path
	FilePath        string   `mapstructure:"file_path"`          // path to log file (in addition to output)
	MaxSizeMB       int      `mapstructure:"max_size_mb"`        // max size in MB before rotation
	MaxBackups      int      `mapstructure:"max_backups"`        // max number of old log files to keep
	MaxAgeDays      int      `mapstructure:"max_age_days"`       // max days to retain old log files
	EnableCaller    bool     `mapstructure:"enable_caller"`      // include source file/line in logs
	NoColor         bool     `mapstructure:"no_color"`           // passed to the pretty handler, which does not act on it
	AuditPath       string   `mapstructure:"audit_path"`         // path to audit log file
	AuditMaxAgeDays int      `mapstructure:"audit_max_age_days"` // max days to retain audit logs
	RedactFields    []string `mapstructure:"redact_fields"`      // field names to redact from logs
}

// IdentityConfig controls how the node's libp2p identity key is sourced.
type IdentityConfig struct {
	KeyPath string `mapstructure:"key_path"` // PEM file holding the Ed25519 private key
	Seed    *byte  `mapstructure:"seed"`     // deterministic identity seed, for local testing only
}

// ConnManagerConfig configures libp2p's connection manager watermarks.
type ConnManagerConfig struct {
	LowWatermark  int           `mapstructure:"low_watermark"`
	HighWatermark int           `mapstructure:"high_watermark"`
	GracePeriod   time.Duration `mapstructure:"grace_period"`
}

// BootstrapConfig configures connections to known bootstrap peers.
type BootstrapConfig struct {
	Peers            []string      `mapstructure:"peers"`
	MinPeers         int           `mapstructure:"min_peers"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	MaxRetryInterval time.Duration `mapstructure:"max_retry_interval"`
}

// MDNSConfig configures local-network peer discovery.
type MDNSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// DHTConfig configures the Kademlia content-routing layer.
type DHTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"` // auto, server, client
}

// PeerStoreConfig configures the durable known-peers database.
type PeerStoreConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig controls libp2p's own bandwidth accounting, distinct from
// the structured logs and audit trail the rest of the node relies on.
type MetricsConfig struct {
	BandwidthMetering bool `mapstructure:"bandwidth_metering"`
}

// P2PConfig holds all libp2p transport configuration.
type P2PConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	Identity        IdentityConfig    `mapstructure:"identity"`
	ListenAddresses []string          `mapstructure:"listen_addresses"`
	ConnManager     ConnManagerConfig `mapstructure:"connection_manager"`
	Bootstrap       BootstrapConfig   `mapstructure:"bootstrap"`
	MDNS            MDNSConfig        `mapstructure:"mdns"`
	DHT             DHTConfig         `mapstructure:"dht"`
	PeerStore       PeerStoreConfig   `mapstructure:"peer_store"`
	Metrics         MetricsConfig     `mapstructure:"metrics"`
}

// StoreConfig controls durable storage of share entries.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"` // empty means in-memory only
}

// RefreshConfig controls the proactive-refresh scheduler.
type RefreshConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// NodeConfig is the complete configuration for the shard daemon/CLI.
type NodeConfig struct {
	Log     LogConfig     `mapstructure:"log"`
	P2P     P2PConfig     `mapstructure:"p2p"`
	Store   StoreConfig   `mapstructure:"store"`
	Refresh RefreshConfig `mapstructure:"refresh"`
}

// DefaultNodeConfig returns sensible defaults for the shard node.
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Log: LogConfig{
			Level:           "info",
			Format:          "pretty",
			Output:          "stderr",
			MaxSizeMB:       100,
			MaxBackups:      3,
			MaxAgeDays:      28,
			EnableCaller:    false,
			AuditMaxAgeDays: 365,
			RedactFields:    []string{"secret", "share", "y", "key"},
		},
		P2P: P2PConfig{
			Enabled:         true,
			ListenAddresses: DefaultListenAddresses(),
			ConnManager: ConnManagerConfig{
				LowWatermark:  100,
				HighWatermark: 400,
				GracePeriod:   30 * time.Second,
			},
			Bootstrap: BootstrapConfig{
				RetryInterval:    5 * time.Second,
				MaxRetryInterval: time.Hour,
			},
			MDNS: MDNSConfig{
				Enabled:     true,
				ServiceName: "shard.local",
			},
			DHT: DHTConfig{
				Enabled: true,
				Mode:    "auto",
			},
		},
		Store: StoreConfig{},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: 30 * time.Minute,
		},
	}
}

// DefaultListenAddresses returns the default listen multiaddrs for P2P.
func DefaultListenAddresses() []string {
	return []string{
		"/ip4/0.0.0.0/tcp/0",
		"/ip4/0.0.0.0/udp/0/quic-v1",
	}
}
