// Package cmd implements the shard command-line tool: a share provider
// that can run as a long-lived node (provide) or issue one-shot
// split/combine/ls/refresh requests against the network.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"shard/internal/config"
	shardErrors "shard/internal/shardcli/errors"
	"shard/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile       string
	peerAddr      string
	listenAddress string
	dbPath        string
	secretKeySeed uint8

	cfg       *config.NodeConfig
	log       *logger.Logger
	auditLog  *logger.AuditLogger
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "shard",
	Short: "A distributed Shamir secret-sharing provider node and client",
	Long: `shard runs a peer-to-peer provider node that holds Shamir
secret-sharing shares on behalf of its owner, answers requests from the
peer that registered each share, and proactively re-randomizes shares it
holds over time. It doubles as the client that splits secrets, registers
shares with providers, combines a threshold of them back, and triggers
refreshes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return shardErrors.Wrap(err, shardErrors.CodeInvalidParameters, "failed to load configuration")
		}
		cfg = loaded

		if listenAddress != "" {
			cfg.P2P.ListenAddresses = []string{listenAddress}
		}
		if dbPath != "" {
			cfg.Store.DBPath = dbPath
		}
		if cmd.Flags().Changed("secret-key-seed") {
			seed := secretKeySeed
			cfg.P2P.Identity.Seed = &seed
		}

		dir, err := config.UserConfigDir()
		if err != nil {
			return shardErrors.Wrap(err, shardErrors.CodeInternal, "failed to resolve config directory")
		}
		configDir = dir
		if err := os.MkdirAll(configDir, 0700); err != nil {
			return shardErrors.Wrap(err, shardErrors.CodeInternal, "failed to create config directory")
		}

		l, err := logger.New(cfg.Log)
		if err != nil {
			return shardErrors.Wrap(err, shardErrors.CodeInternal, "failed to initialize logger")
		}
		log = l

		if cfg.Log.AuditPath != "" {
			a, err := logger.NewAuditLogger(cfg.Log.AuditPath, cfg.Log.AuditMaxAgeDays)
			if err != nil {
				return shardErrors.Wrap(err, shardErrors.CodeInternal, "failed to initialize audit log")
			}
			auditLog = a
		} else {
			auditLog = logger.NopAuditLogger()
		}

		cc := logger.NewCommandContext(cmd, args)
		ctx := logger.WithCommandContext(cmd.Context(), cc)
		ctx = logger.WithLogger(ctx, log)
		cmd.SetContext(ctx)

		log.Info("command started", "command", cmd.Name())
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if auditLog != nil {
			auditLog.LogCommand(cmd.Context(), cmd.Name(), logger.AuditOutcomeSuccess, nil)
			auditLog.Close()
		}
		if log != nil {
			log.Info("command completed", "command", cmd.Name())
			log.Close()
		}
		return nil
	},
}

// Execute runs the shard command tree. It reports rich errors via
// shardcli/errors and exits with the matching status code.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(shardErrors.Report(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file")
	rootCmd.PersistentFlags().StringVar(&peerAddr, "peer", "", "multiaddr of a peer to dial on startup, e.g. /ip4/1.2.3.4/tcp/4001/p2p/<id>")
	rootCmd.PersistentFlags().StringVar(&listenAddress, "listen-address", "", "multiaddr to listen on, overriding the config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "path to the SQLite share database, overriding the config file")
	rootCmd.PersistentFlags().Uint8Var(&secretKeySeed, "secret-key-seed", 0, "derive a deterministic node identity from this byte, for local test networks")
}

// ctxWithTimeout builds a command-scoped context with a request timeout,
// inheriting cmd.Context() rather than starting a bare background one.
func ctxWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// requireKeyFlag validates a required --key style string flag.
func requireKeyFlag(name, value string) error {
	if value == "" {
		return shardErrors.InvalidParameters(fmt.Sprintf("--%s is required", name))
	}
	return nil
}
