package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"shard/internal/logger"
	"shard/internal/p2p"
	"shard/internal/provider"
	shardErrors "shard/internal/shardcli/errors"
	"shard/internal/store"

	"github.com/spf13/cobra"
)

var refreshInterval time.Duration

var provideCmd = &cobra.Command{
	Use:   "provide",
	Short: "Run a long-lived share provider node",
	Long: `provide starts a libp2p host that answers RegisterShare, GetShare,
and RefreshShare requests for whatever shares peers register with it, and
proactively re-randomizes every share it holds on a fixed interval until
the process is stopped.`,
	RunE: runProvide,
}

func init() {
	provideCmd.Flags().DurationVar(&refreshInterval, "refresh", 0, "proactive refresh interval, overriding the config file (e.g. 30m)")
	rootCmd.AddCommand(provideCmd)
}

func runProvide(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if refreshInterval > 0 {
		cfg.Refresh.Interval = refreshInterval
		cfg.Refresh.Enabled = true
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	host, err := p2p.NewHost(ctx, cfg.P2P, configDir)
	if err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to start libp2p host")
	}
	defer host.Close()

	discovery, err := p2p.NewDiscovery(host.Host, cfg.P2P, configDir, log)
	if err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to start discovery")
	}
	defer discovery.Stop()

	if err := discovery.Start(ctx); err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to bootstrap discovery")
	}

	if peerAddr != "" {
		info, err := addrInfoFromString(peerAddr)
		if err != nil {
			return shardErrors.Wrap(err, shardErrors.CodeInvalidParameters, "invalid --peer address")
		}
		if err := host.Connect(ctx, *info); err != nil {
			log.Warn("failed to dial configured peer on startup", "peer", info.ID, "error", err)
		}
	}

	client := p2p.NewProtocolClient(host.Host)
	handler := p2p.NewProtocolHandler(host.Host)
	defer handler.Close()

	prov := provider.New(st, client, discovery.DHT(), host.PeerID(), auditLog, log)
	prov.RegisterStreamHandlers(handler)

	var scheduler *provider.Scheduler
	if cfg.Refresh.Enabled {
		scheduler = provider.NewScheduler(prov, cfg.Refresh.Interval, log)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	log.Info("provider node ready",
		"peer_id", host.PeerID().String(),
		"listen_addrs", host.ListenAddrs(),
		"refresh_enabled", cfg.Refresh.Enabled,
		"refresh_interval", cfg.Refresh.Interval,
	)
	auditLog.LogCommand(ctx, "provide", logger.AuditOutcomePending, map[string]any{"peer_id": host.PeerID().String()})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping provider node")
	return nil
}

// openStore constructs the provider's ShareStore: SQLite-backed if
// cfg.Store.DBPath is set, otherwise an in-memory store that does not
// survive restart.
func openStore() (store.ShareStore, error) {
	if cfg.Store.DBPath == "" {
		return store.NewMemoryStore(), nil
	}
	st, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		return nil, shardErrors.Wrap(err, shardErrors.CodeStoreFailure, "failed to open share database")
	}
	return st, nil
}
