package cmd

import (
	"fmt"
	"time"

	"shard/internal/sss"
	shardErrors "shard/internal/shardcli/errors"

	"github.com/spf13/cobra"
)

var (
	refreshKey       string
	refreshThreshold int
	refreshSize      int
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Manually trigger a refresh round for a key",
	Long: `refresh generates a single RefreshKey client-side and sends it to
every known provider of --key. Unlike a provider's own proactive
scheduler, this is an externally-triggered round: every recipient still
receives the exact same RefreshKey instance, preserving the invariant
that a round never mixes two different keys.`,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().StringVar(&refreshKey, "key", "", "identifier the shares were registered under")
	refreshCmd.Flags().IntVar(&refreshThreshold, "threshold", 2, "threshold the refresh polynomials are generated for")
	refreshCmd.Flags().IntVar(&refreshSize, "size", 0, "secret length in bytes, must match the original split")
	refreshCmd.MarkFlagRequired("key")
	refreshCmd.MarkFlagRequired("size")
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	if err := requireKeyFlag("key", refreshKey); err != nil {
		return err
	}

	ctx, cancel := ctxWithTimeout(cmd, 30*time.Second)
	defer cancel()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	providers, err := sess.findProviders(ctx, refreshKey)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		return shardErrors.NotFound("providers", refreshKey)
	}

	rk, err := sss.GenerateRefreshKey(refreshThreshold, refreshSize)
	if err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeInvalidParameters, "failed to generate refresh key")
	}

	refreshed := 0
	for _, p := range providers {
		ok, err := sess.client.RequestRefreshShare(ctx, p.ID, refreshKey, rk)
		if err != nil {
			log.Warn("failed to refresh share", "peer", p.ID, "error", err)
			continue
		}
		if !ok {
			log.Warn("provider refused the refresh", "peer", p.ID)
			continue
		}
		refreshed++
	}

	fmt.Printf("refreshed %d/%d providers for %q\n", refreshed, len(providers), refreshKey)
	return nil
}
