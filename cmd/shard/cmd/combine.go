package cmd

import (
	"encoding/hex"
	"fmt"
	"time"

	"shard/internal/sss"
	shardErrors "shard/internal/shardcli/errors"

	"github.com/spf13/cobra"
)

var (
	combineKey       string
	combineThreshold int
	combineVerbose   bool
)

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Reconstruct a secret from a threshold of its providers' shares",
	Long: `combine finds every known provider of --key via the DHT, requests
a share from a randomly-selected threshold-sized subset of them, and
reconstructs the secret by Lagrange interpolation. Requesting fewer than
the original split's threshold does not produce an error: it silently
reconstructs the wrong value.`,
	RunE: runCombine,
}

func init() {
	combineCmd.Flags().StringVar(&combineKey, "key", "", "identifier the share was registered under")
	combineCmd.Flags().IntVar(&combineThreshold, "threshold", 0, "number of providers to request a share from (defaults to all found)")
	combineCmd.Flags().BoolVar(&combineVerbose, "verbose", false, "print the individual shares used for reconstruction")
	combineCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(combineCmd)
}

func runCombine(cmd *cobra.Command, args []string) error {
	if err := requireKeyFlag("key", combineKey); err != nil {
		return err
	}

	ctx, cancel := ctxWithTimeout(cmd, 30*time.Second)
	defer cancel()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	providers, err := sess.findProviders(ctx, combineKey)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		return shardErrors.NotFound("providers", combineKey)
	}

	threshold := combineThreshold
	if threshold <= 0 {
		threshold = len(providers)
	}
	sample := sampleProviders(providers, threshold)

	var shares []sss.Share
	for _, p := range sample {
		share, ok, err := sess.client.RequestShare(ctx, p.ID, combineKey)
		if err != nil {
			log.Warn("failed to fetch share", "peer", p.ID, "error", err)
			continue
		}
		if !ok {
			log.Warn("provider refused to return a share", "peer", p.ID)
			continue
		}
		shares = append(shares, share)
		if combineVerbose {
			fmt.Printf("share from %s: x=%d y=%s\n", p.ID, share.X, hex.EncodeToString(share.Y))
		}
	}

	if len(shares) == 0 {
		return shardErrors.Unauthorized(combineKey)
	}

	secret, err := sss.Combine(shares)
	if err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeInvalidParameters, "failed to combine shares")
	}

	fmt.Printf("secret (hex): %s\n", hex.EncodeToString(secret))
	fmt.Printf("secret: %s\n", secret)
	return nil
}
