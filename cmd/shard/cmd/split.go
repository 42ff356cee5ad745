package cmd

import (
	"fmt"
	"time"

	"shard/internal/sss"
	shardErrors "shard/internal/shardcli/errors"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	splitThreshold int
	splitShares    int
	splitSecret    string
	splitKey       string
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a secret into shares and register them with providers",
	Long: `split divides a secret into a number of Shamir shares, discovers
known share providers on the network, and sends one RegisterShare request
to each of --shares randomly-selected providers. At least --shares
distinct providers must be known or the command fails.`,
	RunE: runSplit,
}

func init() {
	splitCmd.Flags().IntVar(&splitThreshold, "threshold", 0, "minimum shares required to reconstruct the secret")
	splitCmd.Flags().IntVar(&splitShares, "shares", 0, "total number of shares to create and distribute")
	splitCmd.Flags().StringVar(&splitSecret, "secret", "", "the secret to split")
	splitCmd.Flags().StringVar(&splitKey, "key", "", "identifier providers will register the share under (random if omitted)")
	splitCmd.MarkFlagRequired("threshold")
	splitCmd.MarkFlagRequired("shares")
	splitCmd.MarkFlagRequired("secret")
	rootCmd.AddCommand(splitCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	ctx, cancel := ctxWithTimeout(cmd, 30*time.Second)
	defer cancel()

	if splitKey == "" {
		splitKey = uuid.New().String()
	}

	shares, err := sss.Split([]byte(splitSecret), splitThreshold, splitShares)
	if err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeInvalidParameters, "failed to split secret")
	}

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	providers, err := sess.discovery.PeerStore().GetBestPeers(1000)
	if err != nil {
		return shardErrors.Wrap(err, shardErrors.CodeTransportFailure, "failed to list known providers")
	}
	if len(providers) == 0 {
		return shardErrors.New(shardErrors.CodeTransportFailure, "no known providers; wait for peers to join or pass --peer")
	}
	if len(providers) < splitShares {
		return shardErrors.New(shardErrors.CodeTransportFailure,
			fmt.Sprintf("only %d known providers, need %d; wait for more providers to join", len(providers), splitShares))
	}

	sample := sampleProviders(providers, splitShares)

	i := 0
	for _, share := range shares {
		target := sample[i%len(sample)]
		i++
		ok, err := sess.client.RequestRegisterShare(ctx, target.ID, splitKey, share, splitThreshold, splitShares)
		if err != nil {
			log.Warn("failed to register share with provider", "peer", target.ID, "error", err)
			continue
		}
		if !ok {
			log.Warn("provider refused to register share", "peer", target.ID)
			continue
		}
		if err := sess.discovery.PeerStore().RecordShareProvided(target.ID); err != nil {
			log.Warn("failed to record share provided", "peer", target.ID, "error", err)
		}
		log.Info("registered share", "peer", target.ID, "key", splitKey, "x", share.X)
	}

	fmt.Printf("key: %s\n", splitKey)
	fmt.Printf("threshold: %d\n", splitThreshold)
	fmt.Printf("shares: %d\n", splitShares)
	fmt.Printf("providers:\n")
	for _, p := range sample {
		fmt.Printf("  - %s\n", p.ID)
	}

	return nil
}
