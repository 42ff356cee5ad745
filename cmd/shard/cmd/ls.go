package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var lsKey string

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List the share providers known for a key",
	RunE:  runLs,
}

func init() {
	lsCmd.Flags().StringVar(&lsKey, "key", "", "identifier to look up providers for")
	lsCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	if err := requireKeyFlag("key", lsKey); err != nil {
		return err
	}

	ctx, cancel := ctxWithTimeout(cmd, 30*time.Second)
	defer cancel()

	sess, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	providers, err := sess.findProviders(ctx, lsKey)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		fmt.Printf("no providers found for %q\n", lsKey)
		return nil
	}

	fmt.Printf("providers for %q:\n", lsKey)
	for _, p := range providers {
		fmt.Printf("  - %s %v\n", p.ID, p.Addrs)
	}
	return nil
}
