// Command idemctl inspects and repairs idempotency records and applies storage migrations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Overland-East-Bay/storefront-api/internal/platform/config"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	rootCmd := &cobra.Command{
		Use:           "idemctl",
		Short:         "Operate the storefront idempotency store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if envFile == "" {
				return config.LoadDotEnv()
			}
			return config.LoadDotEnv(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env when present)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(unlockCmd())
	return rootCmd
}
