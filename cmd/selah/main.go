package main

import (
	"os"

	"github.com/spf13/cobra"

	"selah/internal/interfaces/cli/migrate"
	"selah/internal/interfaces/cli/server"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "selah",
		Short: "Selah - recurring billing service",
		Long:  `Selah reconciles hosted-checkout webhooks and store purchase receipts into a canonical subscription ledger.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
