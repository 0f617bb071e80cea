package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luma/evnsq/cmd/gen"
)

var RootCmd = &cobra.Command{
	Use:   "evnsq",
	Short: "A small NSQ client",
	Long: `A small NSQ client.

Connection settings are read from EVNSQ_* environment variables and, if
present, a .env.local file in the working directory.`,
	SilenceUsage: true,
}

func init() {
	RootCmd.AddCommand(ConsumeCmd)
	RootCmd.AddCommand(PubCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
