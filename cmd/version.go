package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/evnsq/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "evnsq %s\n", info.Version)
		fmt.Fprintf(out, "  build:    %s (%s)\n", info.Build, info.Branch)
		fmt.Fprintf(out, "  built:    %s\n", info.BuildTime)
		fmt.Fprintf(out, "  platform: %s\n", info.Platform)
		fmt.Fprintf(out, "  go:       %s\n", info.GoVersion)

		return nil
	},
}
