// Command judgectl is a thin CLI client for the judge HTTP API. It
// holds no pipeline logic of its own — every subcommand is an HTTP call
// against judgesrv.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/klpod221/kode-judge/cmd/judgectl/cmd"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "judgectl",
		Short: "judgectl - submit and inspect code-execution submissions",
		Long:  "A command line client for the kode-judge submission pipeline API.",
	}

	rootCmd.PersistentFlags().StringP("url", "u", "http://localhost:2000", "judge API URL")

	rootCmd.AddCommand(
		cmd.NewSubmitCommand(),
		cmd.NewGetCommand(),
		cmd.NewListCommand(),
		cmd.NewWorkersCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
