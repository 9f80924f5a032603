// pipeline-run executes pipeline documents from the command line without
// the HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand assembles the command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pipeline-run",
		Short:         "Run and validate pipeline documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(NewValidateCommand())
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewArtifactsCommand())

	return rootCmd
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
