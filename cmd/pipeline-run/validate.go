package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipeline/internal/engine"
	"pipeline/internal/pipeline"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a pipeline document without running it",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}

	problems := engine.New(cfg, nil, engine.Options{}).Validate()
	if len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(cmd.ErrOrStderr(), p)
		}
		return fmt.Errorf("%d problem(s) found in %q", len(problems), cfg.Name)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, OK\n", cfg.Name, len(cfg.Steps))
	return nil
}
