package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pipeline/internal/artifact"
	"pipeline/internal/engine"
	"pipeline/internal/executor"
	"pipeline/internal/pipeline"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a pipeline document",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("artifacts", "a", "", "Directory for captured artifacts (omit to discard)")
	cmd.Flags().StringArrayP("env", "e", nil, "Additional KEY=VALUE environment entries")
	cmd.Flags().Bool("verbose", false, "Print step output")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := pipeline.Load(args[0])
	if err != nil {
		return err
	}

	envFlags, _ := cmd.Flags().GetStringArray("env")
	for _, kv := range envFlags {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --env entry %q, expected KEY=VALUE", kv)
		}
		if cfg.Environment == nil {
			cfg.Environment = map[string]string{}
		}
		cfg.Environment[key] = value
	}

	opts := engine.Options{}
	if dir, _ := cmd.Flags().GetString("artifacts"); dir != "" {
		store, err := artifact.NewStore(dir)
		if err != nil {
			return err
		}
		opts.Store = store
	}

	runner := executor.NewLocalRunner()
	defer runner.Close()
	eng := engine.New(cfg, executor.New(runner, executor.Config{}), opts)

	if problems := eng.Validate(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Fprintln(cmd.ErrOrStderr(), p)
		}
		return fmt.Errorf("%d problem(s) found in %q", len(problems), cfg.Name)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ok := eng.Execute(ctx)

	verbose, _ := cmd.Flags().GetBool("verbose")
	for _, res := range eng.Results() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-10s %-24s attempt %d  %s\n",
			strings.ToUpper(string(res.Status)), res.StepName, res.Attempt,
			res.Duration().Round(time.Millisecond))
		if verbose && res.Stdout != "" {
			fmt.Fprintln(cmd.OutOrStdout(), indent(res.Stdout))
		}
		if res.Status == pipeline.StatusFailed || res.Status == pipeline.StatusTimeout {
			if res.Stderr != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), indent(res.Stderr))
			}
		}
	}

	m := eng.Metrics()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s: %s in %s (%d succeeded, %d failed, %d timed out, %d skipped)\n",
		cfg.Name, eng.Status().Status, m.Duration.Round(time.Millisecond),
		m.Succeeded, m.Failed, m.TimedOut, m.Skipped)

	if !ok {
		return fmt.Errorf("pipeline %q finished with status %s", cfg.Name, eng.Status().Status)
	}
	return nil
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n    ")
}
