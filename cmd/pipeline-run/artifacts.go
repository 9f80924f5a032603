package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pipeline/internal/artifact"
)

// NewArtifactsCommand creates the artifacts command group
func NewArtifactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and maintain an artifact store",
	}

	cmd.PersistentFlags().StringP("dir", "d", "", "Artifact store directory (required)")
	cmd.MarkPersistentFlagRequired("dir")

	cmd.AddCommand(newArtifactsListCommand())
	cmd.AddCommand(newArtifactsArchiveCommand())
	cmd.AddCommand(newArtifactsSweepCommand())

	return cmd
}

func openStore(cmd *cobra.Command) (*artifact.Store, error) {
	dir, _ := cmd.Flags().GetString("dir")
	return artifact.NewStore(dir)
}

func newArtifactsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			step, _ := cmd.Flags().GetString("step")

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tNAME\tSIZE\tCREATED\tHASH")
			for _, meta := range store.List(step) {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%.12s\n",
					meta.Step, meta.Name, meta.Size,
					meta.CreatedAt.Format("2006-01-02 15:04:05"), meta.Hash)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringP("step", "s", "", "Only list artifacts from this step")
	return cmd
}

func newArtifactsArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Pack all artifacts into a tar.gz archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			if err := store.Archive(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "artifacts.tar.gz", "Archive output path")
	return cmd
}

func newArtifactsSweepCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete artifacts older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("retention-days")
			removed, err := store.CleanOlderThan(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d artifact(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().Int("retention-days", 30, "Age in days beyond which artifacts are removed")
	return cmd
}
