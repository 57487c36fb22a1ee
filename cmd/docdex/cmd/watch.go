package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/source"
	"github.com/docdex/docdex/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var (
		mode     string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <directory>",
		Short: "Watch a directory and reindex on changes",
		Long: `Run an initial indexing pass, then watch the directory and
reconcile again whenever its contents settle after a change.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cleanupMode, err := index.ParseCleanupMode(mode)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			src, err := source.NewDirSource(args[0])
			if err != nil {
				return err
			}

			p, err := openPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			reindex := func(ctx context.Context) error {
				report, err := p.runner.IndexSource(ctx, src, cleanupMode)
				if report != nil {
					printReport(cmd, report)
				}
				return err
			}

			if err := reindex(cmd.Context()); err != nil {
				return err
			}

			w, err := watch.New(args[0], debounce, reindex, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s (Ctrl-C to stop)\n", args[0])

			err = w.Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "full", "Cleanup mode: full, incremental, or none")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before reindexing")
	return cmd
}
