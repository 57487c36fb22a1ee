package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/source"
)

func newIndexCmd() *cobra.Command {
	var (
		mode       string
		extensions []string
	)

	cmd := &cobra.Command{
		Use:   "index <directory>",
		Short: "Reconcile the vector index with a directory of documents",
		Long: `Index every document under the directory. Each document is its own
reconciliation group: unchanged chunks are skipped, new or changed
chunks are embedded and upserted, and under --mode=full chunks the
document no longer produces are deleted.`,
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

			var opts []source.DirOption
			if len(extensions) > 0 {
				opts = append(opts, source.WithExtensions(extensions...))
			}
			src, err := source.NewDirSource(args[0], opts...)
			if err != nil {
				return err
			}

			p, err := openPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			report, err := p.runner.IndexSource(cmd.Context(), src, cleanupMode)
			if report != nil {
				printReport(cmd, report)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "full", "Cleanup mode: full, incremental, or none")
	cmd.Flags().StringSliceVar(&extensions, "ext", nil, "File extensions to index (default: common text formats)")
	return cmd
}

func printReport(cmd *cobra.Command, report *index.RunReport) {
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d document(s): %d added, %d skipped, %d deleted\n",
		report.Groups, report.Totals.Added, report.Totals.Skipped, report.Totals.Deleted)
	for _, f := range report.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "  failed: %s: %v\n", f.Group, f.Err)
	}
}
