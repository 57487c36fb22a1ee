package cmd

import (
	"fmt"
	"os"

	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
)

func newStatusCmd() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index state and check ledger/store consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			p, err := openPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Namespace:  %s\n", cfg.Namespace())
			fmt.Fprintf(out, "Backend:    %s\n", cfg.Store.Backend)
			fmt.Fprintf(out, "Model:      %s (%d dimensions)\n",
				p.embedder.ModelName(), p.embedder.Dimensions())

			available := p.embedder.Available(cmd.Context())
			fmt.Fprintf(out, "Embeddings: %s\n", mark(available, "reachable", "unreachable"))

			checker := index.NewConsistencyChecker(p.ledger, p.vectors, nil)
			var report *index.Report
			if repair {
				report, err = checker.Repair(cmd.Context())
			} else {
				report, err = checker.Check(cmd.Context())
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Ledger:     %d entries\n", report.LedgerKeys)
			fmt.Fprintf(out, "Vectors:    %d stored\n", report.VectorIDs)

			if report.Consistent() {
				fmt.Fprintln(out, "Consistency: ok")
				return nil
			}
			fmt.Fprintf(out, "Consistency: %d ledger key(s) missing vectors, %d untracked vector(s)\n",
				len(report.MissingVectors), len(report.UntrackedVectors))
			if repair {
				fmt.Fprintln(out, "Repaired.")
			} else if isatty.IsTerminal(os.Stdout.Fd()) {
				fmt.Fprintln(out, "Run 'docdex status --repair' to fix.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Repair ledger/store divergence")
	return cmd
}

func mark(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
