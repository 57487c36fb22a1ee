package cmd

import (
	"fmt"
	"os"
	"strings"

	isatty "github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/chunk"
	"github.com/docdex/docdex/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		topK  int
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Similarity search over the indexed chunks",
		Args:  cobra.MinimumNArgs(1),
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

			query := strings.Join(args, " ")
			results, err := p.retriever.Retrieve(cmd.Context(), query, topK)
			if err != nil {
				return err
			}

			pretty := !plain && isatty.IsTerminal(os.Stdout.Fd())
			printResults(cmd, results, pretty)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 4, "Number of results")
	cmd.Flags().BoolVar(&plain, "plain", false, "Machine-friendly output even on a terminal")
	return cmd
}

func printResults(cmd *cobra.Command, results []store.SearchResult, pretty bool) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return
	}

	for i, r := range results {
		src := r.Metadata[chunk.MetaSource]
		if pretty {
			fmt.Fprintf(out, "%d. %s (score %.3f)\n", i+1, src, r.Score)
			fmt.Fprintf(out, "   %s\n\n", snippet(r.Text, 200))
		} else {
			fmt.Fprintf(out, "%.4f\t%s\t%s\n", r.Score, src, snippet(r.Text, 200))
		}
	}
}

// snippet truncates text to n runes on a single line.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
