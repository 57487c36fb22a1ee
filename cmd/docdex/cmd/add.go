package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docdex/docdex/internal/index"
	"github.com/docdex/docdex/internal/source"
)

func newAddCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <file> | -",
		Short: "Add a single document to the index",
		Long: `Add or update one document without touching the rest of the
collection. Pass "-" to read the document from stdin; use
--name to give stdin content a stable identity so re-adding the same
document updates it instead of duplicating it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			doc, cleanup, err := resolveDocument(cfg.CacheDir, args[0], name)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}
			if doc == nil {
				return fmt.Errorf("%s is not indexable text", args[0])
			}

			p, err := openPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			report, err := p.runner.IndexDocuments(cmd.Context(),
				[]source.Document{*doc}, index.CleanupFull)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Document identity for stdin input (default: a generated spool name)")
	return cmd
}

// resolveDocument loads the document from a path, or stages stdin
// through the spool so the pipeline only ever sees files.
func resolveDocument(cacheDir, arg, name string) (*source.Document, func(), error) {
	if arg != "-" {
		doc, err := source.ReadFile(arg)
		return doc, nil, err
	}

	spool, err := source.NewSpool(filepath.Join(cacheDir, "spool"))
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		name = "stdin.txt"
	}
	staged, err := spool.Stage(name, os.Stdin)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = spool.Remove(staged) }

	doc, err := source.ReadFile(staged)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if doc != nil {
		// The staged path is ephemeral; identity comes from the caller
		doc.Source = name
		doc.Metadata["filename"] = name
	}
	return doc, cleanup, nil
}
