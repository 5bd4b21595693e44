package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest documents or folders into a session",
		Long: `Extract, chunk, embed, and index one or more documents so they become
searchable with 'docsage ask'.

Directories are walked recursively; .docsageignore (or .gitignore)
patterns and common build directories are skipped.

Examples:
  docsage ingest report.txt notes.md
  docsage ingest ./docs --session support`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess := env.sessionName(sessionFlag)
			ing, err := env.ingestor()
			if err != nil {
				return err
			}

			bar := progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("  Embedding passages"),
				progressbar.OptionSpinnerType(14),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)

			ctx := context.Background()
			var parents, children, files int
			for _, path := range args {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("stat %s: %w", path, err)
				}

				if info.IsDir() {
					receipts, err := ing.IngestDir(ctx, sess, path, func(rel string, _ *ingest.Receipt, fileErr error) {
						if fileErr != nil {
							fmt.Fprintf(os.Stderr, "  warning: %s: %v\n", rel, fileErr)
							return
						}
						_ = bar.Add(1)
					})
					if err != nil {
						return err
					}
					for _, r := range receipts {
						parents += r.ParentCount
						children += r.ChildCount
					}
					files += len(receipts)
					continue
				}

				r, err := ing.IngestFile(ctx, sess, path)
				if err != nil {
					return err
				}
				_ = bar.Add(1)
				parents += r.ParentCount
				children += r.ChildCount
				files++
			}
			_ = bar.Finish()

			fmt.Printf("Ingested %d file(s) into session %q: %d sections, %d passages indexed\n",
				files, sess, parents, children)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session to ingest into (default from config)")

	return cmd
}
