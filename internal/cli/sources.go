package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the documents ingested into a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess := env.sessionName(sessionFlag)
			docs, err := env.store.ListDocuments(sess)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Printf("No documents in session %q. Run `docsage ingest <path>` first.\n", sess)
				return nil
			}

			fmt.Printf("Session %q: %d document(s)\n\n", sess, len(docs))
			for _, d := range docs {
				fmt.Printf("  %-40s %8s  %4d sections, %5d passages  %s\n",
					d.Name, formatBytes(d.SizeBytes), d.ParentCount, d.ChildCount,
					d.CreatedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session to list (default from config)")

	return cmd
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
