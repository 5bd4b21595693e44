package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage conversation sessions",
	}
	cmd.AddCommand(newSessionClearCmd(), newSessionDeleteCmd())
	return cmd
}

func newSessionClearCmd() *cobra.Command {
	var sessionFlag string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget a session's conversation history",
		Long: `Remove the session's conversation turns and rolling summary. Ingested
documents stay indexed, so new questions still search them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess := env.sessionName(sessionFlag)
			if err := env.store.ClearTurns(sess); err != nil {
				return err
			}
			fmt.Printf("Conversation history for session %q cleared.\n", sess)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session to clear (default from config)")

	return cmd
}

func newSessionDeleteCmd() *cobra.Command {
	var sessionFlag string
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a session's documents, index, and history",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess := env.sessionName(sessionFlag)

			if !yes {
				fmt.Printf("Delete all documents and history for session %q? [y/N] ", sess)
				reader := bufio.NewReader(os.Stdin)
				line, _ := reader.ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := env.index.DeleteNamespace(sess); err != nil {
				return err
			}
			if err := env.store.DeleteDocuments(sess); err != nil {
				return err
			}
			if err := env.store.ClearTurns(sess); err != nil {
				return err
			}
			fmt.Printf("Session %q deleted.\n", sess)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session to delete (default from config)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}
