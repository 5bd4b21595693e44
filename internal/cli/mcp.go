package cli

import (
	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve docsage tools over the Model Context Protocol (stdio)",
		Long: `Start an MCP server on stdio exposing docsage's tools — ask_documents,
search_documents, list_documents, and clear_session — to MCP clients
like Claude Desktop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			srv, err := mcp.NewServer(env.cfg, env.db, version)
			if err != nil {
				return err
			}
			return srv.Serve()
		},
	}
}
