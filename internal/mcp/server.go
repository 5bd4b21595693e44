// Package mcp exposes docsage over the Model Context Protocol so MCP
// clients (Claude Desktop, editors) can search and question ingested
// documents directly.
package mcp

import (
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/db"
	"github.com/docsage/docsage/internal/session"
	"github.com/docsage/docsage/internal/vecindex"
)

// Server hosts the docsage MCP tools over stdio.
type Server struct {
	cfg      config.GlobalConfig
	store    *session.Store
	index    *vecindex.Store
	llm      adapter.LLMAdapter
	embedder adapter.Embedder
	model    string
	version  string
}

// NewServer wires a Server from the shared database and global config.
func NewServer(cfg config.GlobalConfig, database *db.DB, version string) (*Server, error) {
	provider := cfg.DefaultProvider
	llm, err := adapter.New(provider, "", cfg.KeyFor(provider), cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("mcp: init LLM adapter: %w", err)
	}

	embName := cfg.DefaultEmbedder
	if embName == "" {
		embName = adapter.ProviderOllama
	}
	embedder, err := adapter.New(embName, cfg.Ollama.EmbedModel, cfg.KeyFor(embName), cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("mcp: init embedder: %w", err)
	}

	model := ""
	if provider == adapter.ProviderOllama {
		model = cfg.Ollama.CompletionModel
	}

	return &Server{
		cfg:      cfg,
		store:    session.NewStore(database),
		index:    vecindex.NewStore(database),
		llm:      llm,
		embedder: embedder,
		model:    model,
		version:  version,
	}, nil
}

// Serve registers the tools and blocks serving MCP over stdio.
func (s *Server) Serve() error {
	srv := server.NewMCPServer("docsage", s.version,
		server.WithToolCapabilities(false),
	)

	srv.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the session's ingested documents, with conversational memory. Follow-up questions in the same session understand the earlier conversation."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("session", mcp.Description("Session to ask within (defaults to the configured session)")),
		mcp.WithString("sources", mcp.Description("Comma-separated document names to restrict retrieval to")),
	), s.handleAsk)

	srv.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Semantic search over the session's ingested documents, returning the surrounding document sections for the best-matching passages."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query")),
		mcp.WithString("session", mcp.Description("Session to search (defaults to the configured session)")),
		mcp.WithNumber("top_k", mcp.Description("Number of passages to retrieve (default 10)")),
	), s.handleSearch)

	srv.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents ingested into a session."),
		mcp.WithString("session", mcp.Description("Session to list (defaults to the configured session)")),
	), s.handleListDocuments)

	srv.AddTool(mcp.NewTool("clear_session",
		mcp.WithDescription("Forget a session's conversation history and rolling summary. Ingested documents stay indexed."),
		mcp.WithString("session", mcp.Description("Session to clear (defaults to the configured session)")),
	), s.handleClearSession)

	return server.ServeStdio(srv)
}

// sessionName resolves the effective session for a tool call.
func (s *Server) sessionName(flag string) string {
	if flag != "" {
		return flag
	}
	if s.cfg.DefaultSession != "" {
		return s.cfg.DefaultSession
	}
	return "default"
}
