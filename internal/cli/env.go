package cli

import (
	"fmt"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/chunker"
	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/db"
	"github.com/docsage/docsage/internal/extract"
	"github.com/docsage/docsage/internal/ingest"
	"github.com/docsage/docsage/internal/session"
	"github.com/docsage/docsage/internal/vecindex"
)

// appEnv bundles the config, database, and stores every command needs.
type appEnv struct {
	cfg   config.GlobalConfig
	db    *db.DB
	store *session.Store
	index *vecindex.Store
}

// openEnv loads the global config and opens the shared database.
func openEnv() (*appEnv, error) {
	cfg, err := config.LoadGlobal()
	if err != nil {
		return nil, err
	}

	dbPath, err := config.DBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	database, err := db.OpenWithDimension(dbPath, cfg.Retrieval.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &appEnv{
		cfg:   cfg,
		db:    database,
		store: session.NewStore(database),
		index: vecindex.NewStore(database),
	}, nil
}

func (e *appEnv) Close() {
	if e.db != nil {
		e.db.Close()
	}
}

// sessionName resolves the effective session: flag, then config default.
func (e *appEnv) sessionName(flag string) string {
	if flag != "" {
		return flag
	}
	if e.cfg.DefaultSession != "" {
		return e.cfg.DefaultSession
	}
	return "default"
}

// llm builds a completion adapter for the given provider name, falling
// back to the configured default provider when empty.
func (e *appEnv) llm(provider string) (adapter.LLMAdapter, string, error) {
	if provider == "" {
		provider = e.cfg.DefaultProvider
	}
	a, err := adapter.New(provider, "", e.cfg.KeyFor(provider), e.cfg.Ollama.Host)
	if err != nil {
		return nil, "", fmt.Errorf("init LLM adapter: %w", err)
	}
	model := ""
	if provider == adapter.ProviderOllama {
		model = e.cfg.Ollama.CompletionModel
	}
	return a, model, nil
}

// embedder builds the configured embedding adapter.
func (e *appEnv) embedder() (adapter.Embedder, error) {
	name := e.cfg.DefaultEmbedder
	if name == "" {
		name = adapter.ProviderOllama
	}
	a, err := adapter.New(name, e.cfg.Ollama.EmbedModel, e.cfg.KeyFor(name), e.cfg.Ollama.Host)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return a, nil
}

func (e *appEnv) chunkerConfig() chunker.Config {
	return chunker.Config{
		ParentSize:    e.cfg.Chunking.ParentSize,
		ParentOverlap: e.cfg.Chunking.ParentOverlap,
		ChildSize:     e.cfg.Chunking.ChildSize,
		ChildOverlap:  e.cfg.Chunking.ChildOverlap,
	}
}

// ingestor wires the write path from the environment.
func (e *appEnv) ingestor() (*ingest.Ingestor, error) {
	emb, err := e.embedder()
	if err != nil {
		return nil, err
	}
	return ingest.New(extract.NewText(), emb, e.index, e.store, e.chunkerConfig()), nil
}
