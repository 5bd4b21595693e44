package mcp

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/db"
	"github.com/docsage/docsage/internal/session"
	"github.com/docsage/docsage/internal/vecindex"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.OpenWithDimension(filepath.Join(t.TempDir(), "test.db"), 2)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return &Server{
		cfg:      config.DefaultGlobal(),
		store:    session.NewStore(database),
		index:    vecindex.NewStore(database),
		embedder: fakeEmbedder{},
	}
}

func callArgs(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textResult(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return tc.Text
}

func TestHandleSearch_DeduplicatesParents(t *testing.T) {
	s := newTestServer(t)

	if err := s.store.UpsertDocument(session.Document{ID: "d1", Session: "default", Name: "guide.txt"}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	items := []vecindex.Item{
		{
			Passage: vecindex.Passage{
				ID: "d1#0", Namespace: "default", DocumentID: "d1", ParentID: "d1:0",
				ChildText: "first child", ParentText: "shared section text", SourceName: "guide.txt",
			},
			Embedding: []float32{1, 0},
		},
		{
			Passage: vecindex.Passage{
				ID: "d1#1", Namespace: "default", DocumentID: "d1", ParentID: "d1:0", ChildIndex: 1, ChunkIndex: 1,
				ChildText: "second child", ParentText: "shared section text", SourceName: "guide.txt",
			},
			Embedding: []float32{0.99, 0.1},
		},
		{
			Passage: vecindex.Passage{
				ID: "d1#2", Namespace: "default", DocumentID: "d1", ParentID: "d1:1", ChunkIndex: 2,
				ChildText: "third child", ParentText: "other section text", SourceName: "guide.txt",
			},
			Embedding: []float32{0.9, 0.3},
		},
	}
	if err := s.index.Upsert("default", items); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	res, err := s.handleSearch(context.Background(), callArgs(map[string]any{"query": "terms"}))
	if err != nil {
		t.Fatalf("handleSearch: %v", err)
	}
	text := textResult(t, res)

	// Two children of the same parent must not repeat the section.
	if got := strings.Count(text, "shared section text"); got != 1 {
		t.Errorf("parent section rendered %d times, want 1:\n%s", got, text)
	}
	if !strings.Contains(text, "other section text") {
		t.Errorf("second parent missing:\n%s", text)
	}
}

func TestHandleListDocuments(t *testing.T) {
	s := newTestServer(t)

	if err := s.store.UpsertDocument(session.Document{
		ID: "d1", Session: "default", Name: "guide.txt", SizeBytes: 42, ParentCount: 2, ChildCount: 5,
	}); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	res, err := s.handleListDocuments(context.Background(), callArgs(nil))
	if err != nil {
		t.Fatalf("handleListDocuments: %v", err)
	}
	text := textResult(t, res)
	if !strings.Contains(text, "guide.txt") || !strings.Contains(text, "2 sections") {
		t.Errorf("inventory missing document detail:\n%s", text)
	}
}
