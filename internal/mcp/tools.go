package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/convo"
	"github.com/docsage/docsage/internal/engine"
	"github.com/docsage/docsage/internal/retrieval"
	"github.com/docsage/docsage/internal/stream"
)

func (s *Server) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}
	sess := s.sessionName(req.GetString("session", ""))

	var sources []string
	if raw := req.GetString("sources", ""); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				sources = append(sources, name)
			}
		}
	}

	state, err := s.store.GetState(sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load session state: %v", err)), nil
	}
	turns, err := s.store.ListTurns(sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load conversation: %v", err)), nil
	}

	retriever := retrieval.NewOrchestrator(s.llm, s.embedder, s.index)
	eng := engine.New(s.llm, convo.NewManager(s.llm, s.model), retriever, nil)

	userTurn := convo.Turn{Role: adapter.RoleUser, Content: question}
	events, err := eng.Ask(ctx, engine.AskRequest{
		Session: sess,
		Turns:   append(turns, userTurn),
		State:   state,
		Sources: sources,
		Model:   s.model,
		TopK:    s.cfg.Retrieval.TopK,
		Window:  s.cfg.Memory.RecentWindow,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var dec stream.Decoder
	var answer strings.Builder
	for ev := range events {
		if ev.Err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("generate answer: %v", ev.Err)), nil
		}
		answer.WriteString(dec.Feed(ev.Text))
	}
	tail, trailers := dec.Finalize()
	answer.WriteString(tail)

	// Persist the exchange so follow-up tool calls see it.
	assistantTurn := convo.Turn{Role: adapter.RoleAssistant, Content: answer.String()}
	if err := s.store.AppendTurns(sess, userTurn, assistantTurn); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save conversation: %v", err)), nil
	}
	if trailers.Memory != nil {
		if err := s.store.SaveState(sess, *trailers.Memory); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("save memory state: %v", err)), nil
		}
	}

	return mcp.NewToolResultText(answer.String()), nil
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}
	sess := s.sessionName(req.GetString("session", ""))
	topK := req.GetInt("top_k", s.cfg.Retrieval.TopK)

	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("embed query: %v", err)), nil
	}

	matches, err := s.index.Query(sess, vecs[0], topK, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("No matching passages found."), nil
	}

	// Several children of one parent would render the same section; keep
	// the best-scoring match per parent, like the answer path does.
	seen := make(map[string]bool, len(matches))
	var sb strings.Builder
	for _, m := range matches {
		if seen[m.Passage.ParentID] {
			continue
		}
		seen[m.Passage.ParentID] = true
		fmt.Fprintf(&sb, "### %s (score %.3f)\n%s\n\n",
			m.Passage.SourceName, m.Score, m.Passage.ParentText)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleListDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := s.sessionName(req.GetString("session", ""))

	docs, err := s.store.ListDocuments(sess)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list documents: %v", err)), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No documents in session %q.", sess)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %q: %d document(s)\n\n", sess, len(docs))
	for _, d := range docs {
		fmt.Fprintf(&sb, "- %s (%d sections, %d passages, %d bytes, ingested %s)\n",
			d.Name, d.ParentCount, d.ChildCount, d.SizeBytes,
			d.CreatedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) handleClearSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess := s.sessionName(req.GetString("session", ""))

	if err := s.store.ClearTurns(sess); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("clear session: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Conversation history for session %q cleared.", sess)), nil
}
