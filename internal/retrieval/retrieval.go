// Package retrieval turns a conversational question into grounding
// context: reformulate, embed, search, deduplicate by parent, assemble.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/convo"
	"github.com/docsage/docsage/internal/prompt"
	"github.com/docsage/docsage/internal/vecindex"
)

// DefaultTopK is the number of child vectors requested from the index.
const DefaultTopK = 10

// reformulateMaxTokens caps the query-rewrite output.
const reformulateMaxTokens = 120

// Options controls a single retrieval call.
type Options struct {
	TopK    int
	Sources []string // any-of filter over source names; empty = all
	Model   string   // model for the reformulation call
}

// Result is the assembled grounding context for one question.
type Result struct {
	Context string // delimiter-joined parent texts, or the no-context sentinel
	Query   string // the query actually embedded (reformulated or original)
	Matches []vecindex.Match
	Usage   adapter.Usage
}

// Orchestrator runs the retrieval pipeline against a vector index.
type Orchestrator struct {
	llm      adapter.LLMAdapter
	embedder adapter.Embedder
	index    vecindex.Index
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(llm adapter.LLMAdapter, embedder adapter.Embedder, index vecindex.Index) *Orchestrator {
	return &Orchestrator{llm: llm, embedder: embedder, index: index}
}

// Retrieve reformulates the question against the conversation, embeds it,
// searches the session's namespace, and assembles deduplicated parent
// context. Embedding and search failures propagate; reformulation
// failures fall back to the original question and never fail the call.
func (o *Orchestrator) Retrieve(ctx context.Context, namespace, question, summary string, recent []convo.Turn, opts Options) (*Result, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	var usage adapter.Usage
	query := question

	// A first question with no history needs no rewrite: zero cost.
	if summary != "" || len(recent) > 0 {
		rewritten, u, err := o.reformulate(ctx, question, summary, recent, opts.Model)
		usage.Add(u)
		if err == nil && strings.TrimSpace(rewritten) != "" {
			query = strings.TrimSpace(rewritten)
		}
	}

	vecs, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("retrieval: embed query: empty response")
	}

	matches, err := o.index.Query(namespace, vecs[0], opts.TopK, opts.Sources)
	if err != nil {
		return nil, fmt.Errorf("retrieval: search: %w", err)
	}

	winners := dedupeByParent(matches)
	parents := make([]string, len(winners))
	for i, m := range winners {
		parents[i] = m.Passage.ParentText
	}

	return &Result{
		Context: prompt.JoinContext(parents),
		Query:   query,
		Matches: winners,
		Usage:   usage,
	}, nil
}

// reformulate rewrites the latest question into a standalone query using
// the running summary and recent turns, with deterministic generation.
func (o *Orchestrator) reformulate(ctx context.Context, question, summary string, recent []convo.Turn, model string) (string, adapter.Usage, error) {
	var b strings.Builder
	if pre := prompt.SummaryPreamble(summary); pre != "" {
		b.WriteString(pre)
		b.WriteString("\n\n")
	}
	if len(recent) > 0 {
		b.WriteString("Recent turns:\n")
		for _, t := range recent {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Latest question: %s", question)

	return adapter.CompleteText(ctx, o.llm, adapter.CompletionRequest{
		SystemPrompt: "Rewrite the latest question as a single standalone search query. Resolve " +
			"pronouns and implicit references using the conversation. Output only the rewritten " +
			"query, nothing else.",
		Messages: []adapter.Message{
			{Role: adapter.RoleUser, Content: b.String()},
		},
		Model:       model,
		MaxTokens:   reformulateMaxTokens,
		Temperature: 0,
	})
}

// dedupeByParent keeps the first (highest-scoring) match per parent id.
// The index returns matches score-descending, so first wins.
func dedupeByParent(matches []vecindex.Match) []vecindex.Match {
	seen := make(map[string]bool, len(matches))
	out := make([]vecindex.Match, 0, len(matches))
	for _, m := range matches {
		if seen[m.Passage.ParentID] {
			continue
		}
		seen[m.Passage.ParentID] = true
		out = append(out, m)
	}
	return out
}
