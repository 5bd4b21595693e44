// Package convo keeps multi-turn conversation context bounded: older
// turns are folded into a running summary while a verbatim window of
// recent turns is kept intact. A single watermark records how much
// history is already summarized, so no turn is compressed twice.
package convo

import (
	"context"
	"fmt"
	"strings"

	"github.com/docsage/docsage/internal/adapter"
)

// DefaultRecentWindow is the number of turns kept verbatim (3 exchanges).
const DefaultRecentWindow = 6

// summaryMaxTokens caps the summarization call output (~200 words).
const summaryMaxTokens = 400

// Turn is one role-tagged entry in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// State is the caller-owned memory state threaded through every request.
// SummarizedThrough counts the turns already folded into Summary; it is
// monotonically non-decreasing and never exceeds len(turns) - window.
type State struct {
	Summary           string `json:"summary"`
	SummarizedThrough int    `json:"summarizedThroughIndex"`
}

// Manager folds overflow turns into the running summary.
type Manager struct {
	llm   adapter.LLMAdapter
	model string
}

// NewManager creates a Manager that summarizes with the given model.
func NewManager(llm adapter.LLMAdapter, model string) *Manager {
	return &Manager{llm: llm, model: model}
}

// Advance computes the recent verbatim window and, when turns have
// outgrown it, folds the overflow (turns past the watermark but before
// the window) into the summary. If the summarization call fails or
// returns nothing, the previous state is returned unchanged so the same
// overflow is retried on the next turn; the request itself never fails
// on summarization.
func (m *Manager) Advance(ctx context.Context, turns []Turn, state State, window int) (State, adapter.Usage, []Turn) {
	if window <= 0 {
		window = DefaultRecentWindow
	}

	if len(turns) <= window {
		return state, adapter.Usage{}, turns
	}

	boundary := len(turns) - window
	recent := turns[boundary:]

	// Watermark never moves backwards, even on malformed input.
	if state.SummarizedThrough >= boundary {
		return state, adapter.Usage{}, recent
	}

	overflow := turns[state.SummarizedThrough:boundary]
	summary, usage, err := m.summarize(ctx, state.Summary, overflow)
	if err != nil || strings.TrimSpace(summary) == "" {
		return state, usage, recent
	}

	return State{
		Summary:           strings.TrimSpace(summary),
		SummarizedThrough: boundary,
	}, usage, recent
}

func (m *Manager) summarize(ctx context.Context, prior string, overflow []Turn) (string, adapter.Usage, error) {
	var b strings.Builder
	if prior != "" {
		fmt.Fprintf(&b, "Existing summary:\n%s\n\n", prior)
	}
	b.WriteString("New turns to fold in:\n")
	for _, t := range overflow {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
	}

	return adapter.CompleteText(ctx, m.llm, adapter.CompletionRequest{
		SystemPrompt: "Maintain a running summary of a conversation between a user and a document " +
			"assistant. Fold the new turns into the existing summary. Keep every fact, name, and " +
			"open question that later turns might refer back to. At most 200 words. Output only " +
			"the updated summary.",
		Messages: []adapter.Message{
			{Role: adapter.RoleUser, Content: b.String()},
		},
		Model:       m.model,
		MaxTokens:   summaryMaxTokens,
		Temperature: 0,
	})
}
