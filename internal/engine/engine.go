// Package engine runs the full query pipeline for one conversational
// turn: memory advance, retrieval, and a streamed grounded answer with
// trailer metadata.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/convo"
	"github.com/docsage/docsage/internal/prompt"
	"github.com/docsage/docsage/internal/retrieval"
	"github.com/docsage/docsage/internal/stream"
)

// contextTokenBudget caps the retrieved context block in the system
// prompt so oversized parents cannot crowd out the conversation.
const contextTokenBudget = 6000

// Input validation errors, surfaced before any network call.
var (
	ErrNoSession  = errors.New("engine: session identifier is required")
	ErrNoQuestion = errors.New("engine: last turn must be a non-empty user message")
)

// Event is one fragment of the answer stream. Err terminates the stream.
type Event struct {
	Text string
	Err  error
}

// AskRequest carries one conversational turn through the pipeline. Turns
// must include the latest user message; State is the caller's persisted
// memory state, returned (when changed) via the memory trailer.
type AskRequest struct {
	Session string
	Turns   []convo.Turn
	State   convo.State
	Sources []string
	Model   string
	TopK    int
	Window  int
}

// Engine coordinates the pipeline collaborators.
type Engine struct {
	llm       adapter.LLMAdapter
	memory    *convo.Manager
	retriever *retrieval.Orchestrator
	tokenizer *prompt.Tokenizer
}

// New creates an Engine. The tokenizer may be nil; context capping and
// usage estimation for providers that report no counts are then skipped.
func New(llm adapter.LLMAdapter, memory *convo.Manager, retriever *retrieval.Orchestrator, tokenizer *prompt.Tokenizer) *Engine {
	return &Engine{
		llm:       llm,
		memory:    memory,
		retriever: retriever,
		tokenizer: tokenizer,
	}
}

// Ask validates the request, then streams the grounded answer followed
// by a usage trailer and, when the memory state advanced, a memory
// trailer. A failure before the first token terminates the stream with
// that error; cancellation emits no trailers.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (<-chan Event, error) {
	if strings.TrimSpace(req.Session) == "" {
		return nil, ErrNoSession
	}
	if len(req.Turns) == 0 {
		return nil, ErrNoQuestion
	}
	last := req.Turns[len(req.Turns)-1]
	if last.Role != adapter.RoleUser || strings.TrimSpace(last.Content) == "" {
		return nil, ErrNoQuestion
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		e.run(ctx, req, out)
	}()
	return out, nil
}

func (e *Engine) run(ctx context.Context, req AskRequest, out chan<- Event) {
	question := req.Turns[len(req.Turns)-1].Content
	prior := req.Turns[:len(req.Turns)-1]

	// Summarize overflow first: reformulation reads the updated summary.
	state, usage, recent := e.memory.Advance(ctx, prior, req.State, req.Window)

	res, err := e.retriever.Retrieve(ctx, req.Session, question, state.Summary, recent, retrieval.Options{
		TopK:    req.TopK,
		Sources: req.Sources,
		Model:   req.Model,
	})
	if err != nil {
		out <- Event{Err: err}
		return
	}
	usage.Add(res.Usage)

	contextText := res.Context
	if e.tokenizer != nil {
		contextText = e.tokenizer.Truncate(contextText, contextTokenBudget)
	}
	system := prompt.AnswerSystem(contextText)
	if pre := prompt.SummaryPreamble(state.Summary); pre != "" {
		system += "\n\n" + pre
	}

	messages := make([]adapter.Message, 0, len(recent)+1)
	for _, t := range recent {
		messages = append(messages, adapter.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, adapter.Message{Role: adapter.RoleUser, Content: question})

	ch, err := e.llm.Complete(ctx, adapter.CompletionRequest{
		SystemPrompt: system,
		Messages:     messages,
		Model:        req.Model,
		Stream:       true,
	})
	if err != nil {
		out <- Event{Err: fmt.Errorf("engine: generate: %w", err)}
		return
	}

	var answer strings.Builder
	var genUsage adapter.Usage
	for chunk := range ch {
		if chunk.Error != nil {
			// Mid-stream failure: surface the error; never emit trailers
			// after a partial answer, so the caller treats it as not final.
			out <- Event{Err: fmt.Errorf("engine: generate: %w", chunk.Error)}
			return
		}
		if chunk.Usage != nil {
			genUsage.Add(*chunk.Usage)
		}
		if chunk.Text != "" {
			answer.WriteString(chunk.Text)
			select {
			case out <- Event{Text: chunk.Text}:
			case <-ctx.Done():
				return
			}
		}
	}

	// A cancelled stream gets no trailers.
	if ctx.Err() != nil {
		return
	}

	if genUsage.Total() == 0 && e.tokenizer != nil {
		// Provider reported nothing: estimate so the trailer is populated.
		genUsage.PromptTokens = e.tokenizer.Count(system) + countMessages(e.tokenizer, messages)
		genUsage.CompletionTokens = e.tokenizer.Count(answer.String())
	}
	usage.Add(genUsage)

	out <- Event{Text: stream.EncodeUsage(usage)}
	if state != req.State {
		out <- Event{Text: stream.EncodeMemory(state)}
	}
}

func countMessages(tok *prompt.Tokenizer, messages []adapter.Message) int {
	total := 0
	for _, m := range messages {
		total += tok.Count(m.Content)
	}
	return total
}
