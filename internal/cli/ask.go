package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/adapter"
	"github.com/docsage/docsage/internal/convo"
	"github.com/docsage/docsage/internal/engine"
	"github.com/docsage/docsage/internal/prompt"
	"github.com/docsage/docsage/internal/retrieval"
	"github.com/docsage/docsage/internal/stream"
)

func newAskCmd() *cobra.Command {
	var (
		sessionFlag string
		provider    string
		sources     []string
		topK        int
		showContext bool
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about your ingested documents",
		Long: `Answer a question using the session's indexed documents, streaming the
reply as it is generated. Follow-up questions in the same session see
the earlier conversation.

Examples:
  docsage ask "What does the refund policy say about partial returns?"
  docsage ask "And for digital goods?" --session support
  docsage ask "Summarize chapter 3" --sources book.txt
  docsage ask "What changed?" --show-context`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")

			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess := env.sessionName(sessionFlag)
			if topK <= 0 {
				topK = env.cfg.Retrieval.TopK
			}

			llm, model, err := env.llm(provider)
			if err != nil {
				return err
			}
			emb, err := env.embedder()
			if err != nil {
				return err
			}

			retriever := retrieval.NewOrchestrator(llm, emb, env.index)

			state, err := env.store.GetState(sess)
			if err != nil {
				return err
			}
			turns, err := env.store.ListTurns(sess)
			if err != nil {
				return err
			}

			if showContext {
				res, err := retriever.Retrieve(context.Background(), sess, question,
					state.Summary, recentWindow(turns, state, env.cfg.Memory.RecentWindow),
					retrieval.Options{TopK: topK, Sources: sources, Model: model})
				if err != nil {
					return fmt.Errorf("retrieve: %w", err)
				}
				fmt.Println("=== Search query ===")
				fmt.Println(res.Query)
				fmt.Println("=== Context ===")
				fmt.Println(res.Context)
				return nil
			}

			tokenizer, err := prompt.NewTokenizer()
			if err != nil {
				tokenizer = nil // Usage estimation is best-effort.
			}

			eng := engine.New(llm, convo.NewManager(llm, model), retriever, tokenizer)

			userTurn := convo.Turn{Role: adapter.RoleUser, Content: question}
			events, err := eng.Ask(context.Background(), engine.AskRequest{
				Session: sess,
				Turns:   append(turns, userTurn),
				State:   state,
				Sources: sources,
				Model:   model,
				TopK:    topK,
				Window:  env.cfg.Memory.RecentWindow,
			})
			if err != nil {
				return err
			}

			var dec stream.Decoder
			var answer strings.Builder
			for ev := range events {
				if ev.Err != nil {
					fmt.Println()
					return ev.Err
				}
				text := dec.Feed(ev.Text)
				answer.WriteString(text)
				fmt.Print(text)
			}
			tail, trailers := dec.Finalize()
			answer.WriteString(tail)
			fmt.Println(tail)

			if verbose && trailers.Usage != nil {
				fmt.Fprintf(os.Stderr, "\n[%d prompt + %d completion tokens]\n",
					trailers.Usage.PromptTokens, trailers.Usage.CompletionTokens)
			}

			// Persist the exchange so follow-ups see it.
			assistantTurn := convo.Turn{Role: adapter.RoleAssistant, Content: answer.String()}
			if err := env.store.AppendTurns(sess, userTurn, assistantTurn); err != nil {
				return err
			}
			if trailers.Memory != nil {
				if err := env.store.SaveState(sess, *trailers.Memory); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session to ask within (default from config)")
	cmd.Flags().StringVarP(&provider, "model", "m", "", "LLM provider override: claude, openai, ollama")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "restrict retrieval to these document names")
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of passages to retrieve (default from config)")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the retrieved context without calling the LLM")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show token usage after the answer")

	return cmd
}

// recentWindow returns the turns the memory layer would keep verbatim,
// for the context preview path that bypasses the engine.
func recentWindow(turns []convo.Turn, state convo.State, window int) []convo.Turn {
	if window <= 0 {
		window = convo.DefaultRecentWindow
	}
	if len(turns) <= window {
		if state.SummarizedThrough < len(turns) {
			return turns[state.SummarizedThrough:]
		}
		return nil
	}
	return turns[len(turns)-window:]
}
