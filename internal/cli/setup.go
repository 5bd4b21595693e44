package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/docsage/docsage/internal/config"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-time configuration",
		Long:  "Configure API keys, the default LLM provider, and the embedding provider.",
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(os.Stdin)

			fmt.Println("Welcome to docsage! Let's configure your document assistant.")
			fmt.Println()

			cfg := config.DefaultGlobal()

			// Step 1: Choose LLM provider.
			fmt.Println("Which LLM do you want answers from?")
			fmt.Println("  [1] Claude (Anthropic)")
			fmt.Println("  [2] OpenAI (GPT-4o)")
			fmt.Println("  [3] Ollama (local)")
			fmt.Print("> ")

			switch strings.TrimSpace(readLineBuf(reader)) {
			case "1":
				cfg.DefaultProvider = "claude"
				if key := readSecret("Enter your Anthropic API key (or press Enter to set ANTHROPIC_API_KEY later): "); key != "" {
					cfg.Keys.Anthropic = key
				}
			case "2":
				cfg.DefaultProvider = "openai"
				if key := readSecret("Enter your OpenAI API key (or press Enter to set OPENAI_API_KEY later): "); key != "" {
					cfg.Keys.OpenAI = key
				}
			case "3":
				cfg.DefaultProvider = "ollama"
				fmt.Printf("Ollama host (press Enter for %s): ", cfg.Ollama.Host)
				if host := readLineBuf(reader); host != "" {
					cfg.Ollama.Host = host
				}
			default:
				fmt.Println("Unrecognized choice; defaulting to claude.")
				cfg.DefaultProvider = "claude"
			}

			fmt.Println()

			// Step 2: Choose embedding provider.
			fmt.Println("For embeddings (semantic search), use:")
			fmt.Println("  [1] Local embeddings via Ollama (private, free — requires Ollama)")
			fmt.Println("  [2] OpenAI embeddings (better quality, small cost)")
			fmt.Print("> ")

			switch strings.TrimSpace(readLineBuf(reader)) {
			case "2":
				cfg.DefaultEmbedder = "openai"
				if cfg.Keys.OpenAI == "" {
					cfg.Keys.OpenAI = readSecret("Enter your OpenAI API key: ")
				}
			default:
				cfg.DefaultEmbedder = "ollama"
				fmt.Printf("Ollama host (press Enter for %s): ", cfg.Ollama.Host)
				if host := readLineBuf(reader); host != "" {
					cfg.Ollama.Host = host
				}
			}

			fmt.Println()

			if err := config.SaveGlobal(cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			path, _ := config.GlobalConfigPath()
			fmt.Printf("Configuration saved to %s\n", path)
			fmt.Println("Run `docsage ingest <path>` to index your first documents.")

			return nil
		},
	}
}

// readLineBuf reads a trimmed line from a bufio.Reader.
func readLineBuf(r *bufio.Reader) string {
	line, _ := r.ReadString('\n')
	return strings.TrimRight(line, "\r\n")
}

// readSecret prompts for a value without echoing it when stdin is a
// terminal, falling back to plain line input otherwise.
func readSecret(promptText string) string {
	fmt.Print(promptText)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	return readLineBuf(bufio.NewReader(os.Stdin))
}
