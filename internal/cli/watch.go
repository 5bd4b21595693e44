package cli

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/ingest"
)

func newWatchCmd() *cobra.Command {
	var sessionFlag string
	var debounceMs int

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a folder and keep its session index up to date",
		Long: `Start a long-running watcher that monitors a folder for file changes
(create, modify, delete) and incrementally re-ingests them into the
session.

Changes are debounced so that rapid edits (e.g. saving multiple files at
once) are batched into a single re-index pass.

Press Ctrl-C to stop.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			env, err := openEnv()
			if err != nil {
				return err
			}
			defer env.Close()

			sess := env.sessionName(sessionFlag)
			ing, err := env.ingestor()
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			ignore := ingest.NewIgnoreMatcher(root)

			if err := addWatchDirs(watcher, root, ignore); err != nil {
				return fmt.Errorf("add watch directories: %w", err)
			}

			debounce := time.Duration(debounceMs) * time.Millisecond

			fmt.Printf("Watching %s for session %q (debounce %s). Press Ctrl-C to stop.\n",
				root, sess, debounce)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// Collect changed relative paths, debounce, then process.
			pending := make(map[string]fsnotify.Op)
			timer := time.NewTimer(debounce)
			timer.Stop() // Don't fire immediately.

			for {
				select {
				case <-sigCh:
					fmt.Println("\nStopping watcher.")
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}

					rel, err := filepath.Rel(root, event.Name)
					if err != nil || rel == "." {
						continue
					}
					if shouldIgnoreEvent(rel, ignore) {
						continue
					}

					// If a new directory was created, start watching it.
					if event.Has(fsnotify.Create) {
						if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
							if !ingest.HardIgnore(filepath.Base(event.Name)) {
								_ = watcher.Add(event.Name)
							}
							continue
						}
					}

					pending[rel] = event.Op
					timer.Reset(debounce)

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					fmt.Fprintf(os.Stderr, "  watch error: %v\n", err)

				case <-timer.C:
					if len(pending) == 0 {
						continue
					}
					batch := pending
					pending = make(map[string]fsnotify.Op)

					env.processChanges(ctx, ing, sess, root, batch)

				case <-ctx.Done():
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "session to keep updated (default from config)")
	cmd.Flags().IntVar(&debounceMs, "debounce", 500, "debounce interval in milliseconds")

	return cmd
}

// addWatchDirs recursively adds directories to the watcher, skipping ignored ones.
func addWatchDirs(watcher *fsnotify.Watcher, root string, ignore *ingest.IgnoreMatcher) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if ingest.HardIgnore(d.Name()) {
			return filepath.SkipDir
		}
		rel, _ := filepath.Rel(root, path)
		if rel != "." && ignore.Match(rel) {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// shouldIgnoreEvent checks whether a relative path should be ignored by the watcher.
func shouldIgnoreEvent(rel string, ignore *ingest.IgnoreMatcher) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	for _, p := range parts {
		if ingest.HardIgnore(p) {
			return true
		}
	}
	return ignore.Match(rel)
}

// processChanges handles a batch of file change events: changed files are
// re-ingested under their relative path, removed files are dropped from
// the index.
func (e *appEnv) processChanges(ctx context.Context, ing *ingest.Ingestor, sess, root string, batch map[string]fsnotify.Op) {
	var added, removed, failed int

	for rel, op := range batch {
		absPath := filepath.Join(root, rel)

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			if _, err := os.Stat(absPath); os.IsNotExist(err) {
				if e.dropDocument(sess, rel) {
					removed++
				}
				continue
			}
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			continue
		}

		// Replace the previous version before re-ingesting, so a changed
		// file never answers from stale passages.
		e.dropDocument(sess, rel)

		if _, err := ing.IngestBytes(ctx, sess, rel, data); err != nil {
			if ingest.Skippable(err) {
				continue
			}
			fmt.Fprintf(os.Stderr, "  warning: %s: %v\n", rel, err)
			failed++
			continue
		}
		added++
	}

	if added+removed+failed == 0 {
		return
	}

	ts := time.Now().Format("15:04:05")
	fmt.Printf("[%s] %d re-indexed, %d removed", ts, added, removed)
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
}

// dropDocument removes every indexed document whose source name matches
// the relative path. Returns true if anything was dropped.
func (e *appEnv) dropDocument(sess, name string) bool {
	ids, err := e.store.DocumentIDsByName(sess, name)
	if err != nil || len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		_ = e.index.DeleteDocument(sess, id)
		_ = e.store.DeleteDocument(id)
	}
	return true
}
