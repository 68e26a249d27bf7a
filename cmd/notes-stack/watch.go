package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/lex00/notes-stack-go/internal/topology"
)

// newWatchCmd creates the "watch" subcommand for re-synthesizing on changes.
func newWatchCmd(opts *globalOptions) *cobra.Command {
	var wo watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-synthesize when the schema or artifact changes",
		Long: `Watch monitors the GraphQL schema, the Lambda artifact and the config file
and re-synthesizes the template whenever one of them changes.

The watch command:
- Watches the directories holding the input files
- Debounces rapid changes to avoid excessive rebuilds
- Optionally reconciles the local state after each rebuild (--apply)

Examples:
    notes-stack watch -o template.json
    notes-stack watch --apply --debounce 1s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, wo)
		},
	}

	cmd.Flags().DurationVar(&wo.debounce, "debounce", 500*time.Millisecond, "Debounce duration for rapid changes")
	cmd.Flags().StringVarP(&wo.outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&wo.outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&wo.apply, "apply", false, "Also reconcile the local state after each rebuild")
	cmd.Flags().StringVar(&wo.stateFile, "state", defaultStateFile, "Local state file used with --apply")

	return cmd
}

type watchOptions struct {
	debounce     time.Duration
	outputFormat string
	outputFile   string
	apply        bool
	stateFile    string
}

// runWatch monitors the input files and rebuilds on changes.
func runWatch(ctx context.Context, opts *globalOptions, wo watchOptions) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	files, err := watchedFiles(cfg, opts.configFile)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	// Directories are watched so editors that replace files are seen.
	dirs := make(map[string]bool)
	for file := range files {
		dir := filepath.Dir(file)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		fmt.Printf("Watching: %s\n", dir)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Println("Running initial synth...")
	rebuild(ctx, opts, wo)

	var debounceTimer *time.Timer
	rebuildChan := make(chan struct{}, 1)

	fmt.Println("\nWatching for changes... (Ctrl+C to stop)")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, files) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(wo.debounce, func() {
				select {
				case rebuildChan <- struct{}{}:
				default:
				}
			})

		case <-rebuildChan:
			fmt.Printf("\n[%s] Change detected, rebuilding...\n", time.Now().Format("15:04:05"))
			rebuild(ctx, opts, wo)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)

		case <-sigChan:
			fmt.Println("\nStopping watch...")
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

// watchedFiles returns the absolute paths of the files that trigger a rebuild.
func watchedFiles(cfg topology.Config, configFile string) (map[string]bool, error) {
	files := make(map[string]bool)
	for _, path := range []string{cfg.SchemaPath, cfg.ArtifactPath, configFile} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		files[abs] = true
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("nothing to watch: set --schema, --artifact or --config")
	}
	return files, nil
}

// relevant reports whether event touches a watched file.
func relevant(event fsnotify.Event, files map[string]bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	return files[abs]
}

// rebuild synthesizes the template and, with --apply, reconciles local state.
// Errors are reported and the watch continues.
func rebuild(ctx context.Context, opts *globalOptions, wo watchOptions) {
	cfg, g, err := opts.graph()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build error: %v\n", err)
		return
	}
	_, tmpl, err := synthesize(ctx, g)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Synth error: %v\n", err)
		return
	}
	if err := writeTemplate(tmpl, wo.outputFormat, wo.outputFile); err != nil {
		fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
		return
	}
	if wo.outputFile != "" {
		fmt.Printf("Wrote %s (%d resources)\n", wo.outputFile, len(tmpl.Resources))
	}

	if !wo.apply {
		return
	}
	outputs, err := applyLocal(ctx, cfg, g, applyOptions{stateFile: wo.stateFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Apply error: %v\n", err)
		return
	}
	fmt.Printf("Applied: %s\n", outputs.GatewayURL)
}
