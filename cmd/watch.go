package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/workpipe/internal/config"
	"github.com/conneroisu/workpipe/internal/pipeline"
	"github.com/conneroisu/workpipe/internal/watch"
	"github.com/conneroisu/workpipe/internal/workload"
)

var (
	watchExtensions []string
	watchDebounce   time.Duration
	watchWorkers    int
)

var watchCmd = &cobra.Command{
	Use:     "watch [paths...]",
	Aliases: []string{"w"},
	Short:   "Feed file changes into the pipeline as checksum tasks",
	Long: `Watch directories for file changes and feed every changed file to the
worker pool as a checksum task. The pool stays up between changes; the
watcher is the task source and the terminal is the result sink.

Rapid bursts of changes to one file are debounced into a single task.

Examples:
  workpipe watch                        # watch configured paths
  workpipe watch ./content ./static     # watch explicit paths
  workpipe watch -e .md -e .html        # only react to these extensions
  workpipe watch --debounce 1s          # settle window for event bursts`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSliceVarP(&watchExtensions, "extensions", "e", nil, "file extensions to react to (default: all)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "debounce window for change bursts (overrides config)")
	addWorkersFlag(watchCmd.Flags(), &watchWorkers)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	paths := cfg.Watch.Paths
	if len(args) > 0 {
		paths = args
	}

	extensions := cfg.Watch.Extensions
	if len(watchExtensions) > 0 {
		extensions = watchExtensions
	}

	debounce := cfg.Watch.Debounce
	if watchDebounce > 0 {
		debounce = watchDebounce
	}

	pipeCfg := pipeline.Config{
		Workers: cfg.Pipeline.Workers,
		// Watch mode's task rate is bursty and unpredictable, so the
		// queue is unbounded; the debouncer already collapses bursts.
		Unbounded: true,
	}
	if watchWorkers > 0 {
		pipeCfg.Workers = watchWorkers
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dispatcher, err := pipeline.New(pipeCfg, workload.ChecksumFile(),
		pipeline.WithLogger(logger),
		pipeline.WithName("checksum"),
	)
	if err != nil {
		return err
	}

	if err := dispatcher.Start(ctx); err != nil {
		return err
	}

	source, err := watch.NewSource(debounce, logger)
	if err != nil {
		return err
	}
	defer source.Stop()

	source.AddFilter(watch.NoHiddenFilter)
	source.AddFilter(watch.IgnoreFilter(cfg.Watch.Ignore...))
	if len(extensions) > 0 {
		source.AddFilter(watch.ExtensionFilter(extensions...))
	}

	for _, path := range paths {
		if err := source.AddRecursive(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	source.AddHandler(func(events []watch.Event) error {
		for _, event := range events {
			if event.Type == watch.EventDeleted {
				continue
			}
			if _, err := dispatcher.Submit(ctx, event.Path); err != nil {
				return err
			}
		}
		return nil
	})

	if err := source.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("Watching %v (%d workers, debounce %s), Ctrl-C to stop\n", paths, pipeCfg.Workers, debounce)

	// Drain results until the dispatcher closes behind the workers.
	var drained sync.WaitGroup
	drained.Add(1)
	go func() {
		defer drained.Done()
		for result := range dispatcher.Results() {
			if result.Failed() {
				fmt.Printf("FAILED  %v\n", result.Err)
				continue
			}
			fmt.Printf("%s  task %d  (%s)\n", result.Value, result.TaskID, result.Duration.Round(time.Millisecond))
		}
	}()

	<-ctx.Done()

	// Stop the task source before closing the pipeline so no handler can
	// submit to a closing dispatcher.
	source.Stop()
	dispatcher.Close()
	drained.Wait()

	metrics := dispatcher.Metrics()
	fmt.Printf("\nProcessed %d files: %d succeeded, %d failed\n", metrics.TotalTasks, metrics.Succeeded, metrics.Failed)

	return nil
}
