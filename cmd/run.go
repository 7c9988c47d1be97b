package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/workpipe/internal/config"
	"github.com/conneroisu/workpipe/internal/pipeline"
	"github.com/conneroisu/workpipe/internal/workload"
)

var (
	runWork      string
	runTasks     int
	runWorkers   int
	runQueue     int
	runUnbounded bool
	runFail      []int
	runSleep     time.Duration
	runOrdered   bool
	runQuiet     bool
)

var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"r"},
	Short:   "Run a batch of tasks through the worker pool",
	Long: `Run a batch of numbered tasks through a fixed worker pool and stream the
results as workers finish.

Tasks are numbered 0..n-1 and fed to the pool in order; result order follows
completion, not submission. Use --ordered to re-sort the output by task id
after the drain.

Examples:
  workpipe run                              # 10 doubled tasks, 4 workers
  workpipe run --tasks 100 --workers 8      # wider pool
  workpipe run --work hash --queue 0        # synchronous handoff
  workpipe run --unbounded                  # task queue never blocks
  workpipe run --fail 5 --fail 7            # demonstrate failure isolation
  workpipe run --work sleep --sleep 50ms    # demonstrate backpressure`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runWork, "work", "w", "double", fmt.Sprintf("workload to run %v", workload.Names()))
	runCmd.Flags().IntVarP(&runTasks, "tasks", "n", 10, "number of tasks to submit")
	addWorkersFlag(runCmd.Flags(), &runWorkers)
	runCmd.Flags().IntVar(&runQueue, "queue", -1, "task queue capacity, 0 for synchronous handoff (overrides config)")
	runCmd.Flags().BoolVar(&runUnbounded, "unbounded", false, "use an unbounded task queue")
	runCmd.Flags().IntSliceVar(&runFail, "fail", nil, "task ids the workload fails on purpose")
	runCmd.Flags().DurationVar(&runSleep, "sleep", 10*time.Millisecond, "per-task duration for the sleep workload")
	runCmd.Flags().BoolVar(&runOrdered, "ordered", false, "re-sort results by task id before printing")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress per-result lines, print only the summary")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	pipeCfg := pipeline.Config{
		Workers:       cfg.Pipeline.Workers,
		QueueCapacity: cfg.Pipeline.QueueCapacity,
		Unbounded:     cfg.Pipeline.Unbounded || runUnbounded,
	}
	if runWorkers > 0 {
		pipeCfg.Workers = runWorkers
	}
	if runQueue >= 0 {
		pipeCfg.QueueCapacity = runQueue
	}

	if runTasks < 0 {
		return fmt.Errorf("tasks must not be negative, got %d", runTasks)
	}

	work, err := workload.Build(runWork, workload.Options{
		FailIDs: runFail,
		Sleep:   runSleep,
	})
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	dispatcher, err := pipeline.New(pipeCfg, work,
		pipeline.WithLogger(logger),
		pipeline.WithName(runWork),
	)
	if err != nil {
		return err
	}

	payloads := make([]int, runTasks)
	for i := range payloads {
		payloads[i] = i
	}

	title := cases.Title(language.English).String(runWork)
	fmt.Printf("%s: %d tasks, %d workers", title, runTasks, pipeCfg.Workers)
	if pipeCfg.Unbounded {
		fmt.Print(", unbounded queue")
	} else {
		fmt.Printf(", queue capacity %d", pipeCfg.QueueCapacity)
	}
	fmt.Println()

	start := time.Now()
	op := logger.StartOperation("run")

	sink, err := dispatcher.Dispatch(ctx, payloads)
	if err != nil {
		op.EndWithError(ctx, err)
		return err
	}

	var results []pipeline.Result[string]
	if runOrdered {
		results = sink.Collect()
		pipeline.SortByID(results)
		if !runQuiet {
			for _, result := range results {
				printResult(result)
			}
		}
	} else {
		for result := range sink.Results() {
			if !runQuiet {
				printResult(result)
			}
			results = append(results, result)
		}
	}

	elapsed := time.Since(start)

	if err := ctx.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "run interrupted: %v\n", err)
	}

	printSummary(dispatcher.Metrics(), len(results), elapsed)

	_, failed := pipeline.Partition(results)
	if len(failed) > 0 {
		err := fmt.Errorf("%d of %d tasks failed", len(failed), len(results))
		op.EndWithError(ctx, err)
		return err
	}

	op.End(ctx)
	return nil
}

func printResult(result pipeline.Result[string]) {
	if result.Failed() {
		fmt.Printf("task %-4d worker %d  FAILED  %v\n", result.TaskID, result.WorkerID, result.Err)
		return
	}
	fmt.Printf("task %-4d worker %d  %s  (%s)\n", result.TaskID, result.WorkerID, result.Value, result.Duration.Round(time.Microsecond))
}

func printSummary(metrics pipeline.MetricsSnapshot, delivered int, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("Summary")
	fmt.Println("=======")
	fmt.Printf("Delivered: %d\n", delivered)
	fmt.Printf("Succeeded: %d\n", metrics.Succeeded)
	fmt.Printf("Failed: %d\n", metrics.Failed)
	if metrics.Recovered > 0 {
		fmt.Printf("Recovered panics: %d\n", metrics.Recovered)
	}
	fmt.Printf("Elapsed: %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Average task: %s\n", metrics.AverageDuration.Round(time.Microsecond))
}
