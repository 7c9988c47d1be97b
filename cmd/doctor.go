package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/workpipe/internal/config"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Aliases: []string{"d"},
	Short:   "Diagnose configuration and runtime environment",
	Long: `Diagnose the workpipe configuration and the runtime it would run on.

The doctor command checks for:

- Configuration file presence and validity
- Worker pool size versus available CPUs
- Task queue shape (synchronous, bounded, unbounded)
- Watch path existence and permissions
- Go runtime settings (GOMAXPROCS)

Examples:
  workpipe doctor                  # Full diagnosis
  workpipe doctor --verbose        # Include informational checks
  workpipe doctor --format json    # Output as JSON for tooling`,
	RunE: runDoctor,
}

var (
	doctorVerbose bool
	doctorFormat  string
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name       string                 `json:"name" yaml:"name"`
	Category   string                 `json:"category" yaml:"category"`
	Status     string                 `json:"status" yaml:"status"` // "ok", "warning", "error", "info"
	Message    string                 `json:"message" yaml:"message"`
	Suggestion string                 `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp   time.Time          `json:"timestamp" yaml:"timestamp"`
	Environment map[string]string  `json:"environment" yaml:"environment"`
	Results     []DiagnosticResult `json:"results" yaml:"results"`
	Summary     ReportSummary      `json:"summary" yaml:"summary"`
}

// ReportSummary provides an overview of diagnostic results
type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	OK       int `json:"ok" yaml:"ok"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Errors   int `json:"errors" yaml:"errors"`
	Info     int `json:"info" yaml:"info"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show verbose diagnostic information")
	doctorCmd.Flags().StringVarP(&doctorFormat, "format", "f", "table", "Output format (table|json|yaml)")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("Workpipe Doctor")
	fmt.Println("===============")
	fmt.Println()

	report := &DoctorReport{
		Timestamp:   time.Now(),
		Environment: gatherEnvironmentInfo(),
		Results:     []DiagnosticResult{},
	}

	checks := []func(*DoctorReport) DiagnosticResult{
		checkConfiguration,
		checkWorkerPoolShape,
		checkQueueShape,
		checkWatchPaths,
		checkGoRuntime,
	}

	for _, check := range checks {
		result := check(report)
		report.Results = append(report.Results, result)

		if !doctorVerbose && result.Status == "info" {
			continue
		}

		displayResult(result)
	}

	report.Summary = calculateSummary(report.Results)

	fmt.Println("Summary")
	fmt.Println("=======")
	displaySummary(report.Summary)

	if doctorFormat != "table" {
		if err := outputReport(report, doctorFormat); err != nil {
			return fmt.Errorf("failed to output report: %w", err)
		}
	}

	if report.Summary.Errors > 0 {
		return fmt.Errorf("%d diagnostic check(s) failed", report.Summary.Errors)
	}

	return nil
}

func gatherEnvironmentInfo() map[string]string {
	env := map[string]string{
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
		"num_cpu":    fmt.Sprintf("%d", runtime.NumCPU()),
	}

	if wd, err := os.Getwd(); err == nil {
		env["working_dir"] = wd
	}

	return env
}

func checkConfiguration(report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Configuration",
		Category: "Config",
		Status:   "ok",
	}

	cfg, err := config.Load()
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Configuration has errors: %v", err)
		result.Suggestion = "Fix the reported field in .workpipe.yml or drop it to use the default"
		return result
	}

	result.Message = "Configuration is valid"
	result.Details = map[string]interface{}{
		"workers":        cfg.Pipeline.Workers,
		"queue_capacity": cfg.Pipeline.QueueCapacity,
		"unbounded":      cfg.Pipeline.Unbounded,
		"watch_paths":    cfg.Watch.Paths,
		"log_level":      cfg.Log.Level,
	}

	if _, statErr := os.Stat(".workpipe.yml"); os.IsNotExist(statErr) && cfgFile == "" && os.Getenv("WORKPIPE_CONFIG_FILE") == "" {
		result.Status = "info"
		result.Message = "No .workpipe.yml found; running on defaults"
		result.Suggestion = "Create .workpipe.yml to pin pool and watch settings"
	}

	return result
}

func checkWorkerPoolShape(report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Worker Pool",
		Category: "Pipeline",
		Status:   "ok",
	}

	cfg, err := config.Load()
	if err != nil {
		result.Status = "info"
		result.Message = "Skipped: configuration did not load"
		return result
	}

	cpus := runtime.NumCPU()
	result.Message = fmt.Sprintf("%d workers on %d CPUs", cfg.Pipeline.Workers, cpus)
	result.Details = map[string]interface{}{
		"workers": cfg.Pipeline.Workers,
		"cpus":    cpus,
	}

	if cfg.Pipeline.Workers > 4*cpus {
		result.Status = "warning"
		result.Message = fmt.Sprintf("%d workers is large for %d CPUs", cfg.Pipeline.Workers, cpus)
		result.Suggestion = "For CPU-bound workloads, pool sizes beyond the CPU count add scheduling overhead without throughput"
	}

	return result
}

func checkQueueShape(report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Task Queue",
		Category: "Pipeline",
		Status:   "ok",
	}

	cfg, err := config.Load()
	if err != nil {
		result.Status = "info"
		result.Message = "Skipped: configuration did not load"
		return result
	}

	switch {
	case cfg.Pipeline.Unbounded:
		result.Status = "warning"
		result.Message = "Task queue is unbounded"
		result.Suggestion = "An unbounded queue trades backpressure for memory; prefer a bounded queue when the task source can block"
	case cfg.Pipeline.QueueCapacity == 0:
		result.Status = "info"
		result.Message = "Task queue is a synchronous handoff (capacity 0)"
	default:
		result.Message = fmt.Sprintf("Task queue is bounded at %d", cfg.Pipeline.QueueCapacity)
	}

	return result
}

func checkWatchPaths(report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Watch Paths",
		Category: "Watch",
		Status:   "ok",
	}

	cfg, err := config.Load()
	if err != nil {
		result.Status = "info"
		result.Message = "Skipped: configuration did not load"
		return result
	}

	var missing []string
	for _, path := range cfg.Watch.Paths {
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Watch paths do not exist: %v", missing)
		result.Suggestion = "Fix watch.paths in .workpipe.yml or create the directories before running watch mode"
		return result
	}

	result.Message = fmt.Sprintf("All %d watch path(s) exist", len(cfg.Watch.Paths))
	return result
}

func checkGoRuntime(report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Go Runtime",
		Category: "Environment",
		Status:   "info",
	}

	procs := runtime.GOMAXPROCS(0)
	result.Message = fmt.Sprintf("GOMAXPROCS=%d, %s on %s/%s", procs, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	result.Details = map[string]interface{}{
		"gomaxprocs": procs,
		"num_cpu":    runtime.NumCPU(),
	}

	if procs < runtime.NumCPU() {
		result.Status = "warning"
		result.Message = fmt.Sprintf("GOMAXPROCS=%d is below the %d available CPUs", procs, runtime.NumCPU())
		result.Suggestion = "Workers share GOMAXPROCS threads; a lowered value serializes a CPU-bound pool"
	}

	return result
}

func displayResult(result DiagnosticResult) {
	var icon string
	switch result.Status {
	case "ok":
		icon = "✅"
	case "warning":
		icon = "⚠️"
	case "error":
		icon = "❌"
	case "info":
		icon = "ℹ️"
	default:
		icon = "•"
	}

	fmt.Printf("%s [%s] %s: %s\n", icon, strings.ToUpper(result.Category), result.Name, result.Message)

	if result.Suggestion != "" {
		fmt.Printf("   💡 %s\n", result.Suggestion)
	}

	if doctorVerbose && len(result.Details) > 0 {
		fmt.Printf("   📋 Details: %+v\n", result.Details)
	}

	fmt.Println()
}

func calculateSummary(results []DiagnosticResult) ReportSummary {
	summary := ReportSummary{
		Total: len(results),
	}

	for _, result := range results {
		switch result.Status {
		case "ok":
			summary.OK++
		case "warning":
			summary.Warnings++
		case "error":
			summary.Errors++
		case "info":
			summary.Info++
		}
	}

	return summary
}

func displaySummary(summary ReportSummary) {
	fmt.Printf("Total Checks: %d\n", summary.Total)
	fmt.Printf("✅ OK: %d\n", summary.OK)
	fmt.Printf("⚠️  Warnings: %d\n", summary.Warnings)
	fmt.Printf("❌ Errors: %d\n", summary.Errors)
	fmt.Printf("ℹ️  Info: %d\n", summary.Info)
}

func outputReport(report *DoctorReport, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		defer encoder.Close()
		return encoder.Encode(report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
