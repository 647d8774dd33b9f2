package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/equindex/internal/brain"
	"github.com/wonny/equindex/internal/refdata"
	"github.com/wonny/equindex/internal/s0_data"
	"github.com/wonny/equindex/internal/scheduler"
	"github.com/wonny/equindex/internal/scheduler/jobs"
	"github.com/wonny/equindex/pkg/httputil"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage the job scheduler",
	Long: `Starts the scheduler or inspects its jobs.

Subcommands:
  start   - Start the scheduler daemon
  list    - List registered jobs
  run     - Run one job now and wait for it
  status  - Show job statistics

Example:
  go run ./cmd/equindex scheduler start
  go run ./cmd/equindex scheduler list
  go run ./cmd/equindex scheduler run index_generation`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and schedules every registered job.

Registered jobs:
- price_update: PRICES_SCHEDULE (default weekdays 18:00), unless PRICES_UPDATE_ENABLED=false
- index_generation: INDEX_SCHEDULE (default weekdays 18:30)
- refdata_sync: Sundays 06:00, only when REFDATA_SOURCE_URLS is set

Metrics are served on METRICS_PORT when METRICS_ENABLED is set.
Stop the scheduler with Ctrl+C.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job statistics",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== equindex Scheduler ===")

	rt, err := setup(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	var metricsServer *http.Server
	if rt.metrics != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", rt.metrics.Handler())
		metricsServer = &http.Server{
			Addr:              ":" + rt.cfg.MetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	printJobs(sched)
	if metricsServer != nil {
		fmt.Printf("\nMetrics: http://localhost:%s/metrics\n", rt.cfg.MetricsPort)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Println("Registered jobs:")
	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := sched.RunJobSync(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	fmt.Println()
	PrintKeyValue("Attempts", fmt.Sprint(result.Attempts), 9)
	PrintKeyValue("Duration", result.Duration.Round(time.Millisecond).String(), 9)
	if !result.Success {
		PrintError(fmt.Sprintf("Job %s failed: %s", jobName, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("Job %s completed", jobName))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	rt, err := setup(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	stats := sched.GetJobStats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		fmt.Printf("   Total Runs: %d\n", stat.TotalRuns)
		fmt.Printf("   Success: %d (%.1f%%)\n", stat.SuccessCount, stat.SuccessRate*100)
		fmt.Printf("   Failures: %d\n", stat.FailureCount)

		if stat.LastRun != nil {
			fmt.Printf("   Last Run: %s\n", stat.LastRun.Format("2006-01-02 15:04:05"))
		}
		if stat.NextRun != nil {
			fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05"))
		}

		fmt.Println()
	}

	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	for _, jobName := range sched.GetAllJobs() {
		next, err := sched.NextRun(jobName)
		if err != nil || next.IsZero() {
			fmt.Printf("  - %s\n", jobName)
			continue
		}
		fmt.Printf("  - %s (next: %s)\n", jobName, next.Format("2006-01-02 15:04:05"))
	}
}

// initScheduler registers price update and index generation, plus the reference sync when sources are configured
func initScheduler(rt *app) (*scheduler.Scheduler, error) {
	orchestrator := brain.NewFromPool(rt.db.Pool, rt.cfg.Index, rt.metrics, rt.log)
	stocks := s0_data.NewStockRepository(rt.db.Pool, rt.cfg.Index.BatchSize)

	sched := scheduler.New(rt.log, scheduler.DefaultOptions)

	var client *httputil.Client
	if rt.cfg.Prices.Enabled || len(rt.cfg.RefData.SourceURLs) > 0 {
		client = httputil.New(rt.cfg, rt.log)
	}

	if rt.cfg.Prices.Enabled {
		if err := sched.AddJob(jobs.NewPriceUpdateJob(newCollector(rt, client, stocks), rt.cfg.Prices.Schedule, rt.log)); err != nil {
			return nil, err
		}
	}

	if err := sched.AddJob(jobs.NewIndexGenerationJob(orchestrator, rt.cfg.Index.Schedule, rt.log)); err != nil {
		return nil, err
	}

	if len(rt.cfg.RefData.SourceURLs) > 0 {
		syncer := refdata.NewSyncer(refdata.NewSources(rt.cfg, client, ""), stocks, rt.metrics, rt.log)
		if err := sched.AddJob(jobs.NewRefDataSyncJob(syncer, rt.log)); err != nil {
			return nil, err
		}
	}

	return sched, nil
}
