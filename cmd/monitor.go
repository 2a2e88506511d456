package cmd

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/service"
)

var monitorBatchSize int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one monitoring batch against DataJud",
	Long: `Monitor claims the monitored processes whose next check is due, fetches
each one from DataJud, stores new movements and schedules the next check.

A failed check leaves the process due and backs it off; after too many
consecutive failures the process moves to the failing state.

Examples:
  # Run one batch with the configured size
  ./clausify monitor

  # Run a larger batch
  ./clausify monitor --batch-size 50`,
	Run: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVarP(&monitorBatchSize, "batch-size", "b", 0, "Maximum processes to check (default from config)")
}

func runMonitor(cmd *cobra.Command, args []string) {
	cfg := config.Load()
	if monitorBatchSize > 0 {
		cfg.Monitoring.BatchSize = monitorBatchSize
	}
	requireDataJud(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	db := openDB(cfg)
	defer db.Close()

	svc := newServices(cfg, db)

	log.Printf("Starting monitoring batch (up to %d processes)", cfg.Monitoring.BatchSize)
	stats, err := svc.monitor.RunBatch(ctx)
	if stats != nil {
		if recErr := svc.metrics.RecordRun(context.WithoutCancel(ctx), stats, time.Now().UTC()); recErr != nil {
			log.Printf("Warning: Failed to record run: %v", recErr)
		}
	}
	if err != nil {
		if service.IsCancelled(err) {
			log.Println("Monitoring cancelled")
			svc.monitor.PrintSummary(stats)
			os.Exit(1)
		}
		log.Fatalf("Monitoring failed: %v", err)
	}
	svc.monitor.PrintSummary(stats)

	// Calculate and store system metrics
	log.Println("\nCalculating system metrics...")
	systemMetrics, err := svc.metrics.CalculateAndStore(ctx)
	if err != nil {
		log.Printf("Warning: Failed to calculate metrics: %v", err)
	} else {
		log.Println("")
		log.Println("=== System Metrics ===")
		log.Printf("Processes:        %d", systemMetrics.TotalProcesses)
		log.Printf("Movements:        %d", systemMetrics.TotalMovements)
		log.Printf("Active monitors:  %d", systemMetrics.MonitoredActive)
		log.Printf("Suspended:        %d", systemMetrics.MonitoredSuspended)
		log.Printf("Failing:          %d", systemMetrics.MonitoredFailing)
		log.Printf("Due now:          %d", systemMetrics.DueNow)
	}

	// Exit with error code if there were failures
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
