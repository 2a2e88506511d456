package cmd

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/service"
	"github.com/clausify/clausify/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "clausify",
	Short: "Monitor Brazilian judicial processes through the DataJud API",
	Long: `Clausify tracks judicial processes published by the CNJ DataJud API.

Users register CNJ case numbers to monitor; a periodic job refreshes each
due process, stores new movements and schedules the next check.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Println("\nReceived interrupt signal, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// openDB connects to the configured database or exits
func openDB(cfg config.Config) *sql.DB {
	log.Println("Connecting to database...")
	db, err := store.NewDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

// requireDataJud exits when the DataJud API key is missing
func requireDataJud(cfg config.Config) {
	if err := cfg.RequireDataJud(); err != nil {
		log.Fatal(err)
	}
}

// services groups the application services built over one database
type services struct {
	metrics      *service.MetricsService
	monitor      *service.Monitor
	registration *service.Registration
	lookup       *service.Lookup
}

func newServices(cfg config.Config, db *sql.DB) *services {
	client := service.NewDataJudClient(cfg.DataJud)
	processes := service.NewProcessService(store.NewProcessStore(db))
	monitorStore := store.NewMonitorStore(db)
	metrics := service.NewMetricsService(db)

	return &services{
		metrics:      metrics,
		monitor:      service.NewMonitor(client, processes, monitorStore, metrics, service.MonitorOptionsFromConfig(cfg.Monitoring)),
		registration: service.NewRegistration(client, processes, monitorStore),
		lookup:       service.NewLookup(client, processes),
	}
}
