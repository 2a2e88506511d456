package cmd

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/handlers"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Clausify web server",
	Long: `Start the HTTP API used by the web app and the cron trigger.

Routes:
  POST /api/cron/monitoring         run one monitoring batch (Bearer CRON_SECRET)
  POST /api/monitored-processes     start monitoring a process
  GET  /api/monitored-processes     list monitored processes
  GET  /api/processes/:cnj          stored process with movements
  GET  /api/processes/search        taxpayer search in one court`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		// An explicit flag wins over PORT and the config file
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = port
		}

		requireDataJud(cfg)
		if err := cfg.RequireCronSecret(); err != nil {
			log.Printf("Warning: %v; the cron route will reject every call", err)
		}
		if cfg.Auth.JWTSecret == "" {
			log.Printf("Warning: no JWT secret configured, trusting the %s header", handlers.DevUserHeader)
		}

		db := openDB(cfg)
		defer db.Close()

		svc := newServices(cfg, db)

		app := handlers.NewApp(handlers.Dependencies{
			Monitor:       svc.monitor,
			Subscriptions: svc.registration,
			Lookup:        svc.lookup,
			Status:        svc.metrics,
			DB:            db,
			CronSecret:    cfg.Monitoring.CronSecret,
			JWTSecret:     cfg.Auth.JWTSecret,
		})

		log.Printf("Starting server on :%s", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to run the server on")
}
