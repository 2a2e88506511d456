package cmd

import (
	"errors"
	"fmt"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/service"
)

var lookupLimit int

var lookupCmd = &cobra.Command{
	Use:   "lookup <cnj-number>",
	Short: "Fetch a process from DataJud and store it",
	Long: `Lookup fetches one process by its CNJ number, stores it with its movements
and prints the newest movements. It does not start monitoring.

Examples:
  ./clausify lookup 0001234-56.2023.8.26.0100
  ./clausify lookup 00012345620238260100 --limit 20`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		requireDataJud(cfg)

		number := service.NormalizeCNJ(args[0])
		if !service.IsValidCNJ(number) {
			log.Fatal(service.MsgInvalidNumber)
		}

		ctx, cancel := signalContext()
		defer cancel()

		db := openDB(cfg)
		defer db.Close()

		svc := newServices(cfg, db)

		view, err := svc.lookup.ByNumber(ctx, number)
		if err != nil {
			if errors.Is(err, service.ErrProcessNotFound) {
				log.Fatal(service.MsgProcessNotFound)
			}
			log.Fatalf("Lookup failed: %v", err)
		}

		p := view.Process
		fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("Processo"), service.FormatCNJ(p.CNJNumber))
		fmt.Printf("  Tribunal:  %s\n", p.CourtAlias)
		fmt.Printf("  Classe:    %s\n", p.ClassName)
		fmt.Printf("  Assunto:   %s\n", p.Subject)
		fmt.Printf("  Órgão:     %s\n", p.JudgingBody)
		fmt.Printf("  Movimentos armazenados: %d\n\n", len(view.Movements))

		for i, m := range view.Movements {
			if lookupLimit > 0 && i >= lookupLimit {
				break
			}
			date := color.New(color.FgCyan).Sprint(m.MovementDate.Format("2006-01-02 15:04"))
			line := m.Description
			if m.Details != "" {
				line += " (" + m.Details + ")"
			}
			fmt.Printf("  %s  %s\n", date, line)
		}
	},
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().IntVarP(&lookupLimit, "limit", "n", 10, "Number of movements to print (0 for all)")
}
