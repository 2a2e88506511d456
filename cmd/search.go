package cmd

import (
	"fmt"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/service"
)

var searchDocument string
var searchCourt string

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search a court for processes involving a CPF or CNPJ",
	Long: `Search queries one court's DataJud index for processes where the document
appears on either side. Results are printed, not stored.

Examples:
  ./clausify search --document 12345678000190 --court tjsp`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		requireDataJud(cfg)

		ctx, cancel := signalContext()
		defer cancel()

		client := service.NewDataJudClient(cfg.DataJud)
		processes, err := client.SearchByDocument(ctx, searchDocument, searchCourt)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}

		if len(processes) == 0 {
			fmt.Println(color.New(color.FgYellow).Sprint("Nenhum processo encontrado."))
			return
		}

		fmt.Printf("%s processo(s) em %s\n\n", color.New(color.Bold).Sprint(len(processes)), searchCourt)
		for _, p := range processes {
			filed := "-"
			if !p.FilingDate.IsZero() {
				filed = p.FilingDate.Format("2006-01-02")
			}
			fmt.Printf("  %s  %s  %s\n", color.New(color.FgCyan).Sprint(service.FormatCNJ(p.Number)), filed, p.ClassName)
		}
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchDocument, "document", "d", "", "CPF or CNPJ to search for")
	searchCmd.Flags().StringVarP(&searchCourt, "court", "c", "", "Court alias to search (for example tjsp, trf3)")
	searchCmd.MarkFlagRequired("document")
	searchCmd.MarkFlagRequired("court")
}
