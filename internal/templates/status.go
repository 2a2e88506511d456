package templates

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// StatusMetrics holds the figures rendered on the status page
type StatusMetrics struct {
	HasData            bool
	TotalProcesses     int
	TotalMovements     int
	MonitoredActive    int
	MonitoredSuspended int
	MonitoredFailing   int
	DueNow             int
	LastRunAt          string
	LastUpdated        string
	LastFailed         string
}

type statCard struct {
	label string
	value string
	alert bool
}

// Status renders the monitoring status page
func Status(m StatusMetrics) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, pageHeader); err != nil {
			return err
		}

		if !m.HasData {
			if _, err := io.WriteString(w, `<p class="empty">Nenhum processo cadastrado ainda.</p>`); err != nil {
				return err
			}
		} else {
			cards := []statCard{
				{label: "Processos", value: fmt.Sprint(m.TotalProcesses)},
				{label: "Movimentações", value: fmt.Sprint(m.TotalMovements)},
				{label: "Monitoramentos ativos", value: fmt.Sprint(m.MonitoredActive)},
				{label: "Suspensos", value: fmt.Sprint(m.MonitoredSuspended)},
				{label: "Com falha", value: fmt.Sprint(m.MonitoredFailing), alert: m.MonitoredFailing > 0},
				{label: "Aguardando verificação", value: fmt.Sprint(m.DueNow)},
			}
			if err := renderCards(w, cards); err != nil {
				return err
			}
		}

		if err := renderLastRun(w, m); err != nil {
			return err
		}

		_, err := io.WriteString(w, pageFooter)
		return err
	})
}

func renderCards(w io.Writer, cards []statCard) error {
	if _, err := io.WriteString(w, `<section class="cards">`); err != nil {
		return err
	}
	for _, c := range cards {
		class := "card"
		if c.alert {
			class += " alert"
		}
		_, err := fmt.Fprintf(w, `<div class="%s"><span class="value">%s</span><span class="label">%s</span></div>`,
			class, templ.EscapeString(c.value), templ.EscapeString(c.label))
		if err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, `</section>`)
	return err
}

func renderLastRun(w io.Writer, m StatusMetrics) error {
	if m.LastRunAt == "" {
		_, err := io.WriteString(w, `<p class="last-run">Nenhuma execução de monitoramento registrada.</p>`)
		return err
	}

	_, err := fmt.Fprintf(w, `<p class="last-run">Última execução: %s &middot; %s atualizado(s) &middot; %s falha(s)</p>`,
		templ.EscapeString(m.LastRunAt),
		templ.EscapeString(orZero(m.LastUpdated)),
		templ.EscapeString(orZero(m.LastFailed)))
	return err
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

const pageHeader = `<!DOCTYPE html>
<html lang="pt-BR">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Clausify - Monitoramento</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 960px; color: #1f2937; }
.cards { display: grid; grid-template-columns: repeat(3, 1fr); gap: 1rem; }
.card { background: #f3f4f6; border-radius: 8px; padding: 1rem; display: flex; flex-direction: column; }
.card.alert { background: #fee2e2; }
.value { font-size: 1.8rem; font-weight: 700; }
.label { color: #6b7280; }
.last-run, .empty { margin-top: 1.5rem; color: #4b5563; }
</style>
</head>
<body>
<h1>Clausify</h1>
<p>Monitoramento de processos judiciais via DataJud</p>
`

const pageFooter = `</body>
</html>
`
