package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clausify/clausify/internal/config"
	"github.com/clausify/clausify/internal/model"
)

const (
	defaultTimeout = 30 * time.Second
	initialBackoff = 2 * time.Second
	searchPageSize = 20

	petitionerDocumentField = "poloAtivo.documento"
	respondentDocumentField = "poloPassivo.documento"
	filingDateField         = "dataAjuizamento"
)

var (
	// ErrProcessNotFound is returned when DataJud has no match for a case number
	ErrProcessNotFound = errors.New("process not found")
	// ErrCourtRequired is returned when a taxpayer search omits the target court
	ErrCourtRequired = errors.New("court alias is required for document search")
)

// UpstreamError reports a transport failure or non-2xx response from DataJud
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("datajud upstream error (HTTP %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("datajud upstream error: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// DataJudClient handles communication with the DataJud public API
type DataJudClient struct {
	client      *http.Client
	registry    *CourtRegistry
	apiKey      string
	maxAttempts int
	backoff     time.Duration
}

// NewDataJudClient creates a new DataJud API client
func NewDataJudClient(cfg config.DataJudConfig) *DataJudClient {
	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &DataJudClient{
		client: &http.Client{
			Timeout: timeout,
		},
		registry:    NewCourtRegistry(cfg.BaseURL, cfg.StrictCourtResolution),
		apiKey:      cfg.APIKey,
		maxAttempts: attempts,
		backoff:     initialBackoff,
	}
}

// searchResponse represents the API response for /_search
type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source processJSON `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// processJSON represents a process document in the API response
type processJSON struct {
	NumeroProcesso            string `json:"numeroProcesso"`
	Tribunal                  string `json:"tribunal"`
	Grau                      string `json:"grau"`
	DataAjuizamento           string `json:"dataAjuizamento"`
	DataHoraUltimaAtualizacao string `json:"dataHoraUltimaAtualizacao"`
	Classe                    struct {
		Codigo int    `json:"codigo"`
		Nome   string `json:"nome"`
	} `json:"classe"`
	Assuntos []struct {
		Codigo int    `json:"codigo"`
		Nome   string `json:"nome"`
	} `json:"assuntos"`
	OrgaoJulgador struct {
		Codigo int    `json:"codigo"`
		Nome   string `json:"nome"`
	} `json:"orgaoJulgador"`
	Movimentos []movementJSON `json:"movimentos"`
}

// movementJSON represents a movement inside a process document
type movementJSON struct {
	Codigo                int    `json:"codigo"`
	Nome                  string `json:"nome"`
	DataHora              string `json:"dataHora"`
	ComplementosTabelados []struct {
		Codigo    int    `json:"codigo"`
		Valor     int    `json:"valor"`
		Nome      string `json:"nome"`
		Descricao string `json:"descricao"`
	} `json:"complementosTabelados"`
}

// FetchProcess retrieves a single process by its CNJ number
func (c *DataJudClient) FetchProcess(ctx context.Context, number string) (*model.CourtProcess, error) {
	digits := NormalizeCNJ(number)

	url, court, err := c.registry.ResolveURL(digits)
	if err != nil {
		return nil, err
	}

	query := map[string]any{
		"query": map[string]any{
			"match": map[string]any{"numeroProcesso": digits},
		},
	}

	hits, err := c.search(ctx, url, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch process %s: %w", digits, err)
	}
	if len(hits) == 0 {
		return nil, ErrProcessNotFound
	}

	process := convertProcessJSON(hits[0], court.Alias)
	if process.Number == "" {
		process.Number = digits
	}

	return &process, nil
}

// SearchByDocument retrieves processes in one court where the taxpayer id is a party
func (c *DataJudClient) SearchByDocument(ctx context.Context, document, courtAlias string) ([]model.CourtProcess, error) {
	if strings.TrimSpace(courtAlias) == "" {
		return nil, ErrCourtRequired
	}
	court, ok := CourtByAlias(courtAlias)
	if !ok {
		return nil, fmt.Errorf("%w: unknown court %q", ErrUnresolvableCourt, courtAlias)
	}

	digits := NormalizeCNJ(document)
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"match": map[string]any{petitionerDocumentField: digits}},
					map[string]any{"match": map[string]any{respondentDocumentField: digits}},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []any{
			map[string]any{filingDateField: map[string]any{"order": "desc"}},
		},
		"size": searchPageSize,
	}

	hits, err := c.search(ctx, c.registry.SearchURL(court.Alias), query)
	if err != nil {
		return nil, fmt.Errorf("failed to search document in %s: %w", court.Alias, err)
	}

	processes := make([]model.CourtProcess, len(hits))
	for i, h := range hits {
		processes[i] = convertProcessJSON(h, court.Alias)
	}

	return processes, nil
}

// search posts a query and decodes the hit sources
func (c *DataJudClient) search(ctx context.Context, url string, query map[string]any) ([]processJSON, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	body, err := c.postWithRetry(ctx, url, payload)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to parse search response: %w", err)}
	}

	hits := make([]processJSON, len(resp.Hits.Hits))
	for i, h := range resp.Hits.Hits {
		hits[i] = h.Source
	}

	return hits, nil
}

// postWithRetry performs an HTTP POST, retrying transport errors, 429 and 5xx with exponential backoff
func (c *DataJudClient) postWithRetry(ctx context.Context, url string, payload []byte) ([]byte, error) {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "APIKey "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = &UpstreamError{Err: err}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()

		if err != nil {
			lastErr = &UpstreamError{StatusCode: resp.StatusCode, Err: err}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			lastErr = &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
		}

		return body, nil
	}

	if c.maxAttempts > 1 {
		return nil, fmt.Errorf("failed after %d attempts: %w", c.maxAttempts, lastErr)
	}
	return nil, lastErr
}

// convertProcessJSON normalizes an API document into the model
func convertProcessJSON(p processJSON, alias string) model.CourtProcess {
	process := model.CourtProcess{
		Number:      NormalizeCNJ(p.NumeroProcesso),
		CourtAlias:  alias,
		Tribunal:    p.Tribunal,
		ClassCode:   p.Classe.Codigo,
		ClassName:   p.Classe.Nome,
		JudgingBody: p.OrgaoJulgador.Nome,
		Grade:       p.Grau,
		FilingDate:  parseDataJudTime(p.DataAjuizamento),
		UpdatedAt:   parseDataJudTime(p.DataHoraUltimaAtualizacao),
		Movements:   make([]model.CourtMovement, len(p.Movimentos)),
	}

	if len(p.Assuntos) > 0 {
		process.Subject = p.Assuntos[0].Nome
	}

	for i, m := range p.Movimentos {
		process.Movements[i] = model.CourtMovement{
			Code:        m.Codigo,
			Description: m.Nome,
			DateRaw:     m.DataHora,
			Date:        parseDataJudTime(m.DataHora),
			Details:     movementDetails(m),
		}
	}

	return process
}

// movementDetails concatenates the tabulated complements of a movement
func movementDetails(m movementJSON) string {
	parts := make([]string, 0, len(m.ComplementosTabelados))
	for _, c := range m.ComplementosTabelados {
		text := c.Nome
		if text == "" {
			text = c.Descricao
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, ", ")
}

// dataJudLayouts lists the timestamp formats seen in DataJud documents
var dataJudLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"20060102150405",
	"2006-01-02",
}

// parseDataJudTime parses an upstream timestamp as UTC, returning the zero time when unparseable
func parseDataJudTime(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range dataJudLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
