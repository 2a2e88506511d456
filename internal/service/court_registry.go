package service

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

const (
	cnjLength     = 20
	segmentOffset = 13
	courtOffset   = 14

	// DefaultCourtAlias is used when a case number cannot be mapped to a court
	DefaultCourtAlias = "tjsp"
)

// ErrUnresolvableCourt is returned when a case number does not map to a known court
var ErrUnresolvableCourt = errors.New("court could not be resolved from case number")

// Court identifies a tribunal on the DataJud public API
type Court struct {
	Alias string
	Name  string
}

// stateCodes lists the two-digit TR codes used by state and electoral courts, in CNJ order
var stateCodes = []string{
	"ac", "al", "ap", "am", "ba", "ce", "dft", "es", "go", "ma", "mt", "ms", "mg", "pa",
	"pb", "pr", "pe", "pi", "rj", "rn", "rs", "ro", "rr", "sc", "se", "sp", "to",
}

// courtTable maps "J.TR" (justice segment and court code) to a court
var courtTable = buildCourtTable()

func buildCourtTable() map[string]Court {
	table := map[string]Court{
		"3.00": {Alias: "stj", Name: "Superior Tribunal de Justiça"},
		"5.00": {Alias: "tst", Name: "Tribunal Superior do Trabalho"},
		"6.00": {Alias: "tse", Name: "Tribunal Superior Eleitoral"},
		"7.00": {Alias: "stm", Name: "Superior Tribunal Militar"},
		"9.13": {Alias: "tjmmg", Name: "Tribunal de Justiça Militar de Minas Gerais"},
		"9.21": {Alias: "tjmrs", Name: "Tribunal de Justiça Militar do Rio Grande do Sul"},
		"9.26": {Alias: "tjmsp", Name: "Tribunal de Justiça Militar de São Paulo"},
	}

	for n := 1; n <= 6; n++ {
		table[fmt.Sprintf("4.%02d", n)] = Court{
			Alias: fmt.Sprintf("trf%d", n),
			Name:  fmt.Sprintf("Tribunal Regional Federal da %dª Região", n),
		}
	}

	for n := 1; n <= 24; n++ {
		table[fmt.Sprintf("5.%02d", n)] = Court{
			Alias: fmt.Sprintf("trt%d", n),
			Name:  fmt.Sprintf("Tribunal Regional do Trabalho da %dª Região", n),
		}
	}

	for i, uf := range stateCodes {
		code := fmt.Sprintf("%02d", i+1)
		table["8."+code] = Court{
			Alias: "tj" + uf,
			Name:  "Tribunal de Justiça " + strings.ToUpper(uf),
		}
		table["6."+code] = Court{
			Alias: "tre-" + uf,
			Name:  "Tribunal Regional Eleitoral " + strings.ToUpper(uf),
		}
	}

	return table
}

// NormalizeCNJ strips everything but digits from a case number
func NormalizeCNJ(number string) string {
	var b strings.Builder
	b.Grow(len(number))
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsValidCNJ reports whether a normalized number has the full 20 digits
func IsValidCNJ(number string) bool {
	return len(number) == cnjLength && NormalizeCNJ(number) == number
}

// FormatCNJ renders a 20-digit number as NNNNNNN-DD.AAAA.J.TR.OOOO.
// Anything else is returned unchanged.
func FormatCNJ(number string) string {
	if !IsValidCNJ(number) {
		return number
	}
	return fmt.Sprintf("%s-%s.%s.%s.%s.%s",
		number[0:7], number[7:9], number[9:13], number[13:14], number[14:16], number[16:20])
}

// ResolveCourt maps a case number to its court, failing on malformed numbers or unknown codes
func ResolveCourt(number string) (Court, error) {
	digits := NormalizeCNJ(number)
	if len(digits) < cnjLength {
		return Court{}, fmt.Errorf("%w: expected %d digits, got %d", ErrUnresolvableCourt, cnjLength, len(digits))
	}

	key := digits[segmentOffset:segmentOffset+1] + "." + digits[courtOffset:courtOffset+2]
	court, ok := courtTable[key]
	if !ok {
		return Court{}, fmt.Errorf("%w: unknown segment/court %s", ErrUnresolvableCourt, key)
	}

	return court, nil
}

// CourtByAlias looks up a court by its DataJud alias
func CourtByAlias(alias string) (Court, bool) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	for _, c := range courtTable {
		if c.Alias == alias {
			return c, true
		}
	}
	return Court{}, false
}

// CourtRegistry resolves case numbers to DataJud search endpoints
type CourtRegistry struct {
	baseURL string
	strict  bool
	logger  *log.Logger
}

// NewCourtRegistry creates a registry for the given API base URL. In strict
// mode unresolvable numbers are reported instead of falling back to the default court.
func NewCourtRegistry(baseURL string, strict bool) *CourtRegistry {
	return &CourtRegistry{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		strict:  strict,
		logger:  log.New(os.Stdout, "", log.LstdFlags),
	}
}

// Resolve returns the court for a number, falling back to the default court
// unless the registry is strict.
func (r *CourtRegistry) Resolve(number string) (Court, error) {
	court, err := ResolveCourt(number)
	if err == nil {
		return court, nil
	}
	if r.strict {
		return Court{}, err
	}

	r.logger.Printf("Court fallback to %s for %q: %v", DefaultCourtAlias, number, err)
	fallback, _ := CourtByAlias(DefaultCourtAlias)
	return fallback, nil
}

// SearchURL returns the _search endpoint for a court alias
func (r *CourtRegistry) SearchURL(alias string) string {
	return fmt.Sprintf("%s/api_publica_%s/_search", r.baseURL, alias)
}

// ResolveURL resolves a case number straight to its search endpoint
func (r *CourtRegistry) ResolveURL(number string) (string, Court, error) {
	court, err := r.Resolve(number)
	if err != nil {
		return "", Court{}, err
	}
	return r.SearchURL(court.Alias), court, nil
}
