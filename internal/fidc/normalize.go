package fidc

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mesacredito/fidc-cli/internal/schema"
)

var nonNumeric = regexp.MustCompile(`[^0-9.\-]`)

// ParseNumber coerces an extracted value to a float. Numbers pass through.
// Strings are read in Brazilian format: currency and percent signs are
// dropped, "." is a thousands separator and "," the decimal mark. Empty,
// unparseable and non-finite input yields nil.
func ParseNumber(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case nil, bool:
		return nil
	case schema.Scalar:
		return ParseNumber(x.Value())
	case *schema.Scalar:
		if x == nil {
			return nil
		}
		return ParseNumber(x.Value())
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		return parseBRNumber(x)
	default:
		parsed, err := cast.ToFloat64E(v)
		if err != nil {
			return nil
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseBRNumber(s string) *float64 {
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.ReplaceAll(s, "%", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	s = nonNumeric.ReplaceAllString(s, "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

var monthTable = map[string]int{
	"jan": 1, "janeiro": 1, "january": 1,
	"fev": 2, "fevereiro": 2, "feb": 2, "february": 2,
	"mar": 3, "marco": 3, "march": 3,
	"abr": 4, "abril": 4, "apr": 4, "april": 4,
	"mai": 5, "maio": 5, "may": 5,
	"jun": 6, "junho": 6, "june": 6,
	"jul": 7, "julho": 7, "july": 7,
	"ago": 8, "agosto": 8, "aug": 8, "august": 8,
	"set": 9, "setembro": 9, "sep": 9, "sept": 9, "september": 9,
	"out": 10, "outubro": 10, "oct": 10, "october": 10,
	"nov": 11, "novembro": 11, "november": 11,
	"dez": 12, "dezembro": 12, "dec": 12, "december": 12,
}

// MonthNumber maps a month token (number, Portuguese or English name or
// abbreviation, any case or accents) to 1..12.
func MonthNumber(token string) (int, bool) {
	t := strings.ToLower(foldAccents(strings.TrimSpace(token)))
	t = strings.TrimSuffix(t, ".")
	if t == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(t); err == nil {
		if n >= 1 && n <= 12 {
			return n, true
		}
		return 0, false
	}
	n, ok := monthTable[t]
	return n, ok
}

// NormalizeMonth returns the two-digit month for a recognised token.
// Unrecognised tokens come back unchanged.
func NormalizeMonth(token string) string {
	if n, ok := MonthNumber(token); ok {
		return fmt.Sprintf("%02d", n)
	}
	return token
}

// foldAccents strips diacritics ("março" -> "marco"). A chain is stateful,
// so each call builds its own.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// lowerName is the default indicator-name normalisation: lower-case with
// spaces replaced by underscores.
func lowerName(s string) string {
	return strings.ToLower(keepName(s))
}

// keepName replaces spaces with underscores and keeps the original casing.
func keepName(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "_")
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// slugName lower-cases, folds accents and collapses every run of
// non-alphanumerics into one underscore ("Até 30 dias" -> "ate_30_dias").
func slugName(s string) string {
	s = strings.ToLower(foldAccents(strings.TrimSpace(s)))
	return strings.Trim(nonAlnum.ReplaceAllString(s, "_"), "_")
}
