package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang-redflag-service/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldText lowercases and strips diacritics so "Crédito" matches "credito".
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// tokens splits folded text on anything that is not a letter or digit.
func tokens(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func hasToken(toks []string, want ...string) bool {
	for _, t := range toks {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}

var nonDigit = regexp.MustCompile(`\D`)

// NormalizeDocument strips every non-digit character.
func NormalizeDocument(raw string) string {
	return nonDigit.ReplaceAllString(raw, "")
}

var (
	currencyMarkers = strings.NewReplacer("R$", "", "US$", "", "BRL", "", "brl", "", "$", "")
	exponentAmount  = regexp.MustCompile(`^\d+(\.\d+)?[eE][+-]?\d+$`)
)

// ParseAmount converts a loosely formatted money string into an exact decimal
// at the canonical scale. negative reports a leading/trailing minus sign or
// accounting parentheses; the returned amount is always the absolute value.
//
// Currency markers and spaces are removed; any other character besides
// digits and separators is an error. Exponent forms such as "1.5E+3" are
// read as plain decimals.
//
// "." is read as a thousands separator and "," as the decimal separator only
// when both appear and the comma comes last. A lone comma followed by one or
// two digits is a decimal comma; any other commas are grouping.
func ParseAmount(raw string) (amount decimal.Decimal, negative bool, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false, fmt.Errorf("amount is empty")
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = currencyMarkers.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		if r == '−' {
			return '-'
		}
		return r
	}, s)

	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	if exponentAmount.MatchString(s) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false, fmt.Errorf("invalid amount %q: %w", raw, err)
		}
		return d.Abs().RoundBank(models.AmountScale), negative, nil
	}

	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return decimal.Zero, false, fmt.Errorf("amount %q has unexpected character %q", raw, r)
		}
	}
	if strings.Trim(s, ".,") == "" {
		return decimal.Zero, false, fmt.Errorf("amount %q has no digits", raw)
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 && len(s)-lastComma-1 > 0 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	return d.Abs().RoundBank(models.AmountScale), negative, nil
}

// NormalizeAmount renders raw at two fractional digits, "0.00" when it
// cannot be parsed. Re-normalizing the output is the identity.
func NormalizeAmount(raw string) string {
	d, _, err := ParseAmount(raw)
	if err != nil {
		return models.FormatAmount(decimal.Zero)
	}
	return models.FormatAmount(d)
}

var primaryDateLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-01-2006 15:04:05",
	"02-01-2006 15:04",
	"02-01-2006",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
	"2-1-2006 15:04:05",
	"2-1-2006 15:04",
	"2-1-2006",
}

var fallbackDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"02/01/06",
	"02.01.2006",
	"20060102",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

// spreadsheetEpoch is day zero of spreadsheet serial dates.
var spreadsheetEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate reads DD/MM/YYYY, YYYY-MM-DD and DD-MM-YYYY (optionally with a
// time of day) and then a set of generic layouts. Timestamps without an
// explicit zone are read in loc. The result is always UTC.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range primaryDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range fallbackDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}

	// Spreadsheet exports carry dates as serial day numbers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial >= 1 && serial < 100000 {
		days := int(serial)
		frac := serial - float64(days)
		t := spreadsheetEpoch.AddDate(0, 0, days).Add(time.Duration(frac * float64(24*time.Hour)).Round(time.Second))
		local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
		return local.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ParseMethod maps free text onto a payment method. ok is false when nothing
// in the vocabulary matched.
func ParseMethod(raw string) (method models.PaymentMethod, ok bool) {
	folded := foldText(raw)
	if folded == "" {
		return models.MethodOther, false
	}

	for _, m := range models.PaymentMethods {
		if folded == strings.ToLower(string(m)) {
			return m, true
		}
	}

	toks := tokens(folded)
	switch {
	case strings.Contains(folded, "pix"):
		return models.MethodPIX, true
	case hasToken(toks, "ted", "wire", "tef") || strings.Contains(folded, "transf"):
		return models.MethodWireImmediate, true
	case hasToken(toks, "doc"):
		return models.MethodWireBatch, true
	case hasToken(toks, "dinheiro", "especie", "cash", "saque", "numerario"):
		return models.MethodCash, true
	case hasToken(toks, "cartao", "card", "visa", "mastercard", "elo", "pos"):
		return models.MethodCard, true
	case hasToken(toks, "boleto", "bill", "titulo", "convenio", "fatura"):
		return models.MethodBill, true
	}
	return models.MethodOther, false
}

// ParseType maps a type/direction field onto credit or debit. Short codes
// such as "C", "D", "CR" and "DR" are accepted here. ok is false when nothing
// in the vocabulary matched.
func ParseType(raw string) (txType models.TransactionType, ok bool) {
	folded := foldText(raw)
	if folded == "" {
		return models.TransactionTypeDebit, false
	}

	// Short codes only count when they are the whole field.
	if toks := tokens(folded); len(toks) == 1 {
		switch {
		case hasToken(toks, "c", "cr", "cred", "in"):
			return models.TransactionTypeCredit, true
		case hasToken(toks, "d", "dr", "deb", "out"):
			return models.TransactionTypeDebit, true
		}
	}
	return typeFromText(folded)
}

// typeFromText infers direction from descriptive text using keywords only.
func typeFromText(raw string) (models.TransactionType, bool) {
	folded := foldText(raw)
	switch {
	case folded == "":
		return models.TransactionTypeDebit, false
	case strings.Contains(folded, "credit"), strings.Contains(folded, "entrada"),
		strings.Contains(folded, "receb"), strings.Contains(folded, "deposito"):
		return models.TransactionTypeCredit, true
	case strings.Contains(folded, "debit"), strings.Contains(folded, "saida"),
		strings.Contains(folded, "pagamento"), strings.Contains(folded, "enviad"),
		strings.Contains(folded, "saque"), strings.Contains(folded, "transferencia para"):
		return models.TransactionTypeDebit, true
	}
	return models.TransactionTypeDebit, false
}
