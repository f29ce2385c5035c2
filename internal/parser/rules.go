package parser

import (
	"regexp"
	"strings"
)

// Kind is the transaction category a remittance line belongs to.
type Kind string

const (
	KindUnknown  Kind = "unknown"
	KindReversal Kind = "reversal"
	KindDividend Kind = "dividend"
	KindSale     Kind = "sale"
	KindPurchase Kind = "purchase"
	KindInterest Kind = "interest"
	KindFee      Kind = "fee"
)

// Rule maps a transaction-type marker to a kind. Rules are tried in order
// and the first match wins.
type Rule struct {
	Kind   Kind
	Marker *regexp.Regexp
}

// DefaultRules is the marker table for comdirect remittance texts.
// Reversals come first so a cancelled dividend is never read as income.
var DefaultRules = []Rule{
	{Kind: KindReversal, Marker: regexp.MustCompile(`\bSTORNO\b`)},
	{Kind: KindDividend, Marker: regexp.MustCompile(`ERTR(?:AE|Ä)GNISGUTSCHRIFT|ERTRAGSGUTSCHRIFT|DIVIDENDENGUTSCHRIFT|ZINS/DIVIDENDE|\bDIVIDENDE\b|\bAUSSCHUETTUNG\b`)},
	{Kind: KindSale, Marker: regexp.MustCompile(`WERTPAPIERVERKAUF|\bVERKAUF\b`)},
	{Kind: KindPurchase, Marker: regexp.MustCompile(`WERTPAPIERKAUF|\bKAUF\b|SPARPLAN`)},
	{Kind: KindInterest, Marker: regexp.MustCompile(`ZINSGUTSCHRIFT|HABENZINSEN|\bZINSEN\b`)},
	{Kind: KindFee, Marker: regexp.MustCompile(`GEBUEHR|GEBÜHR|ENTGELT`)},
}

// segmentPrefix matches a numbered segment marker glued to the word it opens.
var segmentPrefix = regexp.MustCompile(`(^|\s)[0-9]{2}([A-ZÄÖÜ])`)

// Classify returns the kind of the first rule whose marker occurs in text.
// Segment numbers ("01STORNO") are stripped before matching.
func Classify(rules []Rule, text string) Kind {
	upper := segmentPrefix.ReplaceAllString(strings.ToUpper(text), "${1}${2}")
	for _, r := range rules {
		if r.Marker.MatchString(upper) {
			return r.Kind
		}
	}
	return KindUnknown
}

// Field extractors for dividend lines. Each works on a single segment.
var (
	isinPattern     = regexp.MustCompile(`\b([A-Z]{2}[A-Z0-9]{9}[0-9])\b`)
	wknPattern      = regexp.MustCompile(`(?:\bWKN:?\s*|/\s*|^)([A-Z0-9]{6})\b`)
	sharesPattern   = regexp.MustCompile(`(?:DEPOTBESTAND|\bSTK\.?|\bSTUECK):?\s*([0-9][0-9.,]*)`)
	grossPattern    = regexp.MustCompile(`BRUTTO(?:BETRAG)?:?\s*(?:([A-Z]{3})\s*)?([0-9][0-9.,]*)(?:\s*([A-Z]{3})\b)?`)
	taxPattern      = regexp.MustCompile(`\b(?:KAPST|KAPITALERTRAGSTEUER|SOLI|SOLZ|SOLIDARITAETSZUSCHLAG|KIST|KIRCHENSTEUER|QUELLENST(?:EUER)?)\.?:?\s*(?:[A-Z]{3}\s*)?([0-9][0-9.,]*)`)
	perSharePattern = regexp.MustCompile(`(?:^|\s)([A-Z]{3})\s*([0-9][0-9.,]*)(?:\s+(?:PRO|JE)\s+(?:STK|STUECK|ANTEIL))?`)
)

// isinValid verifies the ISIN check digit.
func isinValid(isin string) bool {
	if len(isin) != 12 {
		return false
	}
	var digits strings.Builder
	for _, r := range isin[:11] {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			digits.WriteString(itoa(int(r-'A') + 10))
		default:
			return false
		}
	}

	s := digits.String()
	sum := 0
	double := true
	for i := len(s) - 1; i >= 0; i-- {
		d := int(s[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	check := (10 - sum%10) % 10
	return int(isin[11]-'0') == check
}

func itoa(n int) string {
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
