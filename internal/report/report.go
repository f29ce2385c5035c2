// Package report renders ingestion summaries and dividend listings as
// markdown for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/depotsync/internal/model"
)

// Render turns markdown into styled terminal output. Without options the
// "notty" style is used so the output stays readable when piped.
func Render(markdown string, opts ...glamour.TermRendererOption) (string, error) {
	if len(opts) == 0 {
		opts = []glamour.TermRendererOption{glamour.WithStandardStyle("notty"), glamour.WithWordWrap(120)}
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

// RunMarkdown describes one ingestion run with a row per account.
func RunMarkdown(s model.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Ingestion run %s\n\n", s.RunID)
	fmt.Fprintf(&b, "Range **%s**, finished in %s.\n\n", s.Range, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))

	b.WriteString("| Account | Statements | Parsed | Inserted | Duplicate | Failed | Status |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---|\n")
	for _, a := range s.Accounts {
		status := "ok"
		if !a.OK() {
			status = a.Reason
		}
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d | %s |\n",
			a.Account, a.Fetched, a.Parsed, a.Inserted, a.Duplicate, a.Failed, status)
	}
	t := s.Totals()
	fmt.Fprintf(&b, "| **Total** | %d | %d | %d | %d | %d | |\n", t.Fetched, t.Parsed, t.Inserted, t.Duplicate, t.Failed)

	var errs []string
	for _, a := range s.Accounts {
		for _, e := range a.Errors {
			errs = append(errs, fmt.Sprintf("- `%s`: %s", a.Account, e))
		}
	}
	if len(errs) > 0 {
		b.WriteString("\n## Errors\n\n")
		b.WriteString(strings.Join(errs, "\n"))
		b.WriteString("\n")
	}

	if s.Failed() {
		b.WriteString("\n**All accounts failed.**\n")
	}
	return b.String()
}

// DividendsMarkdown lists dividend events followed by yearly totals.
func DividendsMarkdown(events []model.DividendEvent, totals []model.DividendTotal) string {
	var b strings.Builder

	b.WriteString("# Dividends\n\n")
	if len(events) == 0 {
		b.WriteString("No dividends recorded.\n")
		return b.String()
	}

	b.WriteString("| Date | Account | Asset | Shares | Gross | Tax | Net |\n")
	b.WriteString("|---|---|---|---:|---:|---:|---:|\n")
	for _, e := range events {
		shares := ""
		if e.Shares.Valid {
			shares = e.Shares.Decimal.String()
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			e.PaymentDate.Format(model.DateLayout), e.AccountRef, e.AssetIdentifier, shares,
			Amount(e.GrossAmount, e.Currency), Amount(e.TaxWithheld, e.Currency), Amount(e.NetAmount, e.Currency))
	}

	if len(totals) > 0 {
		b.WriteString("\n## Totals\n\n")
		b.WriteString("| Year | Payments | Gross | Tax | Net |\n")
		b.WriteString("|---|---:|---:|---:|---:|\n")
		for _, t := range totals {
			fmt.Fprintf(&b, "| %d | %d | %s | %s | %s |\n",
				t.Year, t.Count, Amount(t.Gross, t.Currency), Amount(t.Tax, t.Currency), Amount(t.Net, t.Currency))
		}
	}
	return b.String()
}

// Amount formats a decimal in its currency, e.g. "€10.49". Unknown
// currencies fall back to the plain number followed by the code.
func Amount(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}
