package report

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/depotsync/internal/model"
)

func TestAmount(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"USD with thousands", "1234.5", "USD", "$1,234.50"},
		{"rounds to currency fraction", "0.125", "USD", "$0.13"},
		{"unknown currency", "10.49", "XXZ", "10.49 XXZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Amount(decimal.RequireFromString(tt.amount), tt.currency)
			if got != tt.want {
				t.Errorf("Amount() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunMarkdown(t *testing.T) {
	start := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	summary := model.RunSummary{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Range:      model.NewDateRange(date(2026, 1, 1), date(2026, 2, 28)),
		Accounts: []model.AccountSummary{
			{Account: "A", Fetched: 2, Parsed: 3, Inserted: 3},
			{Account: "B", Reason: "InvalidCredentials", Errors: []string{"invalid credentials"}},
		},
	}

	md := RunMarkdown(summary)

	for _, want := range []string{"run-1", "| A | 2 | 3 | 3 | 0 | 0 | ok |", "| B | 0 | 0 | 0 | 0 | 0 | InvalidCredentials |", "## Errors", "1.5s"} {
		if !strings.Contains(md, want) {
			t.Errorf("RunMarkdown() missing %q in:\n%s", want, md)
		}
	}
	if strings.Contains(md, "All accounts failed") {
		t.Error("Expected partial failure not to be reported as total failure")
	}

	t.Run("all failed", func(t *testing.T) {
		summary.Accounts = summary.Accounts[1:]
		if !strings.Contains(RunMarkdown(summary), "All accounts failed") {
			t.Error("Expected total failure notice")
		}
	})
}

func TestDividendsMarkdown(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		if md := DividendsMarkdown(nil, nil); !strings.Contains(md, "No dividends recorded") {
			t.Errorf("unexpected output: %s", md)
		}
	})

	t.Run("rows and totals", func(t *testing.T) {
		events := []model.DividendEvent{{
			AccountRef:      "A",
			AssetIdentifier: "US0378331005",
			PaymentDate:     date(2026, 2, 15),
			GrossAmount:     decimal.RequireFromString("12.34"),
			TaxWithheld:     decimal.RequireFromString("1.85"),
			NetAmount:       decimal.RequireFromString("10.49"),
			Currency:        "USD",
			Shares:          decimal.NewNullDecimal(decimal.NewFromInt(10)),
		}}
		totals := []model.DividendTotal{{Year: 2026, Currency: "USD", Count: 1,
			Gross: events[0].GrossAmount, Tax: events[0].TaxWithheld, Net: events[0].NetAmount}}

		md := DividendsMarkdown(events, totals)

		for _, want := range []string{"| 2026-02-15 | A | US0378331005 | 10 | $12.34 | $1.85 | $10.49 |", "| 2026 | 1 |"} {
			if !strings.Contains(md, want) {
				t.Errorf("DividendsMarkdown() missing %q in:\n%s", want, md)
			}
		}
	})
}

func TestRender(t *testing.T) {
	out, err := Render("# Title\n\nSome **bold** text.\n")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("Render() output lost content: %q", out)
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
