package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDividendEvent_Key(t *testing.T) {
	base := DividendEvent{
		AccountRef:       "A",
		AssetIdentifier:  "US0378331005",
		PaymentDate:      date(2026, 2, 15),
		NetAmount:        decimal.RequireFromString("10.49"),
		GrossAmount:      decimal.RequireFromString("12.34"),
		SourceDocumentID: "acc-2026-02",
	}

	t.Run("trailing zeros do not change the key", func(t *testing.T) {
		other := base
		other.NetAmount = decimal.RequireFromString("10.490")
		if base.Key() != other.Key() {
			t.Errorf("keys differ: %+v vs %+v", base.Key(), other.Key())
		}
	})

	t.Run("non-key fields are ignored", func(t *testing.T) {
		other := base
		other.ID = "x"
		other.GrossAmount = decimal.Zero
		if base.Key() != other.Key() {
			t.Error("keys differ on non-key fields")
		}
	})

	t.Run("document is part of the key", func(t *testing.T) {
		other := base
		other.SourceDocumentID = "acc-2026-03"
		if base.Key() == other.Key() {
			t.Error("keys equal across documents")
		}
	})

	t.Run("payment date is rendered as a day", func(t *testing.T) {
		if got := base.Key().PaymentDate; got != "2026-02-15" {
			t.Errorf("PaymentDate = %s", got)
		}
	})
}

func TestRunSummary(t *testing.T) {
	s := RunSummary{Accounts: []AccountSummary{
		{Account: "A", Fetched: 2, Parsed: 3, Inserted: 2, Duplicate: 1},
		{Account: "B", Reason: "InvalidCredentials"},
	}}

	t.Run("partial failure is not a failed run", func(t *testing.T) {
		if s.Failed() {
			t.Error("Failed() = true")
		}
	})

	t.Run("all failed", func(t *testing.T) {
		all := RunSummary{Accounts: s.Accounts[1:]}
		if !all.Failed() {
			t.Error("Failed() = false")
		}
	})

	t.Run("empty run did not fail", func(t *testing.T) {
		if (RunSummary{}).Failed() {
			t.Error("Failed() = true")
		}
	})

	t.Run("totals", func(t *testing.T) {
		got := s.Totals()
		if got.Fetched != 2 || got.Parsed != 3 || got.Inserted != 2 || got.Duplicate != 1 {
			t.Errorf("Totals() = %+v", got)
		}
	})

	t.Run("account lookup", func(t *testing.T) {
		b, ok := s.Account("B")
		if !ok || b.OK() {
			t.Errorf("Account(B) = %+v, %v", b, ok)
		}
		if _, ok := s.Account("C"); ok {
			t.Error("Account(C) found")
		}
	})
}

func TestInsertResult_String(t *testing.T) {
	if Inserted.String() != "inserted" || Duplicate.String() != "duplicate" || InsertResult(0).String() != "unknown" {
		t.Error("unexpected InsertResult names")
	}
}
