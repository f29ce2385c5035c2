package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/repository"
)

// DividendBuilder provides a fluent interface for creating test dividend events.
//
// Example usage:
//
//	// Simple creation with defaults
//	event := testutil.NewDividend().Build()
//
//	// Stored event
//	event := testutil.NewDividend().
//	    WithAccount("depot-b").
//	    WithAmounts("12.34", "1.85", "10.49").
//	    Insert(t, db)
type DividendBuilder struct {
	event model.DividendEvent
}

// NewDividend creates a DividendBuilder with sensible defaults.
func NewDividend() *DividendBuilder {
	return &DividendBuilder{event: model.DividendEvent{
		AccountRef:       DefaultAccount,
		AssetIdentifier:  ISINApple,
		PaymentDate:      time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
		GrossAmount:      decimal.RequireFromString("12.34"),
		TaxWithheld:      decimal.RequireFromString("1.85"),
		NetAmount:        decimal.RequireFromString("10.49"),
		Currency:         "EUR",
		SourceDocumentID: "acc-1-2026-02",
	}}
}

// WithAccount sets the account.
func (b *DividendBuilder) WithAccount(ref model.AccountRef) *DividendBuilder {
	b.event.AccountRef = ref
	return b
}

// WithAsset sets the ISIN or WKN.
func (b *DividendBuilder) WithAsset(asset string) *DividendBuilder {
	b.event.AssetIdentifier = asset
	return b
}

// WithDate sets the payment date.
func (b *DividendBuilder) WithDate(date time.Time) *DividendBuilder {
	b.event.PaymentDate = date
	return b
}

// WithAmounts sets gross, tax and net.
func (b *DividendBuilder) WithAmounts(gross, tax, net string) *DividendBuilder {
	b.event.GrossAmount = decimal.RequireFromString(gross)
	b.event.TaxWithheld = decimal.RequireFromString(tax)
	b.event.NetAmount = decimal.RequireFromString(net)
	return b
}

// WithCurrency sets the currency.
func (b *DividendBuilder) WithCurrency(currency string) *DividendBuilder {
	b.event.Currency = currency
	return b
}

// WithShares sets the share count and the amount per share.
func (b *DividendBuilder) WithShares(shares, perShare string) *DividendBuilder {
	b.event.Shares = decimal.NewNullDecimal(decimal.RequireFromString(shares))
	b.event.AmountPerShare = decimal.NewNullDecimal(decimal.RequireFromString(perShare))
	return b
}

// WithDocument sets the source statement id.
func (b *DividendBuilder) WithDocument(id string) *DividendBuilder {
	b.event.SourceDocumentID = id
	return b
}

// Build returns the event without storing it.
func (b *DividendBuilder) Build() model.DividendEvent {
	return b.event
}

// Insert stores the event and returns it with its assigned id.
func (b *DividendBuilder) Insert(t *testing.T, db *sql.DB) model.DividendEvent {
	t.Helper()

	repo := repository.NewDividendRepository(db, zerolog.Nop())
	ctx := context.Background()
	if _, err := repo.InsertIfNew(ctx, b.event); err != nil {
		t.Fatalf("Failed to insert dividend: %v", err)
	}

	events, err := repo.Query(ctx, model.DividendFilter{Account: b.event.AccountRef, Asset: b.event.AssetIdentifier})
	if err != nil {
		t.Fatalf("Failed to read back dividend: %v", err)
	}
	key := b.event.Key()
	for _, e := range events {
		if e.Key() == key {
			return e
		}
	}
	t.Fatalf("Inserted dividend not found")
	return model.DividendEvent{}
}
