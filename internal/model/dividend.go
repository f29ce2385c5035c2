package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DividendEvent is one normalized dividend payment credited to an account.
type DividendEvent struct {
	ID               string              `json:"id"`
	AccountRef       AccountRef          `json:"account"`
	AssetIdentifier  string              `json:"assetIdentifier"`
	PaymentDate      time.Time           `json:"paymentDate"`
	GrossAmount      decimal.Decimal     `json:"grossAmount"`
	NetAmount        decimal.Decimal     `json:"netAmount"`
	TaxWithheld      decimal.Decimal     `json:"taxWithheld"`
	Currency         string              `json:"currency"`
	Shares           decimal.NullDecimal `json:"shares"`
	AmountPerShare   decimal.NullDecimal `json:"amountPerShare"`
	SourceDocumentID string              `json:"sourceDocumentId"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// DividendKey is the natural identity of a dividend event.
// Two events with equal keys describe the same payment.
type DividendKey struct {
	AccountRef       AccountRef
	AssetIdentifier  string
	PaymentDate      string
	NetAmount        string
	SourceDocumentID string
}

// Key returns the deduplication key of the event. The net amount is rendered
// canonically so that 10.5 and 10.50 compare equal.
func (e DividendEvent) Key() DividendKey {
	return DividendKey{
		AccountRef:       e.AccountRef,
		AssetIdentifier:  e.AssetIdentifier,
		PaymentDate:      e.PaymentDate.Format(DateLayout),
		NetAmount:        e.NetAmount.String(),
		SourceDocumentID: e.SourceDocumentID,
	}
}

// DividendFilter narrows a dividend query. Zero fields do not filter.
type DividendFilter struct {
	Account AccountRef
	Range   DateRange
	Asset   string
}

// DividendTotal aggregates net dividends per year and currency.
type DividendTotal struct {
	Year     int             `json:"year"`
	Currency string          `json:"currency"`
	Gross    decimal.Decimal `json:"gross"`
	Net      decimal.Decimal `json:"net"`
	Tax      decimal.Decimal `json:"tax"`
	Count    int             `json:"count"`
}

// InsertResult reports the outcome of an idempotent insert.
type InsertResult int

const (
	Inserted InsertResult = iota + 1
	Duplicate
)

func (r InsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}
