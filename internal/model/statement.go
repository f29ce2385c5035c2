package model

import "time"

// RawStatement is one undecoded statement document as delivered by the broker.
// DocumentID is stable for the same account and period across runs.
type RawStatement struct {
	AccountRef  AccountRef `json:"account"`
	DocumentID  string     `json:"documentId"`
	PeriodStart time.Time  `json:"periodStart"`
	PeriodEnd   time.Time  `json:"periodEnd"`
	Payload     []byte     `json:"payload"`
	FetchedAt   time.Time  `json:"fetchedAt"`
}

// Period returns the statement period as a date range.
func (s RawStatement) Period() DateRange {
	return DateRange{From: s.PeriodStart, To: s.PeriodEnd}
}
