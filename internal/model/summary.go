package model

import "time"

// AccountSummary holds the per-account counters of one ingestion run.
// Parsed counts dividend candidates, Fetched counts statements.
// Reason is set when the account as a whole could not be processed.
type AccountSummary struct {
	Account   AccountRef `json:"account"`
	Fetched   int        `json:"fetched"`
	Parsed    int        `json:"parsed"`
	Inserted  int        `json:"inserted"`
	Duplicate int        `json:"duplicate"`
	Failed    int        `json:"failed"`
	Reason    string     `json:"reason,omitempty"`
	Errors    []string   `json:"errors,omitempty"`
}

// OK reports whether the account pipeline ran to completion.
func (a AccountSummary) OK() bool {
	return a.Reason == ""
}

// RunSummary is the outcome of one ingestion run over all accounts.
type RunSummary struct {
	RunID      string           `json:"runId"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Range      DateRange        `json:"range"`
	Accounts   []AccountSummary `json:"accounts"`
}

// Failed reports whether every account of the run failed.
func (r RunSummary) Failed() bool {
	if len(r.Accounts) == 0 {
		return false
	}
	for _, a := range r.Accounts {
		if a.OK() {
			return false
		}
	}
	return true
}

// Account returns the summary of a single account.
func (r RunSummary) Account(ref AccountRef) (AccountSummary, bool) {
	for _, a := range r.Accounts {
		if a.Account == ref {
			return a, true
		}
	}
	return AccountSummary{}, false
}

// Totals sums the counters of all accounts.
func (r RunSummary) Totals() AccountSummary {
	var t AccountSummary
	for _, a := range r.Accounts {
		t.Fetched += a.Fetched
		t.Parsed += a.Parsed
		t.Inserted += a.Inserted
		t.Duplicate += a.Duplicate
		t.Failed += a.Failed
	}
	return t
}
