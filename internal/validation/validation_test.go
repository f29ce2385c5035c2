package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/ndewijer/depotsync/internal/api/request"
	"github.com/ndewijer/depotsync/internal/model"
)

var accounts = []model.AccountRef{"depot-a", "depot-b"}

func TestValidateDividendQuery(t *testing.T) {
	tests := []struct {
		name       string
		req        request.DividendQuery
		wantFields []string
	}{
		{name: "empty query", req: request.DividendQuery{}},
		{name: "all filters", req: request.DividendQuery{Account: "depot-a", From: "2026-01-01", To: "2026-12-31", Asset: "us0378331005"}},
		{name: "wkn", req: request.DividendQuery{Asset: "865985"}},
		{name: "open ended", req: request.DividendQuery{From: "2026-01-01"}},
		{name: "unknown account", req: request.DividendQuery{Account: "depot-z"}, wantFields: []string{"account"}},
		{name: "bad asset", req: request.DividendQuery{Asset: "APPLE"}, wantFields: []string{"asset"}},
		{name: "bad date", req: request.DividendQuery{From: "01.02.2026"}, wantFields: []string{"from"}},
		{name: "reversed range", req: request.DividendQuery{From: "2026-03-01", To: "2026-02-01"}, wantFields: []string{"range"}},
		{
			name:       "several problems",
			req:        request.DividendQuery{Account: "x", To: "tomorrow"},
			wantFields: []string{"account", "to"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ValidateDividendQuery(tt.req, accounts)

			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateDividendQuery() error = %v", err)
				}
				if tt.req.Asset != "" && f.Asset != strings.ToUpper(tt.req.Asset) {
					t.Errorf("Asset = %s, want upper case", f.Asset)
				}
				return
			}

			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			for _, field := range tt.wantFields {
				if _, ok := verr.Fields[field]; !ok {
					t.Errorf("missing error for %s in %v", field, verr.Fields)
				}
			}
			if len(verr.Fields) != len(tt.wantFields) {
				t.Errorf("fields = %v, want %v", verr.Fields, tt.wantFields)
			}
		})
	}

	t.Run("range is inclusive calendar days", func(t *testing.T) {
		f, err := ValidateDividendQuery(request.DividendQuery{From: "2026-02-01", To: "2026-02-28"}, accounts)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if f.Range.From.Format(model.DateLayout) != "2026-02-01" || f.Range.To.Format(model.DateLayout) != "2026-02-28" {
			t.Errorf("Range = %s", f.Range)
		}
	})
}

func TestValidateIngestRequest(t *testing.T) {
	t.Run("empty body means lookback for all accounts", func(t *testing.T) {
		account, r, err := ValidateIngestRequest(request.IngestRequest{}, accounts)
		if err != nil || account != "" || !r.IsZero() {
			t.Errorf("ValidateIngestRequest() = %q, %s, %v", account, r, err)
		}
	})

	t.Run("account and range", func(t *testing.T) {
		account, r, err := ValidateIngestRequest(request.IngestRequest{Account: "depot-b", From: "2026-01-01", To: "2026-01-31"}, accounts)
		if err != nil || account != "depot-b" || r.To.Format(model.DateLayout) != "2026-01-31" {
			t.Errorf("ValidateIngestRequest() = %q, %s, %v", account, r, err)
		}
	})

	t.Run("half a range", func(t *testing.T) {
		_, _, err := ValidateIngestRequest(request.IngestRequest{From: "2026-01-01"}, accounts)
		var verr *Error
		if !errors.As(err, &verr) || verr.Fields["range"] == "" {
			t.Errorf("error = %v, want range error", err)
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		_, _, err := ValidateIngestRequest(request.IngestRequest{Account: "depot-z"}, accounts)
		if err == nil {
			t.Error("unknown account accepted")
		}
	})
}

func TestValidateUUID(t *testing.T) {
	if err := ValidateUUID("0b5a6c1e-6f5d-4b3a-9a57-2f0a3c1d4e5f"); err != nil {
		t.Errorf("ValidateUUID() error = %v", err)
	}
	if err := ValidateUUID("nope"); !errors.Is(err, ErrInvalidUUID) {
		t.Errorf("ValidateUUID() error = %v, want ErrInvalidUUID", err)
	}
}

func TestError(t *testing.T) {
	// Setup
	err := &Error{Fields: map[string]string{
		"to":      "invalid date format, expected YYYY-MM-DD",
		"account": "unknown account",
		"from":    "invalid date format, expected YYYY-MM-DD",
	}}

	// Execute
	msg := err.Error()

	// Assert
	want := "account: unknown account; from: invalid date format, expected YYYY-MM-DD; to: invalid date format, expected YYYY-MM-DD"
	if msg != want {
		t.Errorf("Expected %q, got %q", want, msg)
	}
}
