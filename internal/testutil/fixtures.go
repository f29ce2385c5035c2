package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ndewijer/depotsync/internal/model"
)

// Well-known ISINs with valid check digits.
const (
	ISINApple      = "US0378331005"
	ISINSAP        = "DE0007164600"
	ISINMSCIWorld  = "IE00B4L5Y983"
	ISINAllianz    = "DE0008404005"
	ISINMicrosoft  = "US5949181045"
	DefaultAccount = model.AccountRef("depot-a")
)

// Tx is one raw broker transaction line as it appears in a statement.
//
// Example usage:
//
//	line := testutil.DividendTx("2026-02-15", testutil.ISINApple, "12.34", "1.85", "10.49").JSON()
type Tx struct {
	Reference   string
	Status      string
	BookingDate string
	ValutaDate  string
	Amount      string
	Currency    string
	TypeKey     string
	TypeText    string
	Remittance  string
}

// DividendTx builds a booked dividend credit. Amounts are plain decimals;
// the remittance text uses German notation like the broker does.
func DividendTx(date, isin, gross, tax, net string) Tx {
	return Tx{
		Reference:   "DIV-" + isin + "-" + date,
		Status:      "BOOKED",
		BookingDate: date,
		ValutaDate:  date,
		Amount:      net,
		Currency:    "EUR",
		TypeKey:     "TRANSFER",
		TypeText:    "Kupon/Dividende",
		Remittance: fmt.Sprintf("01DIVIDENDENGUTSCHRIFT 02%s STK 10 03BRUTTO EUR %s 04KAPST EUR %s",
			isin, German(gross), German(tax)),
	}
}

// PurchaseTx builds a securities purchase debit.
func PurchaseTx(date, isin, amount string) Tx {
	return Tx{
		Reference:   "BUY-" + isin + "-" + date,
		Status:      "BOOKED",
		BookingDate: date,
		ValutaDate:  date,
		Amount:      "-" + amount,
		Currency:    "EUR",
		TypeKey:     "DIRECT_DEBIT",
		TypeText:    "Wertpapierkauf",
		Remittance:  "01WERTPAPIERKAUF 02" + isin,
	}
}

// FeeTx builds an account fee debit.
func FeeTx(date, amount string) Tx {
	return Tx{
		Reference:   "FEE-" + date,
		Status:      "BOOKED",
		BookingDate: date,
		ValutaDate:  date,
		Amount:      "-" + amount,
		Currency:    "EUR",
		TypeKey:     "DIRECT_DEBIT",
		TypeText:    "Entgelt",
		Remittance:  "01KONTOFUEHRUNGSENTGELT",
	}
}

// NotBooked marks the line as pending.
func (t Tx) NotBooked() Tx {
	t.Status = "NOTBOOKED"
	return t
}

// JSON renders the line in the broker's transaction format.
func (t Tx) JSON() json.RawMessage {
	line := map[string]any{
		"reference":      t.Reference,
		"bookingStatus":  t.Status,
		"bookingDate":    t.BookingDate,
		"valutaDate":     t.ValutaDate,
		"remittanceInfo": t.Remittance,
		"transactionType": map[string]string{
			"key":  t.TypeKey,
			"text": t.TypeText,
		},
	}
	if t.Amount != "" {
		line["amount"] = map[string]any{"value": json.Number(t.Amount), "unit": t.Currency}
	}
	data, err := json.Marshal(line)
	if err != nil {
		panic(err)
	}
	return data
}

// German renders a plain decimal string in German notation ("1234.5" -> "1234,5").
func German(s string) string {
	return strings.Replace(s, ".", ",", 1)
}

// StatementPayload builds a statement document holding the given lines.
func StatementPayload(accountID string, month time.Time, lines ...json.RawMessage) []byte {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)
	if lines == nil {
		lines = []json.RawMessage{}
	}
	data, err := json.Marshal(map[string]any{
		"accountId": accountID,
		"from":      from.Format(model.DateLayout),
		"to":        to.Format(model.DateLayout),
		"values":    lines,
	})
	if err != nil {
		panic(err)
	}
	return data
}

// NewStatement builds a raw statement for one account month.
func NewStatement(ref model.AccountRef, accountID string, month time.Time, lines ...json.RawMessage) model.RawStatement {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	return model.RawStatement{
		AccountRef:  ref,
		DocumentID:  fmt.Sprintf("%s-%s", accountID, from.Format("2006-01")),
		PeriodStart: from,
		PeriodEnd:   from.AddDate(0, 1, -1),
		Payload:     StatementPayload(accountID, from, lines...),
		FetchedAt:   time.Now().UTC(),
	}
}

// Date parses a YYYY-MM-DD date or fails the test.
func Date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		t.Fatalf("invalid test date %q: %v", s, err)
	}
	return d
}
