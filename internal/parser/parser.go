package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
)

const defaultCurrency = "EUR"

// transaction is one booked cash movement of a statement.
type transaction struct {
	Reference     string `json:"reference"`
	BookingStatus string `json:"bookingStatus"`
	BookingDate   string `json:"bookingDate"`
	ValutaDate    string `json:"valutaDate"`
	Amount        *struct {
		Value json.Number `json:"value"`
		Unit  string      `json:"unit"`
	} `json:"amount"`
	RemittanceInfo  string `json:"remittanceInfo"`
	TransactionType *struct {
		Key  string `json:"key"`
		Text string `json:"text"`
	} `json:"transactionType"`
}

// document is the statement payload envelope.
type document struct {
	Values *[]json.RawMessage `json:"values"`
}

// Parser turns statement documents into dividend events.
type Parser struct {
	rules []Rule
	log   zerolog.Logger
}

// New creates a parser with the default marker table.
func New(log zerolog.Logger) *Parser {
	return NewWithRules(DefaultRules, log)
}

// NewWithRules creates a parser with a custom marker table.
func NewWithRules(rules []Rule, log zerolog.Logger) *Parser {
	return &Parser{rules: rules, log: log.With().Str("component", "parser").Logger()}
}

// Parse extracts every dividend credit of the statement, in statement order.
// Lines that look like dividends but cannot be read are skipped with a
// warning. An error is returned only when the document itself is unreadable.
func (p *Parser) Parse(raw model.RawStatement) ([]model.DividendEvent, error) {
	var doc document
	if err := json.Unmarshal(raw.Payload, &doc); err != nil {
		return nil, apperrors.NewParseError(apperrors.ErrUnrecognizedFormat, raw.DocumentID, err)
	}
	if doc.Values == nil {
		return nil, apperrors.NewParseError(apperrors.ErrUnrecognizedFormat, raw.DocumentID, errors.New("no transaction list"))
	}

	log := p.log.With().Str("account", string(raw.AccountRef)).Str("document", raw.DocumentID).Logger()

	events := []model.DividendEvent{}
	decoded := 0
	for i, value := range *doc.Values {
		var tx transaction
		if err := json.Unmarshal(value, &tx); err != nil {
			log.Warn().Int("line", i).Err(err).Msg("Skipping undecodable transaction")
			continue
		}
		decoded++

		if strings.EqualFold(tx.BookingStatus, "NOTBOOKED") {
			continue
		}

		text := tx.RemittanceInfo
		if tx.TransactionType != nil {
			text = tx.TransactionType.Text + " " + text
		}
		if Classify(p.rules, text) != KindDividend {
			continue
		}

		event, err := p.dividend(raw, tx)
		if err != nil {
			log.Warn().Int("line", i).Str("reference", tx.Reference).Err(err).Msg("Skipping malformed dividend line")
			continue
		}
		events = append(events, event)
	}

	if len(*doc.Values) > 0 && decoded == 0 {
		return nil, apperrors.NewParseError(apperrors.ErrUnrecognizedFormat, raw.DocumentID, errors.New("no readable transactions"))
	}

	log.Debug().Int("transactions", len(*doc.Values)).Int("dividends", len(events)).Msg("Parsed statement")
	return events, nil
}

// fields holds what the remittance segments state about a dividend.
type fields struct {
	isin     string
	wkn      string
	shares   decimal.NullDecimal
	perShare decimal.NullDecimal
	perCcy   string
	gross    decimal.NullDecimal
	grossCcy string
	tax      decimal.NullDecimal
}

func extract(segments []string) (fields, error) {
	var f fields
	for _, seg := range segments {
		upper := strings.ToUpper(seg)
		consumed := false

		if f.isin == "" {
			for _, m := range isinPattern.FindAllStringSubmatch(upper, -1) {
				if isinValid(m[1]) {
					f.isin = m[1]
					break
				}
			}
		}
		if f.wkn == "" {
			for _, m := range wknPattern.FindAllStringSubmatch(upper, -1) {
				if hasDigit(m[1]) && m[1] != f.isin {
					f.wkn = m[1]
					break
				}
			}
		}

		if m := sharesPattern.FindStringSubmatch(upper); m != nil && !f.shares.Valid {
			d, err := parseLocalAmount(m[1])
			if err != nil {
				return f, fmt.Errorf("shares %q: %w", m[1], err)
			}
			f.shares = decimal.NewNullDecimal(d)
			consumed = true
		}

		if m := grossPattern.FindStringSubmatch(upper); m != nil {
			d, err := parseLocalAmount(m[2])
			if err != nil {
				return f, fmt.Errorf("gross %q: %w", m[2], err)
			}
			f.gross = decimal.NewNullDecimal(d)
			f.grossCcy = m[1]
			if f.grossCcy == "" {
				f.grossCcy = m[3]
			}
			consumed = true
		}

		if matches := taxPattern.FindAllStringSubmatch(upper, -1); matches != nil {
			sum := f.tax.Decimal
			for _, m := range matches {
				d, err := parseLocalAmount(m[1])
				if err != nil {
					return f, fmt.Errorf("tax %q: %w", m[1], err)
				}
				sum = sum.Add(d)
			}
			f.tax = decimal.NewNullDecimal(sum)
			consumed = true
		}

		if !consumed && !f.perShare.Valid {
			for _, m := range perSharePattern.FindAllStringSubmatch(upper, -1) {
				if money.GetCurrency(m[1]) == nil {
					continue
				}
				d, err := parseLocalAmount(m[2])
				if err != nil {
					continue
				}
				f.perShare = decimal.NewNullDecimal(d)
				f.perCcy = m[1]
				break
			}
		}
	}
	return f, nil
}

func (p *Parser) dividend(raw model.RawStatement, tx transaction) (model.DividendEvent, error) {
	f, err := extract(splitSegments(tx.RemittanceInfo))
	if err != nil {
		return model.DividendEvent{}, err
	}

	asset := f.isin
	if asset == "" {
		asset = f.wkn
	}
	if asset == "" {
		return model.DividendEvent{}, errors.New("no asset identifier")
	}

	paymentDate, err := paymentDate(tx)
	if err != nil {
		return model.DividendEvent{}, err
	}

	var net decimal.NullDecimal
	currency := ""
	if tx.Amount != nil && tx.Amount.Value != "" {
		d, err := decimal.NewFromString(tx.Amount.Value.String())
		if err != nil {
			return model.DividendEvent{}, fmt.Errorf("booked amount %q: %w", tx.Amount.Value, err)
		}
		net = decimal.NewNullDecimal(d)
		currency = strings.ToUpper(tx.Amount.Unit)
	}
	if !net.Valid && !f.gross.Valid {
		return model.DividendEvent{}, errors.New("no amount")
	}
	if net.Valid && !net.Decimal.IsPositive() {
		return model.DividendEvent{}, fmt.Errorf("non-positive dividend amount %s", net.Decimal)
	}

	if currency == "" {
		currency = f.grossCcy
	}
	if currency == "" {
		currency = defaultCurrency
	}
	if money.GetCurrency(currency) == nil {
		return model.DividendEvent{}, fmt.Errorf("unknown currency %q", currency)
	}

	tax := f.tax.Decimal
	gross := f.gross.Decimal
	switch {
	case !f.gross.Valid:
		gross = net.Decimal.Add(tax)
	case !net.Valid:
		net = decimal.NewNullDecimal(gross.Sub(tax))
	}
	if !net.Decimal.IsPositive() {
		return model.DividendEvent{}, fmt.Errorf("non-positive derived dividend amount %s", net.Decimal)
	}
	if !f.tax.Valid {
		tax = gross.Sub(net.Decimal)
		if tax.IsNegative() {
			tax = decimal.Zero
		}
	}

	return model.DividendEvent{
		AccountRef:       raw.AccountRef,
		AssetIdentifier:  asset,
		PaymentDate:      paymentDate,
		GrossAmount:      gross,
		NetAmount:        net.Decimal,
		TaxWithheld:      tax,
		Currency:         currency,
		Shares:           f.shares,
		AmountPerShare:   f.perShare,
		SourceDocumentID: raw.DocumentID,
	}, nil
}

func paymentDate(tx transaction) (time.Time, error) {
	for _, s := range []string{tx.ValutaDate, tx.BookingDate} {
		if s == "" {
			continue
		}
		t, err := time.Parse(model.DateLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", s, err)
		}
		return t, nil
	}
	return time.Time{}, errors.New("no payment date")
}
