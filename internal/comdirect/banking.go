package comdirect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PaesslerAG/jsonpath"
)

// settlementAccountTypes are the account types that carry dividend credits.
var settlementAccountTypes = map[string]bool{
	"Girokonto":         true,
	"Verrechnungskonto": true,
	"CA":                true,
	"SA":                true,
}

// Paging is the paging block of list responses.
type Paging struct {
	Index   int `json:"index"`
	Matches int `json:"matches"`
}

// TransactionPage is one page of account transactions. Values are kept
// undecoded so statements can be archived verbatim.
type TransactionPage struct {
	Paging Paging            `json:"paging"`
	Values []json.RawMessage `json:"values"`
}

// SettlementAccountID returns the id of the first cash account whose type
// receives security income.
func (c *Client) SettlementAccountID(ctx context.Context, token string) (string, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/banking/clients/user/v1/accounts/balances",
		token:  token,
	})
	if err != nil {
		return "", err
	}

	var doc any
	if err := json.Unmarshal(resp.body, &doc); err != nil {
		return "", fmt.Errorf("failed to decode balances: %w", err)
	}

	accounts, err := jsonpath.Get("$.values[*].account", doc)
	if err != nil {
		return "", fmt.Errorf("failed to read accounts from balances: %w", err)
	}
	list, ok := accounts.([]any)
	if !ok {
		return "", fmt.Errorf("unexpected balances shape")
	}

	for _, item := range list {
		account, ok := item.(map[string]any)
		if !ok {
			continue
		}
		typeText, _ := jsonpath.Get("$.accountType.text", account)
		typeKey, _ := jsonpath.Get("$.accountType.key", account)
		text, _ := typeText.(string)
		key, _ := typeKey.(string)
		if !settlementAccountTypes[text] && !settlementAccountTypes[key] {
			continue
		}
		if id, _ := account["accountId"].(string); id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("no settlement account found")
}

// Transactions returns one page of booked transactions between from and to inclusive.
func (c *Client) Transactions(ctx context.Context, token, accountID string, from, to time.Time, first, count int) (*TransactionPage, error) {
	query := url.Values{
		"min-bookingDate": {from.Format("2006-01-02")},
		"max-bookingDate": {to.Format("2006-01-02")},
		"paging-first":    {strconv.Itoa(first)},
		"paging-count":    {strconv.Itoa(count)},
	}

	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/banking/v1/accounts/" + url.PathEscape(accountID) + "/transactions",
		query:  query,
		token:  token,
	})
	if err != nil {
		return nil, err
	}

	var page TransactionPage
	if err := decodeJSON(resp, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
