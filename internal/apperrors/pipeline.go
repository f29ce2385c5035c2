package apperrors

import "fmt"

// AuthError is returned by the session manager.
type AuthError struct {
	Kind    error
	Account string
	Err     error
}

// NewAuthError wraps cause under the given authentication kind.
func NewAuthError(kind error, account string, cause error) *AuthError {
	return &AuthError{Kind: kind, Account: account, Err: cause}
}

func (e *AuthError) Error() string {
	return format("auth", e.Account, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() []error {
	return unwrap(e.Kind, e.Err)
}

// FetchError is returned by the statement fetcher.
type FetchError struct {
	Kind    error
	Account string
	Err     error
}

// NewFetchError wraps cause under the given retrieval kind.
func NewFetchError(kind error, account string, cause error) *FetchError {
	return &FetchError{Kind: kind, Account: account, Err: cause}
}

func (e *FetchError) Error() string {
	return format("fetch", e.Account, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return unwrap(e.Kind, e.Err)
}

// ParseError is returned when a statement document cannot be decoded at all.
type ParseError struct {
	Kind       error
	DocumentID string
	Err        error
}

// NewParseError wraps cause under the given parse kind.
func NewParseError(kind error, documentID string, cause error) *ParseError {
	return &ParseError{Kind: kind, DocumentID: documentID, Err: cause}
}

func (e *ParseError) Error() string {
	return format("parse", e.DocumentID, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return unwrap(e.Kind, e.Err)
}

// StoreError is returned by the dividend store.
type StoreError struct {
	Kind error
	Op   string
	Err  error
}

// NewStoreError wraps cause under the given storage kind.
func NewStoreError(kind error, op string, cause error) *StoreError {
	return &StoreError{Kind: kind, Op: op, Err: cause}
}

func (e *StoreError) Error() string {
	return format("store", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return unwrap(e.Kind, e.Err)
}

func format(stage, subject string, kind, cause error) string {
	msg := fmt.Sprintf("%s %s: %v", stage, subject, kind)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return msg
}

func unwrap(kind, cause error) []error {
	errs := make([]error, 0, 2)
	if kind != nil {
		errs = append(errs, kind)
	}
	if cause != nil {
		errs = append(errs, cause)
	}
	return errs
}
