package apperrors

import (
	"context"
	"errors"
)

// Domain entity errors represent missing or invalid entities in the system.
var (
	// ErrDividendNotFound indicates that a dividend event with the given ID does not exist.
	ErrDividendNotFound = errors.New("dividend not found")

	// ErrAccountNotFound indicates that no account is configured under the given name.
	ErrAccountNotFound = errors.New("account not found")

	// ErrNoIngestionRun indicates that no ingestion run has been recorded yet.
	ErrNoIngestionRun = errors.New("no ingestion run recorded")
)

// Validation errors for request parameters.
var (
	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., start date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidDate indicates a date parameter that is not in YYYY-MM-DD format.
	ErrInvalidDate = errors.New("invalid date format, expected YYYY-MM-DD")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrInvalidAssetIdentifier indicates an asset filter that is neither an ISIN nor a WKN.
	ErrInvalidAssetIdentifier = errors.New("asset must be an ISIN or WKN")

	// ErrInvalidAccount indicates an account filter that is not configured.
	ErrInvalidAccount = errors.New("unknown account")
)

// Operation failure errors represent system-level failures when retrieving or processing data.
var (
	ErrFailedToRetrieveDividends = errors.New("failed to retrieve dividends")
	ErrFailedToRetrieveTotals    = errors.New("failed to retrieve dividend totals")
	ErrFailedToRetrieveRun       = errors.New("failed to retrieve ingestion run")
	ErrIngestionFailed           = errors.New("failed to run ingestion")

	// ErrIngestionInProgress is returned when a run is requested while another is active.
	ErrIngestionInProgress = errors.New("ingestion already in progress")
)

// Pipeline failure kinds. Every typed pipeline error carries exactly one of these
// as its Kind and matches it with errors.Is.
var (
	// Authentication
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrChallengeTimedOut  = errors.New("tan challenge timed out")
	ErrChallengeRejected  = errors.New("tan challenge rejected")
	ErrChallengeAbandoned = errors.New("tan challenge abandoned")
	ErrAuthUnreachable    = errors.New("authentication endpoint unreachable")

	// Statement retrieval
	ErrSessionExpired   = errors.New("session expired")
	ErrBadRequest       = errors.New("statement request rejected")
	ErrFetchUnreachable = errors.New("statement endpoint unreachable")

	// Parsing
	ErrUnrecognizedFormat = errors.New("unrecognized statement format")

	// Storage
	ErrWriteFailed = errors.New("store write failed")
)

var reasons = []struct {
	kind error
	name string
}{
	{ErrInvalidCredentials, "InvalidCredentials"},
	{ErrChallengeTimedOut, "ChallengeTimedOut"},
	{ErrChallengeRejected, "ChallengeRejected"},
	{ErrChallengeAbandoned, "ChallengeAbandoned"},
	{ErrAuthUnreachable, "Unreachable"},
	{ErrSessionExpired, "SessionExpired"},
	{ErrBadRequest, "BadRequest"},
	{ErrFetchUnreachable, "Unreachable"},
	{ErrUnrecognizedFormat, "UnrecognizedFormat"},
	{ErrWriteFailed, "WriteFailed"},
	{context.Canceled, "Canceled"},
	{context.DeadlineExceeded, "DeadlineExceeded"},
}

// Reason returns the short failure kind name of err, as reported in run summaries.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.kind) {
			return r.name
		}
	}
	return "Unknown"
}
