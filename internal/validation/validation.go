package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/depotsync/internal/apperrors"
)

// Common validation errors
var (
	ErrInvalidUUID      = apperrors.ErrInvalidUUID
	ErrInvalidDateRange = apperrors.ErrInvalidDateRange
)

var (
	isinFormat = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)
	wknFormat  = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// ValidateUUID checks if a string is a valid UUID
func ValidateUUID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidUUID, id)
	}
	return nil
}

// ValidateAssetIdentifier accepts an ISIN or a WKN, case-insensitively.
func ValidateAssetIdentifier(asset string) error {
	upper := strings.ToUpper(strings.TrimSpace(asset))
	if isinFormat.MatchString(upper) || wknFormat.MatchString(upper) {
		return nil
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidAssetIdentifier, asset)
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidDate, s)
	}
	return t, nil
}
