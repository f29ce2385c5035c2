package validation

import (
	"strings"

	"github.com/ndewijer/depotsync/internal/api/request"
	"github.com/ndewijer/depotsync/internal/apperrors"
	"github.com/ndewijer/depotsync/internal/model"
)

// ValidateDividendQuery turns query parameters into a filter.
//
// Optional fields (validated if provided):
//   - account: Must be one of the configured accounts
//   - from / to: Must be in YYYY-MM-DD format, from not after to
//   - asset: Must be an ISIN or a WKN
//
// Returns a validation Error with field-specific error messages if validation fails.
func ValidateDividendQuery(req request.DividendQuery, accounts []model.AccountRef) (model.DividendFilter, error) {
	errors := make(map[string]string)
	var f model.DividendFilter

	if req.Account != "" {
		if !known(model.AccountRef(req.Account), accounts) {
			errors["account"] = apperrors.ErrInvalidAccount.Error()
		}
		f.Account = model.AccountRef(req.Account)
	}

	if req.Asset != "" {
		if err := ValidateAssetIdentifier(req.Asset); err != nil {
			errors["asset"] = err.Error()
		}
		f.Asset = strings.ToUpper(strings.TrimSpace(req.Asset))
	}

	parseRange(req.From, req.To, &f.Range, errors)

	if len(errors) > 0 {
		return model.DividendFilter{}, &Error{Fields: errors}
	}
	return f, nil
}

// ValidateIngestRequest checks an ingest request body. A zero range means the
// configured lookback window; a range must give both ends.
func ValidateIngestRequest(req request.IngestRequest, accounts []model.AccountRef) (model.AccountRef, model.DateRange, error) {
	errors := make(map[string]string)
	var r model.DateRange

	if req.Account != "" && !known(model.AccountRef(req.Account), accounts) {
		errors["account"] = apperrors.ErrInvalidAccount.Error()
	}
	if (req.From == "") != (req.To == "") {
		errors["range"] = "from and to must be given together"
	} else {
		parseRange(req.From, req.To, &r, errors)
	}

	if len(errors) > 0 {
		return "", model.DateRange{}, &Error{Fields: errors}
	}
	return model.AccountRef(req.Account), r, nil
}

func parseRange(from, to string, r *model.DateRange, errors map[string]string) {
	if from != "" {
		t, err := ParseDate(from)
		if err != nil {
			errors["from"] = err.Error()
		}
		r.From = t
	}
	if to != "" {
		t, err := ParseDate(to)
		if err != nil {
			errors["to"] = err.Error()
		}
		r.To = t
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.From.After(r.To) {
		errors["range"] = ErrInvalidDateRange.Error()
	}
}

func known(ref model.AccountRef, accounts []model.AccountRef) bool {
	for _, a := range accounts {
		if a == ref {
			return true
		}
	}
	return false
}
