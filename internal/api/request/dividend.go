package request

// DividendQuery holds the raw query parameters of the dividend endpoints.
// All parameters are optional.
type DividendQuery struct {
	Account string
	From    string
	To      string
	Asset   string
}

// IngestRequest is the optional body of POST /api/ingest.
// Without dates the configured lookback window is ingested.
type IngestRequest struct {
	Account string `json:"account,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
}
