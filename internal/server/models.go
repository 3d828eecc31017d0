package server

import (
	"time"

	"github.com/rezonia/pdfsig-verifier/internal/document"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
)

// FieldCoverage is the share of the document one signature covers
type FieldCoverage struct {
	Field   string `json:"field"`
	Covered string `json:"covered"`
}

// VerifyResponse is the response for signature verification
type VerifyResponse struct {
	Valid        bool                            `json:"valid"`
	Fields       int                             `json:"fields"`
	Results      []*signature.VerificationResult `json:"results"`
	Coverage     []FieldCoverage                 `json:"coverage"`
	MeanCoverage string                          `json:"mean_coverage"`
	Document     document.Info                   `json:"document"`
}

// StoreEntry is one trusted certificate as listed by the API
type StoreEntry struct {
	Index       int                          `json:"index"`
	Type        string                       `json:"type"`
	Certificate signature.CertificateSummary `json:"certificate"`
}

// StoreResponse lists the certificate store
type StoreResponse struct {
	Count   int          `json:"count"`
	Entries []StoreEntry `json:"entries"`
}

// AddCertificateResponse reports the outcome of adding certificates
type AddCertificateResponse struct {
	Added int `json:"added"`
	Count int `json:"count"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status     string   `json:"status"`
	Time       string   `json:"time"`
	SubFilters []string `json:"sub_filters"`
}

func newHealthResponse(subFilters []string) HealthResponse {
	return HealthResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339),
		SubFilters: subFilters,
	}
}
