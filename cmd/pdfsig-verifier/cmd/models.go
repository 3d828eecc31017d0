package cmd

import (
	"github.com/rezonia/pdfsig-verifier/internal/document"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
)

// VerifyResult holds the result of verifying a single file
type VerifyResult struct {
	File         string                          `json:"file"`
	Valid        bool                            `json:"valid"`
	Results      []*signature.VerificationResult `json:"results"`
	Coverage     []string                        `json:"coverage"`
	MeanCoverage string                          `json:"mean_coverage,omitempty"`
	Error        string                          `json:"error,omitempty"`
}

// InspectResult lists the signature fields of a single file
type InspectResult struct {
	File     string        `json:"file"`
	Document document.Info `json:"document"`
	Fields   []FieldOutput `json:"fields"`
	Error    string        `json:"error,omitempty"`
}

// FieldOutput holds signature dictionary metadata for output
type FieldOutput struct {
	Name         string   `json:"name"`
	Reference    string   `json:"reference"`
	Type         string   `json:"type,omitempty"`
	Filter       string   `json:"filter,omitempty"`
	SubFilter    string   `json:"sub_filter,omitempty"`
	Supported    bool     `json:"supported"`
	SignerName   string   `json:"signer_name,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Location     string   `json:"location,omitempty"`
	ContactInfo  string   `json:"contact_info,omitempty"`
	SigningTime  string   `json:"signing_time,omitempty"`
	ByteRanges   []int64  `json:"byte_ranges,omitempty"`
	ContentsSize int      `json:"contents_size"`
	Certificates int      `json:"certificates,omitempty"`
	Transforms   []string `json:"transforms,omitempty"`
}

// StoreEntryOutput is one certificate store entry for output
type StoreEntryOutput struct {
	Index       int                          `json:"index"`
	Type        string                       `json:"type"`
	Certificate signature.CertificateSummary `json:"certificate"`
}
