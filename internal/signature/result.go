package signature

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

// VerificationResult contains the verification outcome of one signature field
type VerificationResult struct {
	// Fully qualified name of the signature field
	FieldName string `json:"field_name"`

	// Object reference of the signature field
	FieldReference Reference `json:"field_reference"`

	// SubFilter that selected the handler
	SubFilter string `json:"sub_filter,omitempty"`

	// Signing time from /M or from a signature time-stamp token
	SigningTime *time.Time `json:"signing_time,omitempty"`

	Flags Flags `json:"-"`

	// Errors in the order they were found
	Errors []string `json:"errors"`

	// Warnings (non-fatal issues)
	Warnings []string `json:"warnings"`

	// Certificates considered during chain verification: the trusted chain
	// on success, every candidate on failure
	CertificateInfos []trust.CertificateInfo `json:"-"`

	// Bytes outside every signed range and the signature hole
	NotCoveredBytes int64 `json:"not_covered_bytes,omitempty"`
}

// NewVerificationResult creates a new empty result for a field
func NewVerificationResult(fieldName string, ref Reference) *VerificationResult {
	return &VerificationResult{
		FieldName:      fieldName,
		FieldReference: ref,
		Errors:         make([]string, 0),
		Warnings:       make([]string, 0),
	}
}

// AddWarning adds a warning message to the result
func (r *VerificationResult) AddWarning(flag Flags, msg string) {
	r.Flags |= flag
	r.Warnings = append(r.Warnings, msg)
}

// AddError adds an error message and sets flag
func (r *VerificationResult) AddError(flag Flags, msg string) {
	r.Flags |= flag
	r.Flags &^= OK
	r.Errors = append(r.Errors, msg)
}

// AddCertificateError records one certificate error kind with its standard message
func (r *VerificationResult) AddCertificateError(flag Flags) {
	r.AddError(flag, certificateMessage(flag, 0))
}

// AddCertificateOtherError records a chain failure that has no dedicated kind
func (r *VerificationResult) AddCertificateOtherError(code int) {
	r.AddError(CertificateOther, certificateMessage(CertificateOther, code))
}

// AddSignatureError records one signature error kind with its standard message
func (r *VerificationResult) AddSignatureError(flag Flags) {
	r.AddError(flag, signatureMessage(flag))
}

// AddNoHandler records that no handler exists for subFilter
func (r *VerificationResult) AddNoHandler(subFilter string) {
	r.AddError(NoHandler, fmt.Sprintf(msgNoHandler, subFilter))
}

// AddNotCoveredWarning records how many document bytes no signed range covers
func (r *VerificationResult) AddNotCoveredWarning(count int64) {
	r.NotCoveredBytes = count
	r.AddWarning(WarningNotCoveredBytes, fmt.Sprintf(msgWarningNotCoveredBytes, count))
}

// AddCertificateInfo appends a certificate snapshot
func (r *VerificationResult) AddCertificateInfo(info trust.CertificateInfo) {
	r.CertificateInfos = append(r.CertificateInfos, info)
}

// FinishCertificateCheck sets CertificateOK unless a certificate error was recorded
func (r *VerificationResult) FinishCertificateCheck() {
	if !r.HasCertificateError() {
		r.Flags |= CertificateOK
	}
}

// FinishSignatureCheck sets SignatureOK unless a signature error was recorded
func (r *VerificationResult) FinishSignatureCheck() {
	if !r.HasSignatureError() {
		r.Flags |= SignatureOK
	}
}

// HasCertificateError reports whether any certificate error flag is set
func (r *VerificationResult) HasCertificateError() bool {
	return r.Flags.Any(CertificateErrors)
}

// HasSignatureError reports whether any signature error flag is set
func (r *VerificationResult) HasSignatureError() bool {
	return r.Flags.Any(SignatureErrors)
}

// HasWarning reports whether any warning flag is set
func (r *VerificationResult) HasWarning() bool {
	return r.Flags.Any(Warnings)
}

// Validate sets OK when both checks completed without errors
func (r *VerificationResult) Validate() {
	if r.Flags.Has(CertificateOK|SignatureOK) && !r.HasCertificateError() && !r.HasSignatureError() {
		r.Flags |= OK
	} else {
		r.Flags &^= OK
	}
}

// IsOK returns the classification computed by Validate
func (r *VerificationResult) IsOK() bool {
	return r.Flags.Has(OK)
}

// Signer returns the first certificate snapshot, the signer on success
func (r *VerificationResult) Signer() *trust.CertificateInfo {
	if len(r.CertificateInfos) == 0 {
		return nil
	}
	return &r.CertificateInfos[0]
}

// CertificateSummary is the JSON form of a CertificateInfo
type CertificateSummary struct {
	Subject    string    `json:"subject"`
	CommonName string    `json:"common_name,omitempty"`
	KeyType    string    `json:"key_type"`
	KeySize    int32     `json:"key_size"`
	KeyUsage   []string  `json:"key_usage,omitempty"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidTo    time.Time `json:"valid_to"`
}

// Summarize converts a CertificateInfo for presentation
func Summarize(info *trust.CertificateInfo) CertificateSummary {
	return CertificateSummary{
		Subject:    info.Subject(),
		CommonName: info.Name(trust.NameCommonName),
		KeyType:    info.PublicKey.String(),
		KeySize:    info.KeySize,
		KeyUsage:   info.KeyUsage.Names(),
		ValidFrom:  info.NotValidBefore,
		ValidTo:    info.NotValidAfter,
	}
}

// MarshalJSON adds the classification, flag names and certificate summaries
func (r *VerificationResult) MarshalJSON() ([]byte, error) {
	type plain VerificationResult
	certs := make([]CertificateSummary, 0, len(r.CertificateInfos))
	for i := range r.CertificateInfos {
		certs = append(certs, Summarize(&r.CertificateInfos[i]))
	}
	return json.Marshal(struct {
		OK           bool                 `json:"ok"`
		Flags        []string             `json:"flags"`
		Certificates []CertificateSummary `json:"certificates"`
		*plain
	}{
		OK:           r.IsOK(),
		Flags:        r.Flags.Names(),
		Certificates: certs,
		plain:        (*plain)(r),
	})
}
