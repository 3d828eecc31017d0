// Package pdfsig provides a public API for verifying PDF digital signatures.
//
// Every signature field of a document is checked against the signed byte
// ranges and its signer certificate chain is checked against a certificate
// store.
//
// Example usage:
//
//	store := pdfsig.NewCertificateStore()
//	if _, err := store.AddCertificatesFromFile(pdfsig.EntryTypeUser, "root-ca.pem"); err != nil {
//	    log.Fatal(err)
//	}
//	v := pdfsig.NewVerifier(store, pdfsig.DefaultOptions())
//	results, err := v.Verify(ctx, f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(results[0].IsOK())
package pdfsig

import (
	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

// Re-export core types for public API
type (
	VerificationResult  = signature.VerificationResult
	Flags               = signature.Flags
	Field               = signature.Field
	SignatureDictionary = signature.SignatureDictionary
	SignatureError      = signature.SignatureError
	CertificateStore    = trust.CertificateStore
	CertificateInfo     = trust.CertificateInfo
	EntryType           = trust.EntryType
)

// Re-export entry types
const (
	EntryTypeUser   = trust.EntryTypeUser
	EntryTypeSystem = trust.EntryTypeSystem
)

// Re-export result flags
const (
	OK                         = signature.OK
	CertificateOK              = signature.CertificateOK
	CertificateExpired         = signature.CertificateExpired
	CertificateRevoked         = signature.CertificateRevoked
	CertificateTrustedNotFound = signature.CertificateTrustedNotFound
	SignatureOK                = signature.SignatureOK
	SignatureDigestFailure     = signature.SignatureDigestFailure
	SignatureInvalid           = signature.SignatureInvalid
	WarningNotCoveredBytes     = signature.WarningNotCoveredBytes
	NoHandler                  = signature.NoHandler
)

// Re-export error codes
const (
	ErrCodeInvalidDocument   = signature.ErrCodeInvalidDocument
	ErrCodeNoSignature       = signature.ErrCodeNoSignature
	ErrCodeUnsupportedFormat = signature.ErrCodeUnsupportedFormat
)

// NewCertificateStore creates an empty certificate store
func NewCertificateStore() *CertificateStore {
	return trust.NewCertificateStore()
}

// LoadCertificateStore reads a store written by CertificateStore.SaveFile
func LoadCertificateStore(path string) (*CertificateStore, error) {
	return trust.LoadFile(path)
}
