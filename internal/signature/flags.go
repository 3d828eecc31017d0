package signature

import (
	"fmt"
	"strings"
)

// Flags is the set of error, warning and status bits of a VerificationResult
type Flags uint32

const (
	CertificateOK Flags = 1 << iota
	CertificateInvalid
	CertificateNoSignatures
	CertificateMissing
	CertificateGeneric
	CertificateExpired
	CertificateSelfSigned
	CertificateSelfSignedInChain
	CertificateTrustedNotFound
	CertificateRevoked
	CertificateOther

	SignatureOK
	SignatureInvalid
	SignatureNoSignaturesFound
	SignatureSourceCertificateMissing
	SignatureDigestFailure
	SignatureDataOther
	SignatureDataCoveredBySignatureMissing

	WarningNotCoveredBytes

	NoHandler

	OK
)

// CertificateErrors masks every certificate error kind
const CertificateErrors = CertificateInvalid | CertificateNoSignatures | CertificateMissing |
	CertificateGeneric | CertificateExpired | CertificateSelfSigned | CertificateSelfSignedInChain |
	CertificateTrustedNotFound | CertificateRevoked | CertificateOther

// SignatureErrors masks every signature error kind. NoHandler counts as one.
const SignatureErrors = SignatureInvalid | SignatureNoSignaturesFound | SignatureSourceCertificateMissing |
	SignatureDigestFailure | SignatureDataOther | SignatureDataCoveredBySignatureMissing | NoHandler

// Warnings masks every warning kind
const Warnings = WarningNotCoveredBytes

var flagNames = []struct {
	flag Flags
	name string
}{
	{CertificateOK, "certificate_ok"},
	{CertificateInvalid, "certificate_invalid"},
	{CertificateNoSignatures, "certificate_no_signatures"},
	{CertificateMissing, "certificate_missing"},
	{CertificateGeneric, "certificate_generic"},
	{CertificateExpired, "certificate_expired"},
	{CertificateSelfSigned, "certificate_self_signed"},
	{CertificateSelfSignedInChain, "certificate_self_signed_in_chain"},
	{CertificateTrustedNotFound, "certificate_trusted_not_found"},
	{CertificateRevoked, "certificate_revoked"},
	{CertificateOther, "certificate_other"},
	{SignatureOK, "signature_ok"},
	{SignatureInvalid, "signature_invalid"},
	{SignatureNoSignaturesFound, "signature_no_signatures_found"},
	{SignatureSourceCertificateMissing, "signature_source_certificate_missing"},
	{SignatureDigestFailure, "signature_digest_failure"},
	{SignatureDataOther, "signature_data_other"},
	{SignatureDataCoveredBySignatureMissing, "signature_data_covered_by_signature_missing"},
	{WarningNotCoveredBytes, "warning_not_covered_bytes"},
	{NoHandler, "no_handler"},
	{OK, "ok"},
}

// Has reports whether every bit of f is set
func (s Flags) Has(f Flags) bool {
	return s&f == f
}

// Any reports whether at least one bit of mask is set
func (s Flags) Any(mask Flags) bool {
	return s&mask != 0
}

// Names lists the set flags in declaration order
func (s Flags) Names() []string {
	names := make([]string, 0, 4)
	for _, n := range flagNames {
		if s.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

func (s Flags) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

// Message texts shown to users
const (
	msgCertificateInvalid           = "Certificate format is invalid."
	msgCertificateNoSignatures      = "No signatures in certificate data."
	msgCertificateMissing           = "Certificate is missing."
	msgCertificateGeneric           = "Generic error occured during certificate validation."
	msgCertificateExpired           = "Certificate has expired."
	msgCertificateSelfSigned        = "Certificate is self-signed."
	msgCertificateSelfSignedInChain = "Self-signed certificate in chain."
	msgCertificateTrustedNotFound   = "Trusted certificate not found."
	msgCertificateRevoked           = "Certificate has been revoked."
	msgCertificateOther             = "Certificate validation failed with code %d."

	msgSignatureInvalid                       = "Signature is invalid."
	msgSignatureNoSignaturesFound             = "No signatures found in certificate."
	msgSignatureSourceCertificateMissing      = "Signature certificate is missing."
	msgSignatureDigestFailure                 = "Signed data has different hash function digest."
	msgSignatureDataOther                     = "Signed data are invalid."
	msgSignatureDataCoveredBySignatureMissing = "Data covered by signature are not present."

	msgWarningNotCoveredBytes = "%d bytes are not covered by signature."

	msgNoHandler = "No signature handler for signature format '%s'."
)

func certificateMessage(f Flags, code int) string {
	switch f {
	case CertificateInvalid:
		return msgCertificateInvalid
	case CertificateNoSignatures:
		return msgCertificateNoSignatures
	case CertificateMissing:
		return msgCertificateMissing
	case CertificateGeneric:
		return msgCertificateGeneric
	case CertificateExpired:
		return msgCertificateExpired
	case CertificateSelfSigned:
		return msgCertificateSelfSigned
	case CertificateSelfSignedInChain:
		return msgCertificateSelfSignedInChain
	case CertificateTrustedNotFound:
		return msgCertificateTrustedNotFound
	case CertificateRevoked:
		return msgCertificateRevoked
	case CertificateOther:
		return fmt.Sprintf(msgCertificateOther, code)
	default:
		return msgCertificateGeneric
	}
}

func signatureMessage(f Flags) string {
	switch f {
	case SignatureInvalid:
		return msgSignatureInvalid
	case SignatureNoSignaturesFound:
		return msgSignatureNoSignaturesFound
	case SignatureSourceCertificateMissing:
		return msgSignatureSourceCertificateMissing
	case SignatureDigestFailure:
		return msgSignatureDigestFailure
	case SignatureDataOther:
		return msgSignatureDataOther
	case SignatureDataCoveredBySignatureMissing:
		return msgSignatureDataCoveredBySignatureMissing
	default:
		return msgSignatureDataOther
	}
}
