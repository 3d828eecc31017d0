package handler

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"math/big"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

// oidTimeStampToken is the id-aa-timeStampToken unsigned attribute
var oidTimeStampToken = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 2, 14}

var errTrailingData = errors.New("container followed by non-zero data")

// parseContainer parses a CMS SignedData. /Contents is usually zero padded
// past the DER structure; only zero padding is tolerated.
func parseContainer(contents []byte) (*pkcs7.PKCS7, error) {
	p7, err := pkcs7.Parse(contents)
	if err == nil {
		return p7, nil
	}

	der, trimErr := trimPadding(contents)
	if trimErr != nil {
		return nil, err
	}
	return pkcs7.Parse(der)
}

// trimPadding returns the leading DER element of contents
func trimPadding(contents []byte) ([]byte, error) {
	var raw asn1.RawValue
	rest, err := asn1.Unmarshal(contents, &raw)
	if err != nil {
		return nil, err
	}
	for _, b := range rest {
		if b != 0 {
			return nil, errTrailingData
		}
	}
	return raw.FullBytes, nil
}

// signerCertificate finds the certificate identified by issuer and serial
func signerCertificate(certs []*x509.Certificate, issuer []byte, serial *big.Int) *x509.Certificate {
	if serial == nil {
		return nil
	}
	for _, cert := range certs {
		if cert.SerialNumber.Cmp(serial) == 0 && bytes.Equal(cert.RawIssuer, issuer) {
			return cert
		}
	}
	return nil
}

func signedAttribute(p7 *pkcs7.PKCS7, signer int, oid asn1.ObjectIdentifier) ([]byte, bool) {
	for _, attr := range p7.Signers[signer].AuthenticatedAttributes {
		if attr.Type.Equal(oid) {
			return attr.Value.Bytes, true
		}
	}
	return nil, false
}

func unsignedAttribute(p7 *pkcs7.PKCS7, signer int, oid asn1.ObjectIdentifier) ([]byte, bool) {
	for _, attr := range p7.Signers[signer].UnauthenticatedAttributes {
		if attr.Type.Equal(oid) {
			return attr.Value.Bytes, true
		}
	}
	return nil, false
}

// signingTime prefers an embedded time-stamp token, then /M, then the
// signing-time signed attribute
func signingTime(p7 *pkcs7.PKCS7, signer int, dict *signature.SignatureDictionary) time.Time {
	if raw, ok := unsignedAttribute(p7, signer, oidTimeStampToken); ok {
		ts, err := timestamp.Parse(raw)
		if err == nil {
			return ts.Time
		}
		log.Debug().Err(err).Msg("ignoring unreadable signature time-stamp")
	}

	if !dict.SigningTime.IsZero() {
		return dict.SigningTime
	}

	if raw, ok := signedAttribute(p7, signer, pkcs7.OIDAttributeSigningTime); ok {
		var t time.Time
		if _, err := asn1.Unmarshal(raw, &t); err == nil {
			return t
		}
	}
	return time.Time{}
}

// revocationChecker collects the revocation data of one signer: its archival
// attribute plus the CRLs of the container
func revocationChecker(p7 *pkcs7.PKCS7, signer int, params *signature.Parameters) trust.RevocationChecker {
	if !params.CheckRevocation {
		return nil
	}

	info := &trust.InfoArchival{}
	if raw, ok := signedAttribute(p7, signer, trust.OIDRevocationInfoArchival); ok {
		if _, err := asn1.Unmarshal(raw, info); err != nil {
			log.Debug().Err(err).Msg("ignoring unreadable revocation archival")
			info = &trust.InfoArchival{}
		}
	}
	for _, crl := range p7.CRLs {
		der, err := asn1.Marshal(crl)
		if err != nil {
			continue
		}
		info.CRL = append(info.CRL, asn1.RawValue{FullBytes: der})
	}
	return trust.NewArchivalChecker(info, params.RevocationCache)
}

// recordChain maps a chain outcome to certificate flags and snapshots the
// certificates it involved. The caller must hold guard.
func recordChain(guard *backend.Guard, result *signature.VerificationResult, chain trust.ChainResult) {
	for _, cert := range chain.Certificates {
		result.AddCertificateInfo(trust.Snapshot(guard, cert))
	}

	switch chain.Status {
	case trust.ChainOK:
	case trust.ChainExpired:
		result.AddCertificateError(signature.CertificateExpired)
	case trust.ChainSelfSigned:
		result.AddCertificateError(signature.CertificateSelfSigned)
	case trust.ChainSelfSignedInChain:
		result.AddCertificateError(signature.CertificateSelfSignedInChain)
	case trust.ChainTrustedNotFound:
		result.AddCertificateError(signature.CertificateTrustedNotFound)
	case trust.ChainRevoked:
		result.AddCertificateError(signature.CertificateRevoked)
	case trust.ChainOther:
		result.AddCertificateOtherError(chain.Code)
	default:
		result.AddCertificateError(signature.CertificateGeneric)
	}
}

// verifyContainerCertificates runs chain verification for every signer of
// p7. It stops at the first signer that fails.
func verifyContainerCertificates(guard *backend.Guard, req *Request, p7 *pkcs7.PKCS7, result *signature.VerificationResult) {
	verifyContainerCertificatesAt(guard, req, p7, time.Time{}, result)
}

// verifyContainerCertificatesAt is verifyContainerCertificates with a fixed
// signing time. A zero fixed time is looked up per signer.
func verifyContainerCertificatesAt(guard *backend.Guard, req *Request, p7 *pkcs7.PKCS7, fixed time.Time, result *signature.VerificationResult) {
	if len(p7.Signers) == 0 || len(p7.Certificates) == 0 {
		result.AddCertificateError(signature.CertificateNoSignatures)
		return
	}

	verifier := req.Params.ChainVerifier()
	for i := range p7.Signers {
		issuer := p7.Signers[i].IssuerAndSerialNumber.IssuerName.FullBytes
		cert := signerCertificate(p7.Certificates, issuer, p7.Signers[i].IssuerAndSerialNumber.SerialNumber)
		if cert == nil {
			result.AddCertificateError(signature.CertificateMissing)
			return
		}

		at := fixed
		if at.IsZero() {
			at = signingTime(p7, i, req.dictionary())
		}
		if i == 0 && !at.IsZero() {
			result.SigningTime = &at
		}

		chain := verifier.Verify(guard, cert, p7.Certificates, at, revocationChecker(p7, i, req.Params))
		recordChain(guard, result, chain)
		if !chain.OK() {
			return
		}
	}
}

// verifyContainerSignatures checks every signer of p7 over content
func verifyContainerSignatures(p7 *pkcs7.PKCS7, content []byte, result *signature.VerificationResult) {
	if len(p7.Signers) == 0 || len(p7.Certificates) == 0 {
		result.AddSignatureError(signature.SignatureNoSignaturesFound)
		return
	}

	for i := range p7.Signers {
		issuer := p7.Signers[i].IssuerAndSerialNumber.IssuerName.FullBytes
		if signerCertificate(p7.Certificates, issuer, p7.Signers[i].IssuerAndSerialNumber.SerialNumber) == nil {
			result.AddSignatureError(signature.SignatureSourceCertificateMissing)
			return
		}

		single := *p7
		single.Signers = p7.Signers[i : i+1]
		single.Content = content
		if err := single.Verify(); err != nil {
			log.Debug().Int("signer", i).Err(err).Msg("signer verification failed")
			result.AddSignatureError(classifySignatureError(err))
			return
		}
	}
}

func classifySignatureError(err error) signature.Flags {
	var mismatch *pkcs7.MessageDigestMismatchError
	if errors.As(err, &mismatch) {
		return signature.SignatureDigestFailure
	}
	return signature.SignatureInvalid
}
