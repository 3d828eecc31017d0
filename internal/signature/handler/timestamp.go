package handler

import (
	"bytes"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/signeddata"
)

// DocTimeStamp verifies ETSI.RFC3161 document time-stamps. /Contents is a
// time-stamp token whose imprint is the digest of the signed data.
type DocTimeStamp struct{}

// NewDocTimeStamp returns the ETSI.RFC3161 handler
func NewDocTimeStamp() *DocTimeStamp {
	return &DocTimeStamp{}
}

func (h *DocTimeStamp) SubFilter() string {
	return signature.SubFilterRFC3161
}

func (h *DocTimeStamp) VerifyCertificate(req *Request, result *signature.VerificationResult) {
	guard := req.Params.CryptoBackend().Acquire()
	defer guard.Release()

	der, err := trimPadding(req.dictionary().Contents)
	if err != nil {
		result.AddCertificateError(signature.CertificateInvalid)
		return
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		result.AddCertificateError(signature.CertificateInvalid)
		return
	}

	if ts, err := timestamp.Parse(der); err == nil {
		verifyContainerCertificatesAt(guard, req, p7, ts.Time, result)
		return
	}
	verifyContainerCertificates(guard, req, p7, result)
}

func (h *DocTimeStamp) VerifySignature(req *Request, result *signature.VerificationResult) {
	guard := req.Params.CryptoBackend().Acquire()
	defer guard.Release()

	dict := req.dictionary()
	der, err := trimPadding(dict.Contents)
	if err != nil {
		result.AddSignatureError(signature.SignatureInvalid)
		return
	}
	p7, err := pkcs7.Parse(der)
	if err != nil {
		result.AddSignatureError(signature.SignatureInvalid)
		return
	}

	rec := signeddata.Reconstruct(dict, req.Document, result)
	if rec == nil {
		return
	}

	// The token signs its own TSTInfo; the document is bound by the imprint.
	verifyContainerSignatures(p7, p7.Content, result)
	if result.HasSignatureError() {
		return
	}

	ts, err := timestamp.Parse(der)
	if err != nil {
		log.Debug().Err(err).Msg("unreadable time-stamp token")
		result.AddSignatureError(signature.SignatureDataOther)
		return
	}
	if !ts.HashAlgorithm.Available() {
		result.AddSignatureError(signature.SignatureDataOther)
		return
	}

	digester := ts.HashAlgorithm.New()
	digester.Write(rec.Data)
	if !bytes.Equal(digester.Sum(nil), ts.HashedMessage) {
		result.AddSignatureError(signature.SignatureDigestFailure)
	}
}
