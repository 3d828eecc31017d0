package handler

import (
	"bytes"
	"crypto/sha1"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/signeddata"
)

// PKCS7 verifies signatures packaged as a CMS SignedData container
type PKCS7 struct {
	subFilter string
	// digestFirst reduces the signed data to its SHA-1 digest before
	// verification, the adbe.pkcs7.sha1 encoding
	digestFirst bool
}

// NewDetached returns the handler of a detached container
func NewDetached(subFilter string) *PKCS7 {
	return &PKCS7{subFilter: subFilter}
}

// NewSHA1 returns the handler of adbe.pkcs7.sha1
func NewSHA1() *PKCS7 {
	return &PKCS7{subFilter: signature.SubFilterPKCS7SHA1, digestFirst: true}
}

func (h *PKCS7) SubFilter() string {
	return h.subFilter
}

func (h *PKCS7) VerifyCertificate(req *Request, result *signature.VerificationResult) {
	guard := req.Params.CryptoBackend().Acquire()
	defer guard.Release()

	p7, err := parseContainer(req.dictionary().Contents)
	if err != nil {
		result.AddCertificateError(signature.CertificateInvalid)
		return
	}
	verifyContainerCertificates(guard, req, p7, result)
}

func (h *PKCS7) VerifySignature(req *Request, result *signature.VerificationResult) {
	guard := req.Params.CryptoBackend().Acquire()
	defer guard.Release()

	dict := req.dictionary()
	p7, err := parseContainer(dict.Contents)
	if err != nil {
		result.AddSignatureError(signature.SignatureInvalid)
		return
	}

	rec := signeddata.Reconstruct(dict, req.Document, result)
	if rec == nil {
		return
	}

	content := rec.Data
	if h.digestFirst {
		sum := sha1.Sum(content)
		content = sum[:]
		if len(p7.Content) > 0 && !bytes.Equal(p7.Content, content) {
			result.AddSignatureError(signature.SignatureDigestFailure)
			return
		}
	}

	verifyContainerSignatures(p7, content, result)
}
