package handler

import (
	"bytes"
	"crypto"
	_ "crypto/md5"
	"crypto/rsa"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/signeddata"
)

// Digest algorithm identifiers accepted inside a DigestInfo
var (
	oidMD5    = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 5}
	oidSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

var (
	errSignatureRange   = errors.New("signature representative out of range")
	errPadding          = errors.New("invalid PKCS #1 v1.5 padding")
	errUnknownAlgorithm = errors.New("unsupported digest algorithm")
)

type digestInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	Digest    []byte
}

// RawRSA verifies adbe.x509.rsa_sha1: a bare PKCS #1 v1.5 signature with
// the certificates listed in /Cert, signer first
type RawRSA struct{}

// NewRawRSA returns the adbe.x509.rsa_sha1 handler
func NewRawRSA() *RawRSA {
	return &RawRSA{}
}

func (h *RawRSA) SubFilter() string {
	return signature.SubFilterX509RSASHA1
}

func (h *RawRSA) VerifyCertificate(req *Request, result *signature.VerificationResult) {
	guard := req.Params.CryptoBackend().Acquire()
	defer guard.Release()

	dict := req.dictionary()
	if len(dict.Certificates) == 0 {
		result.AddCertificateError(signature.CertificateMissing)
		return
	}

	certs := make([]*x509.Certificate, 0, len(dict.Certificates))
	for _, der := range dict.Certificates {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			log.Debug().Err(err).Msg("unreadable certificate in /Cert")
			result.AddCertificateError(signature.CertificateInvalid)
			return
		}
		certs = append(certs, cert)
	}

	chain := req.Params.ChainVerifier().Verify(guard, certs[0], certs, dict.SigningTime, nil)
	recordChain(guard, result, chain)
}

func (h *RawRSA) VerifySignature(req *Request, result *signature.VerificationResult) {
	guard := req.Params.CryptoBackend().Acquire()
	defer guard.Release()

	dict := req.dictionary()
	if len(dict.Certificates) == 0 {
		result.AddSignatureError(signature.SignatureSourceCertificateMissing)
		return
	}
	cert, err := x509.ParseCertificate(dict.Certificates[0])
	if err != nil {
		result.AddSignatureError(signature.SignatureSourceCertificateMissing)
		return
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		result.AddSignatureError(signature.SignatureSourceCertificateMissing)
		return
	}

	rec := signeddata.Reconstruct(dict, req.Document, result)
	if rec == nil {
		return
	}

	var sig []byte
	if _, err := asn1.Unmarshal(dict.Contents, &sig); err != nil {
		result.AddSignatureError(signature.SignatureInvalid)
		return
	}

	hash, digest, err := recoverDigestInfo(pub, sig)
	if err != nil {
		log.Debug().Err(err).Msg("cannot recover digest info")
		result.AddSignatureError(signature.SignatureDataOther)
		return
	}

	digester := hash.New()
	digester.Write(rec.Data)
	if !bytes.Equal(digester.Sum(nil), digest) {
		result.AddSignatureError(signature.SignatureDigestFailure)
	}
}

// recoverDigestInfo applies the public key to sig, strips the block type 1
// padding and decodes the DigestInfo it carried
func recoverDigestInfo(pub *rsa.PublicKey, sig []byte) (crypto.Hash, []byte, error) {
	k := (pub.N.BitLen() + 7) / 8
	if len(sig) != k {
		return 0, nil, errSignatureRange
	}

	c := new(big.Int).SetBytes(sig)
	if c.Cmp(pub.N) >= 0 {
		return 0, nil, errSignatureRange
	}
	em := new(big.Int).Exp(c, big.NewInt(int64(pub.E)), pub.N).FillBytes(make([]byte, k))

	if em[0] != 0x00 || em[1] != 0x01 {
		return 0, nil, errPadding
	}
	i := 2
	for i < len(em) && em[i] == 0xff {
		i++
	}
	if i-2 < 8 || i >= len(em) || em[i] != 0x00 {
		return 0, nil, errPadding
	}

	var info digestInfo
	rest, err := asn1.Unmarshal(em[i+1:], &info)
	if err != nil {
		return 0, nil, fmt.Errorf("decode digest info: %w", err)
	}
	if len(rest) > 0 {
		return 0, nil, errPadding
	}

	hash, err := hashForOID(info.Algorithm.Algorithm)
	if err != nil {
		return 0, nil, err
	}
	if len(info.Digest) != hash.Size() {
		return 0, nil, fmt.Errorf("digest length %d does not match %s", len(info.Digest), hash)
	}
	return hash, info.Digest, nil
}

func hashForOID(oid asn1.ObjectIdentifier) (crypto.Hash, error) {
	switch {
	case oid.Equal(oidMD5):
		return crypto.MD5, nil
	case oid.Equal(oidSHA1):
		return crypto.SHA1, nil
	case oid.Equal(oidSHA256):
		return crypto.SHA256, nil
	case oid.Equal(oidSHA384):
		return crypto.SHA384, nil
	case oid.Equal(oidSHA512):
		return crypto.SHA512, nil
	}
	return 0, fmt.Errorf("%w: %s", errUnknownAlgorithm, oid)
}
