// Package testpki creates throwaway certificate hierarchies, CMS containers
// and minimal signed PDF files for tests.
package testpki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/digitorus/pkcs7"
	"github.com/digitorus/timestamp"
)

var serial atomic.Int64

func nextSerial() *big.Int {
	return big.NewInt(serial.Add(1) + 100)
}

// PKI is a root CA with one intermediate CA
type PKI struct {
	RootKey         *rsa.PrivateKey
	Root            *x509.Certificate
	IntermediateKey *rsa.PrivateKey
	Intermediate    *x509.Certificate
}

// CertOption adjusts a certificate template before it is signed
type CertOption func(*x509.Certificate)

// WithValidity overrides the validity window
func WithValidity(notBefore, notAfter time.Time) CertOption {
	return func(c *x509.Certificate) {
		c.NotBefore = notBefore
		c.NotAfter = notAfter
	}
}

// WithSubject overrides the subject
func WithSubject(name pkix.Name) CertOption {
	return func(c *x509.Certificate) {
		c.Subject = name
	}
}

// GenerateKey creates an RSA key for tests
func GenerateKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

// New creates a root and an intermediate CA valid for ten years around now
func New(t testing.TB) *PKI {
	t.Helper()

	rootKey := GenerateKey(t)
	rootTemplate := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:   "Test Root CA",
			Organization: []string{"Test PKI"},
		},
		NotBefore:             time.Now().AddDate(-10, 0, 0),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{1, 2, 3, 4},
	}
	root := create(t, rootTemplate, rootTemplate, rootKey, rootKey)

	interKey := GenerateKey(t)
	interTemplate := &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:   "Test Intermediate CA",
			Organization: []string{"Test PKI"},
		},
		NotBefore:             time.Now().AddDate(-10, 0, 0),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          []byte{5, 6, 7, 8},
		AuthorityKeyId:        root.SubjectKeyId,
	}
	inter := create(t, interTemplate, root, interKey, rootKey)

	return &PKI{
		RootKey:         rootKey,
		Root:            root,
		IntermediateKey: interKey,
		Intermediate:    inter,
	}
}

// IssueLeaf creates a signing certificate issued by the intermediate CA
func (p *PKI) IssueLeaf(t testing.TB, commonName string, opts ...CertOption) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key := GenerateKey(t)
	template := leafTemplate(commonName)
	template.AuthorityKeyId = p.Intermediate.SubjectKeyId
	for _, opt := range opts {
		opt(template)
	}
	return key, create(t, template, p.Intermediate, key, p.IntermediateKey)
}

// Chain returns the CA certificates above a leaf, nearest first
func (p *PKI) Chain() []*x509.Certificate {
	return []*x509.Certificate{p.Intermediate, p.Root}
}

// SelfSigned creates a self-signed end-entity certificate
func SelfSigned(t testing.TB, commonName string, opts ...CertOption) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key := GenerateKey(t)
	template := leafTemplate(commonName)
	for _, opt := range opts {
		opt(template)
	}
	return key, create(t, template, template, key, key)
}

// RevocationList creates a CRL issued by the intermediate CA revoking serials
func (p *PKI) RevocationList(t testing.TB, serials ...*big.Int) []byte {
	t.Helper()

	entries := make([]x509.RevocationListEntry, 0, len(serials))
	for _, s := range serials {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   s,
			RevocationTime: time.Now().Add(-time.Minute),
		})
	}

	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(1),
		ThisUpdate:                time.Now().Add(-time.Hour),
		NextUpdate:                time.Now().Add(24 * time.Hour),
		RevokedCertificateEntries: entries,
	}, p.Intermediate, p.IntermediateKey)
	if err != nil {
		t.Fatalf("failed to create CRL: %v", err)
	}
	return der
}

func leafTemplate(commonName string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber: nextSerial(),
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"Test Signers"},
			Country:      []string{"CZ"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageEmailProtection},
		BasicConstraintsValid: true,
	}
}

func create(t testing.TB, template, parent *x509.Certificate, key *rsa.PrivateKey, parentKey *rsa.PrivateKey) *x509.Certificate {
	t.Helper()

	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	if err != nil {
		t.Fatalf("failed to create certificate %q: %v", template.Subject.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate %q: %v", template.Subject.CommonName, err)
	}
	return cert
}

// PEM encodes certificates as PEM blocks
func PEM(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}

// SignOptions tune the CMS container produced by Sign
type SignOptions struct {
	// Detached omits the content from the container
	Detached bool
	// Attributes are added to the signed attributes
	Attributes []pkcs7.Attribute
}

// Sign creates a SHA-256 CMS SignedData over content
func Sign(t testing.TB, content []byte, key crypto.PrivateKey, cert *x509.Certificate, parents []*x509.Certificate, opts SignOptions) []byte {
	t.Helper()

	sd, err := pkcs7.NewSignedData(content)
	if err != nil {
		t.Fatalf("failed to create signed data: %v", err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	config := pkcs7.SignerInfoConfig{ExtraSignedAttributes: opts.Attributes}
	if err := sd.AddSignerChain(cert, key, parents, config); err != nil {
		t.Fatalf("failed to add signer: %v", err)
	}
	if opts.Detached {
		sd.Detach()
	}

	der, err := sd.Finish()
	if err != nil {
		t.Fatalf("failed to finish signed data: %v", err)
	}
	return der
}

// RawRSASignature creates the /Contents of an adbe.x509.rsa_sha1 signature:
// a DER OCTET STRING holding a PKCS#1 v1.5 signature of data
func RawRSASignature(t testing.TB, key *rsa.PrivateKey, hash crypto.Hash, data []byte) []byte {
	t.Helper()

	h := hash.New()
	h.Write(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, hash, h.Sum(nil))
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	der, err := asn1.Marshal(sig)
	if err != nil {
		t.Fatalf("failed to marshal signature: %v", err)
	}
	return der
}

// TimestampToken creates an RFC 3161 time-stamp token over data signed by
// cert. The token embeds cert and parents.
func TimestampToken(t testing.TB, data []byte, at time.Time, key *rsa.PrivateKey, cert *x509.Certificate, parents []*x509.Certificate) []byte {
	t.Helper()

	digest := crypto.SHA256.New()
	digest.Write(data)

	ts := &timestamp.Timestamp{
		HashAlgorithm:     crypto.SHA256,
		HashedMessage:     digest.Sum(nil),
		Time:              at,
		Policy:            asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1},
		AddTSACertificate: true,
		Certificates:      parents,
	}
	resp, err := ts.CreateResponseWithOpts(cert, key, crypto.SHA256)
	if err != nil {
		t.Fatalf("failed to create time-stamp response: %v", err)
	}

	var envelope struct {
		Status asn1.RawValue
		Token  asn1.RawValue `asn1:"optional"`
	}
	if _, err := asn1.Unmarshal(resp, &envelope); err != nil {
		t.Fatalf("failed to unwrap time-stamp response: %v", err)
	}
	return envelope.Token.FullBytes
}
