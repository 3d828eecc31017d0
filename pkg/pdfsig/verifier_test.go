package pdfsig_test

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/pdfsig-verifier/internal/testpki"
	"github.com/rezonia/pdfsig-verifier/pkg/pdfsig"
)

func signedDocument(t *testing.T, pki *testpki.PKI) []byte {
	t.Helper()

	key, leaf := pki.IssueLeaf(t, "Lukas Brenner")
	return testpki.BuildSignedPDF(t, testpki.PDFOptions{}, func(signed []byte) []byte {
		return testpki.Sign(t, signed, key, leaf, []*x509.Certificate{pki.Intermediate}, testpki.SignOptions{Detached: true})
	})
}

func trusting(t *testing.T, pki *testpki.PKI) *pdfsig.CertificateStore {
	t.Helper()

	store := pdfsig.NewCertificateStore()
	added, err := store.AddCertificatesFromPEM(pdfsig.EntryTypeUser, testpki.PEM(pki.Root))
	require.NoError(t, err)
	require.Equal(t, 1, added)
	return store
}

func TestDefaultOptions(t *testing.T) {
	opts := pdfsig.DefaultOptions()

	assert.True(t, opts.CheckRevocation)
	assert.False(t, opts.IgnoreExpirationDate)
	assert.False(t, opts.UseSystemStore)
	assert.Equal(t, 1, opts.Workers)
}

func TestVerifier_Verify(t *testing.T) {
	pki := testpki.New(t)
	v := pdfsig.NewVerifier(trusting(t, pki), pdfsig.DefaultOptions())

	results, err := v.Verify(context.Background(), bytes.NewReader(signedDocument(t, pki)))
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, pdfsig.AllOK(results))
	assert.True(t, results[0].Flags.Has(pdfsig.CertificateOK|pdfsig.SignatureOK))
	assert.Contains(t, v.SubFilters(), "adbe.pkcs7.detached")
}

func TestVerifier_UntrustedStore(t *testing.T) {
	pki := testpki.New(t)
	v := pdfsig.NewVerifier(pdfsig.NewCertificateStore(), pdfsig.DefaultOptions())

	results, err := v.VerifyBytes(context.Background(), signedDocument(t, pki))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, pdfsig.AllOK(results))
	assert.True(t, results[0].Flags.Has(pdfsig.CertificateTrustedNotFound))
}

func TestVerifier_NotAPDF(t *testing.T) {
	v := pdfsig.NewVerifier(pdfsig.NewCertificateStore(), pdfsig.DefaultOptions())

	_, err := v.VerifyBytes(context.Background(), []byte("<Invoice/>"))
	var sigErr *pdfsig.SignatureError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, pdfsig.ErrCodeUnsupportedFormat, sigErr.Code)
}

func TestVerifier_VerifyBatch(t *testing.T) {
	pki := testpki.New(t)
	v := pdfsig.NewVerifier(trusting(t, pki), pdfsig.DefaultOptions())

	doc := signedDocument(t, pki)
	inputs := []io.Reader{
		bytes.NewReader(doc),
		bytes.NewReader([]byte("not a pdf")),
		bytes.NewReader(doc),
	}

	results, err := v.VerifyBatch(context.Background(), inputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input 1")

	require.Len(t, results, 3)
	assert.True(t, pdfsig.AllOK(results[0]))
	assert.Nil(t, results[1])
	assert.True(t, pdfsig.AllOK(results[2]))
}

func TestAllOK(t *testing.T) {
	assert.False(t, pdfsig.AllOK(nil))
}
