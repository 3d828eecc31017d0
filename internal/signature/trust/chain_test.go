package trust

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
	"github.com/rezonia/pdfsig-verifier/internal/testpki"
)

func storeWith(t *testing.T, certs ...*x509.Certificate) *CertificateStore {
	t.Helper()
	store := NewCertificateStore(WithBackend(backend.New("chain-test")))
	for _, c := range certs {
		_, err := store.AddDER(EntryTypeUser, c.Raw)
		require.NoError(t, err)
	}
	return store
}

func verifyChain(t *testing.T, v *ChainVerifier, leaf *x509.Certificate, supplied []*x509.Certificate, checker RevocationChecker) ChainResult {
	t.Helper()
	guard := backend.New("chain-test").Acquire()
	defer guard.Release()
	return v.Verify(guard, leaf, supplied, time.Time{}, checker)
}

func TestChainVerifier_Trusted(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{})
	result := verifyChain(t, v, leaf, []*x509.Certificate{leaf, pki.Intermediate}, nil)

	require.True(t, result.OK(), "unexpected status %s: %v", result.Status, result.Err)
	require.Len(t, result.Certificates, 3)
	assert.True(t, result.Certificates[0].Equal(leaf))
	assert.True(t, result.Certificates[2].Equal(pki.Root))
}

func TestChainVerifier_LeafMissingFromSupplied(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{})
	result := verifyChain(t, v, leaf, []*x509.Certificate{pki.Intermediate}, nil)

	assert.Equal(t, ChainOK, result.Status)
}

func TestChainVerifier_Failures(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")
	_, selfSigned := testpki.SelfSigned(t, "Lonely Signer")

	tests := []struct {
		name     string
		store    *CertificateStore
		leaf     *x509.Certificate
		supplied []*x509.Certificate
		want     ChainStatus
	}{
		{
			name:     "no anchors",
			store:    storeWith(t),
			leaf:     leaf,
			supplied: []*x509.Certificate{leaf, pki.Intermediate},
			want:     ChainTrustedNotFound,
		},
		{
			name:     "self-signed leaf",
			store:    storeWith(t),
			leaf:     selfSigned,
			supplied: []*x509.Certificate{selfSigned},
			want:     ChainSelfSigned,
		},
		{
			name:     "self-signed root supplied but not trusted",
			store:    storeWith(t),
			leaf:     leaf,
			supplied: []*x509.Certificate{leaf, pki.Intermediate, pki.Root},
			want:     ChainSelfSignedInChain,
		},
		{
			name:     "anchor of a different hierarchy",
			store:    storeWith(t, testpki.New(t).Root),
			leaf:     leaf,
			supplied: []*x509.Certificate{leaf, pki.Intermediate},
			want:     ChainTrustedNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewChainVerifier(tt.store, ChainOptions{})
			result := verifyChain(t, v, tt.leaf, tt.supplied, nil)

			assert.Equal(t, tt.want, result.Status)
			assert.Error(t, result.Err)
			assert.NotEmpty(t, result.Certificates)
		})
	}
}

func TestChainVerifier_Expired(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Expired Signer",
		testpki.WithValidity(time.Now().AddDate(-2, 0, 0), time.Now().AddDate(-1, 0, 0)))
	supplied := []*x509.Certificate{leaf, pki.Intermediate}

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{})
	result := verifyChain(t, v, leaf, supplied, nil)
	assert.Equal(t, ChainExpired, result.Status)

	lenient := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{IgnoreExpiration: true})
	result = verifyChain(t, lenient, leaf, supplied, nil)
	assert.Equal(t, ChainOK, result.Status, "err: %v", result.Err)
}

func TestChainVerifier_IgnoreExpirationAtSigningTime(t *testing.T) {
	pki := testpki.New(t)
	notBefore := time.Now().AddDate(-3, 0, 0)
	_, leaf := pki.IssueLeaf(t, "Old Signer", testpki.WithValidity(notBefore, notBefore.AddDate(1, 0, 0)))

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{IgnoreExpiration: true})
	guard := backend.New("chain-test").Acquire()
	defer guard.Release()

	result := v.Verify(guard, leaf, []*x509.Certificate{pki.Intermediate}, notBefore.AddDate(0, 6, 0), nil)
	assert.Equal(t, ChainOK, result.Status)
}

func TestChainVerifier_IgnoreExpirationNoCommonWindow(t *testing.T) {
	pki := testpki.New(t)
	future := time.Now().AddDate(30, 0, 0)
	_, leaf := pki.IssueLeaf(t, "Future Signer", testpki.WithValidity(future, future.AddDate(1, 0, 0)))
	supplied := []*x509.Certificate{leaf, pki.Intermediate}

	strict := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{})
	result := verifyChain(t, strict, leaf, supplied, nil)
	assert.Equal(t, ChainExpired, result.Status)

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{IgnoreExpiration: true})
	result = verifyChain(t, v, leaf, supplied, nil)

	require.Equal(t, ChainOK, result.Status, "err: %v", result.Err)
	require.Len(t, result.Certificates, 3)
	assert.True(t, result.Certificates[0].Equal(leaf))
	assert.True(t, result.Certificates[1].Equal(pki.Intermediate))
	assert.True(t, result.Certificates[2].Equal(pki.Root))
}

func TestChainVerifier_IgnoreExpirationReportsUnderlyingCause(t *testing.T) {
	pki := testpki.New(t)
	past := time.Now().AddDate(-40, 0, 0)
	future := time.Now().AddDate(30, 0, 0)
	_, expired := pki.IssueLeaf(t, "Expired Signer", testpki.WithValidity(past, past.AddDate(1, 0, 0)))
	_, early := pki.IssueLeaf(t, "Future Signer", testpki.WithValidity(future, future.AddDate(1, 0, 0)))

	tests := []struct {
		name     string
		store    *CertificateStore
		leaf     *x509.Certificate
		supplied []*x509.Certificate
		want     ChainStatus
	}{
		{
			name:     "expired leaf without anchors",
			store:    storeWith(t),
			leaf:     expired,
			supplied: []*x509.Certificate{expired, pki.Intermediate},
			want:     ChainTrustedNotFound,
		},
		{
			name:     "not yet valid leaf without anchors",
			store:    storeWith(t),
			leaf:     early,
			supplied: []*x509.Certificate{early, pki.Intermediate},
			want:     ChainTrustedNotFound,
		},
		{
			name:     "expired leaf with untrusted root supplied",
			store:    storeWith(t),
			leaf:     expired,
			supplied: []*x509.Certificate{expired, pki.Intermediate, pki.Root},
			want:     ChainSelfSignedInChain,
		},
		{
			name:     "expired leaf under another hierarchy",
			store:    storeWith(t, testpki.New(t).Root),
			leaf:     expired,
			supplied: []*x509.Certificate{expired, pki.Intermediate},
			want:     ChainTrustedNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewChainVerifier(tt.store, ChainOptions{IgnoreExpiration: true})
			result := verifyChain(t, v, tt.leaf, tt.supplied, nil)

			assert.Equal(t, tt.want, result.Status, "err: %v", result.Err)
			assert.False(t, isExpired(result.Err), "expiry must not be reported: %v", result.Err)
			assert.NotEqual(t, ChainOther, result.Status)
		})
	}
}

func TestChainVerifier_IgnoreExpirationExpiredIntermediate(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")

	// re-issue the intermediate with a window that ended long ago
	staleTemplate := *pki.Intermediate
	staleTemplate.NotBefore = time.Now().AddDate(-40, 0, 0)
	staleTemplate.NotAfter = time.Now().AddDate(-39, 0, 0)
	der, err := x509.CreateCertificate(rand.Reader, &staleTemplate, pki.Root, pki.IntermediateKey.Public(), pki.RootKey)
	require.NoError(t, err)
	stale, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	supplied := []*x509.Certificate{leaf, stale}

	strict := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{})
	assert.False(t, verifyChain(t, strict, leaf, supplied, nil).OK())

	lenient := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{IgnoreExpiration: true})
	result := verifyChain(t, lenient, leaf, supplied, nil)
	require.Equal(t, ChainOK, result.Status, "err: %v", result.Err)
	assert.Len(t, result.Certificates, 3)
}

func TestIssuerOf(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")

	assert.True(t, issuerOf(leaf, []*x509.Certificate{pki.Root, pki.Intermediate}).Equal(pki.Intermediate))
	assert.True(t, issuerOf(pki.Intermediate, []*x509.Certificate{pki.Root}).Equal(pki.Root))
	assert.Nil(t, issuerOf(leaf, []*x509.Certificate{testpki.New(t).Intermediate}))
	assert.Nil(t, issuerOf(pki.Root, []*x509.Certificate{pki.Root}))
}

func TestChainVerifier_Now(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{
		Now: func() time.Time { return time.Now().AddDate(5, 0, 0) },
	})
	result := verifyChain(t, v, leaf, []*x509.Certificate{pki.Intermediate}, nil)
	assert.Equal(t, ChainExpired, result.Status)
}

func TestChainVerifier_Revoked(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Revoked Signer")

	crl := pki.RevocationList(t, leaf.SerialNumber)
	checker := NewArchivalChecker(&InfoArchival{CRL: []asn1.RawValue{{FullBytes: crl}}}, nil)

	v := NewChainVerifier(storeWith(t, pki.Root), ChainOptions{})
	result := verifyChain(t, v, leaf, []*x509.Certificate{leaf, pki.Intermediate}, checker)

	assert.Equal(t, ChainRevoked, result.Status)
	assert.Len(t, result.Certificates, 2)
}

func TestChainVerifier_RequiresGuard(t *testing.T) {
	pki := testpki.New(t)
	_, leaf := pki.IssueLeaf(t, "Signer")
	v := NewChainVerifier(nil, ChainOptions{})

	guard := backend.New("chain-test").Acquire()
	guard.Release()

	assert.Panics(t, func() {
		v.Verify(guard, leaf, nil, time.Time{}, nil)
	})
}

func TestChainStatus_String(t *testing.T) {
	assert.Equal(t, "ok", ChainOK.String())
	assert.Equal(t, "self-signed-in-chain", ChainSelfSignedInChain.String())
	assert.Equal(t, "other", ChainStatus(42).String())
}
