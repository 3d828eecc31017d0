package trust

import (
	"bytes"
	"crypto/x509"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
)

// ChainStatus classifies the outcome of chain verification
type ChainStatus int

const (
	ChainOK ChainStatus = iota
	ChainExpired
	ChainSelfSigned
	ChainSelfSignedInChain
	ChainTrustedNotFound
	ChainRevoked
	ChainGeneric
	ChainOther
)

func (s ChainStatus) String() string {
	switch s {
	case ChainOK:
		return "ok"
	case ChainExpired:
		return "expired"
	case ChainSelfSigned:
		return "self-signed"
	case ChainSelfSignedInChain:
		return "self-signed-in-chain"
	case ChainTrustedNotFound:
		return "trusted-not-found"
	case ChainRevoked:
		return "revoked"
	case ChainGeneric:
		return "generic"
	default:
		return "other"
	}
}

// ChainResult is the outcome of verifying one signer certificate
type ChainResult struct {
	Status ChainStatus
	// Code carries the x509.InvalidReason for ChainOther
	Code int
	// Certificates is the trusted chain on success, or every supplied
	// certificate on failure
	Certificates []*x509.Certificate
	Err          error
}

// OK reports whether the chain verified
func (r ChainResult) OK() bool {
	return r.Status == ChainOK
}

// ChainOptions tune a ChainVerifier
type ChainOptions struct {
	// UseSystemStore adds the operating system roots to the store's certificates
	UseSystemStore bool
	// IgnoreExpiration accepts chains that are only invalid because of time
	IgnoreExpiration bool
	// Now returns the verification time; defaults to time.Now
	Now func() time.Time
}

// maxChainLength bounds chains walked without the x509 path builder
const maxChainLength = 10

// ChainVerifier builds certificate chains against a CertificateStore
type ChainVerifier struct {
	store *CertificateStore
	opts  ChainOptions
}

// NewChainVerifier creates a verifier. store may be nil, meaning no user anchors.
func NewChainVerifier(store *CertificateStore, opts ChainOptions) *ChainVerifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ChainVerifier{store: store, opts: opts}
}

// roots builds the anchor pool. The caller must hold guard.
func (v *ChainVerifier) roots(guard *backend.Guard) *x509.CertPool {
	backend.MustHold(guard)

	var pool *x509.CertPool
	if v.opts.UseSystemStore {
		if sys, err := x509.SystemCertPool(); err == nil {
			pool = sys
		} else {
			log.Debug().Err(err).Msg("system certificate pool unavailable")
		}
	}
	if pool == nil {
		pool = x509.NewCertPool()
	}
	if v.store != nil {
		for _, cert := range v.store.Certificates() {
			pool.AddCert(cert)
		}
	}
	return pool
}

// Verify checks leaf against the trust anchors using supplied as the pool of
// candidate intermediates. signingTime may be zero. checker may be nil.
// The caller must hold guard.
func (v *ChainVerifier) Verify(guard *backend.Guard, leaf *x509.Certificate, supplied []*x509.Certificate, signingTime time.Time, checker RevocationChecker) ChainResult {
	backend.MustHold(guard)

	candidates := supplied
	if !containsCert(candidates, leaf) {
		candidates = append([]*x509.Certificate{leaf}, supplied...)
	}

	interPool := x509.NewCertPool()
	for _, cert := range candidates {
		if cert != leaf {
			interPool.AddCert(cert)
		}
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots(guard),
		Intermediates: interPool,
		CurrentTime:   v.opts.Now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}

	chains, err := leaf.Verify(opts)
	// an intermediate outside its window surfaces as an unknown authority
	if err != nil && v.opts.IgnoreExpiration && (isExpired(err) || isUnknownAuthority(err)) {
		for _, at := range alternateTimes(leaf, candidates, signingTime) {
			opts.CurrentTime = at
			retried, retryErr := leaf.Verify(opts)
			if retryErr == nil {
				chains, err = retried, nil
				break
			}
			err = retryErr
		}
		if err != nil && (isExpired(err) || isUnknownAuthority(err)) {
			chains, err = v.buildIgnoringTime(leaf, candidates, opts)
		}
	}

	if err != nil {
		result := classify(leaf, candidates, err, v.opts.IgnoreExpiration)
		result.Certificates = candidates
		log.Debug().
			Str("subject", leaf.Subject.String()).
			Str("status", result.Status.String()).
			Err(err).
			Msg("certificate chain rejected")
		return result
	}

	if len(chains) == 0 {
		return ChainResult{Status: ChainGeneric, Certificates: candidates, Err: errors.New("no valid certificate chains found")}
	}

	chain := chains[0]
	if checker != nil {
		for i := 0; i+1 < len(chain); i++ {
			if checker.IsRevoked(chain[i], chain[i+1]) {
				return ChainResult{Status: ChainRevoked, Certificates: candidates}
			}
		}
	}

	return ChainResult{Status: ChainOK, Certificates: chain}
}

func classify(leaf *x509.Certificate, candidates []*x509.Certificate, err error, ignoreExpiration bool) ChainResult {
	var invalid x509.CertificateInvalidError
	if errors.As(err, &invalid) {
		if invalid.Reason == x509.Expired && !ignoreExpiration {
			return ChainResult{Status: ChainExpired, Err: err}
		}
		return ChainResult{Status: ChainOther, Code: int(invalid.Reason), Err: err}
	}

	var unknown x509.UnknownAuthorityError
	if errors.As(err, &unknown) {
		if isSelfSigned(leaf) {
			return ChainResult{Status: ChainSelfSigned, Err: err}
		}
		for _, cert := range candidates {
			if cert != leaf && isSelfSigned(cert) {
				return ChainResult{Status: ChainSelfSignedInChain, Err: err}
			}
		}
		return ChainResult{Status: ChainTrustedNotFound, Err: err}
	}

	return ChainResult{Status: ChainGeneric, Err: err}
}

// buildIgnoringTime walks from leaf to an anchor by issuer name and signature
// only. It is used when no single instant falls inside every validity period.
// With the system store enabled, the top of the walked chain is verified
// against the system roots inside its own validity window.
func (v *ChainVerifier) buildIgnoringTime(leaf *x509.Certificate, candidates []*x509.Certificate, opts x509.VerifyOptions) ([][]*x509.Certificate, error) {
	var anchors []*x509.Certificate
	if v.store != nil {
		anchors = v.store.Certificates()
	}

	chain := []*x509.Certificate{leaf}
	for current := leaf; len(chain) <= maxChainLength; {
		if containsCert(anchors, current) {
			return [][]*x509.Certificate{chain}, nil
		}
		if anchor := issuerOf(current, anchors); anchor != nil {
			return [][]*x509.Certificate{append(chain, anchor)}, nil
		}
		if isSelfSigned(current) {
			break
		}
		next := issuerOf(current, candidates)
		if next == nil || containsCert(chain, next) {
			break
		}
		chain = append(chain, next)
		current = next
	}

	top := chain[len(chain)-1]
	if v.opts.UseSystemStore && !isSelfSigned(top) {
		sysOpts := x509.VerifyOptions{
			Roots:       opts.Roots,
			CurrentTime: top.NotBefore.Add(top.NotAfter.Sub(top.NotBefore) / 2),
			KeyUsages:   opts.KeyUsages,
		}
		if sys, err := top.Verify(sysOpts); err == nil && len(sys) > 0 {
			return [][]*x509.Certificate{append(chain, sys[0][1:]...)}, nil
		}
	}

	log.Debug().Str("subject", leaf.Subject.String()).Int("depth", len(chain)).Msg("no anchor reached ignoring validity periods")
	return nil, x509.UnknownAuthorityError{Cert: top}
}

// issuerOf returns the certificate in pool that issued cert
func issuerOf(cert *x509.Certificate, pool []*x509.Certificate) *x509.Certificate {
	for _, c := range pool {
		if c == cert || !bytes.Equal(cert.RawIssuer, c.RawSubject) {
			continue
		}
		if cert.CheckSignatureFrom(c) == nil {
			return c
		}
	}
	return nil
}

func isExpired(err error) bool {
	var invalid x509.CertificateInvalidError
	return errors.As(err, &invalid) && invalid.Reason == x509.Expired
}

func isUnknownAuthority(err error) bool {
	var unknown x509.UnknownAuthorityError
	return errors.As(err, &unknown)
}

// alternateTimes lists instants at which a chain that failed only on validity
// periods is retried: the signing time, the middle of the window where every
// supplied certificate is valid, and the edges of the leaf's validity.
func alternateTimes(leaf *x509.Certificate, candidates []*x509.Certificate, signingTime time.Time) []time.Time {
	var times []time.Time
	if !signingTime.IsZero() {
		times = append(times, signingTime)
	}

	from, to := leaf.NotBefore, leaf.NotAfter
	for _, cert := range candidates {
		if cert.NotBefore.After(from) {
			from = cert.NotBefore
		}
		if cert.NotAfter.Before(to) {
			to = cert.NotAfter
		}
	}
	if !from.After(to) {
		times = append(times, from.Add(to.Sub(from)/2))
	}

	times = append(times, leaf.NotBefore.Add(time.Second), leaf.NotAfter.Add(-time.Second))
	return times
}

func isSelfSigned(cert *x509.Certificate) bool {
	if !bytes.Equal(cert.RawIssuer, cert.RawSubject) {
		return false
	}
	return cert.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature) == nil
}

func containsCert(certs []*x509.Certificate, cert *x509.Certificate) bool {
	for _, c := range certs {
		if c == cert || c.Equal(cert) {
			return true
		}
	}
	return false
}
