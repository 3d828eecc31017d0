package trust

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// DefaultStatusCacheTTL is how long a revocation verdict is remembered
const DefaultStatusCacheTTL = 1 * time.Hour

// OIDRevocationInfoArchival is the adbe-revocationInfoArchival signed attribute
var OIDRevocationInfoArchival = asn1.ObjectIdentifier{1, 2, 840, 113583, 1, 1, 8}

// RevocationChecker is consulted for every certificate of a verified chain
type RevocationChecker interface {
	// IsRevoked reports whether cert, issued by issuer, is known to be revoked
	IsRevoked(cert, issuer *x509.Certificate) bool
}

// InfoArchival is the revocation data a signer embeds in its signed attributes
type InfoArchival struct {
	CRL   []asn1.RawValue `asn1:"tag:0,optional,explicit"`
	OCSP  []asn1.RawValue `asn1:"tag:1,optional,explicit"`
	Other []asn1.RawValue `asn1:"tag:2,optional,explicit"`
}

// Empty reports whether no CRL or OCSP data is present
func (a *InfoArchival) Empty() bool {
	return a == nil || (len(a.CRL) == 0 && len(a.OCSP) == 0)
}

// ArchivalChecker checks certificates against embedded revocation data only.
// It never touches the network.
type ArchivalChecker struct {
	info  *InfoArchival
	cache *StatusCache
}

// NewArchivalChecker creates a checker for one signer's embedded data. cache may be nil.
func NewArchivalChecker(info *InfoArchival, cache *StatusCache) *ArchivalChecker {
	return &ArchivalChecker{info: info, cache: cache}
}

// IsRevoked implements RevocationChecker
func (c *ArchivalChecker) IsRevoked(cert, issuer *x509.Certificate) bool {
	if cert == nil || issuer == nil {
		return false
	}

	if revoked, found := c.cache.Get(cert); found && revoked {
		return true
	}

	if c.info.Empty() {
		return false
	}

	revoked := c.checkCRLs(cert, issuer) || c.checkOCSP(cert, issuer)
	if revoked {
		// Only revoked verdicts are cached.
		c.cache.Set(cert, true)
	}
	return revoked
}

func (c *ArchivalChecker) checkCRLs(cert, issuer *x509.Certificate) bool {
	for _, raw := range c.info.CRL {
		crl, err := x509.ParseRevocationList(raw.FullBytes)
		if err != nil {
			continue
		}
		if crl.CheckSignatureFrom(issuer) != nil {
			continue
		}
		for _, entry := range crl.RevokedCertificateEntries {
			if entry.SerialNumber != nil && entry.SerialNumber.Cmp(cert.SerialNumber) == 0 {
				return true
			}
		}
	}
	return false
}

func (c *ArchivalChecker) checkOCSP(cert, issuer *x509.Certificate) bool {
	for _, raw := range c.info.OCSP {
		resp, err := ocsp.ParseResponseForCert(raw.FullBytes, cert, issuer)
		if err != nil {
			continue
		}
		if resp.Status == ocsp.Revoked {
			return true
		}
	}
	return false
}

// StatusCache remembers revocation verdicts by issuer and serial number
type StatusCache struct {
	mu      sync.RWMutex
	entries map[string]*statusCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type statusCacheEntry struct {
	revoked   bool
	expiresAt time.Time
}

// NewStatusCache creates a new cache
func NewStatusCache(ttl time.Duration) *StatusCache {
	return &StatusCache{
		entries: make(map[string]*statusCacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a cached verdict. A nil cache never hits.
func (c *StatusCache) Get(cert *x509.Certificate) (revoked bool, found bool) {
	if c == nil || cert == nil {
		return false, false
	}

	key := certCacheKey(cert)

	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return false, false
	}

	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, false
	}

	return entry.revoked, true
}

// Set caches a verdict
func (c *StatusCache) Set(cert *x509.Certificate, revoked bool) {
	if c == nil || cert == nil {
		return
	}

	key := certCacheKey(cert)

	c.mu.Lock()
	c.entries[key] = &statusCacheEntry{
		revoked:   revoked,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Clear removes all cached entries
func (c *StatusCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*statusCacheEntry)
	c.mu.Unlock()
}

// Size returns the number of cached entries
func (c *StatusCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func certCacheKey(cert *x509.Certificate) string {
	return fmt.Sprintf("%s:%s", cert.Issuer.String(), cert.SerialNumber.String())
}
