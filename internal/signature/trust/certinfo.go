package trust

import (
	"bytes"
	"crypto/dsa" //nolint:staticcheck
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
)

// NameEntry identifies one subject attribute of a certificate
type NameEntry int

const (
	NameCountry NameEntry = iota
	NameOrganization
	NameOrganizationalUnit
	NameDistinguishedName
	NameStateOrProvince
	NameCommonName
	NameSerialNumber
	NameLocality
	NameTitle
	NameSurname
	NameGivenName
	NameInitials
	NamePseudonym
	NameGenerationalQualifier
	NameEmail

	NameEntryCount
)

var nameEntryLabels = [NameEntryCount]string{
	"C", "O", "OU", "DN", "ST", "CN", "SERIALNUMBER", "L",
	"TITLE", "SN", "GN", "INITIALS", "PSEUDONYM", "GENERATION", "EMAIL",
}

func (e NameEntry) String() string {
	if e < 0 || e >= NameEntryCount {
		return fmt.Sprintf("NameEntry(%d)", int(e))
	}
	return nameEntryLabels[e]
}

var nameEntryOIDs = map[string]NameEntry{
	"2.5.4.6":              NameCountry,
	"2.5.4.10":             NameOrganization,
	"2.5.4.11":             NameOrganizationalUnit,
	"2.5.4.49":             NameDistinguishedName,
	"2.5.4.8":              NameStateOrProvince,
	"2.5.4.3":              NameCommonName,
	"2.5.4.5":              NameSerialNumber,
	"2.5.4.7":              NameLocality,
	"2.5.4.12":             NameTitle,
	"2.5.4.4":              NameSurname,
	"2.5.4.42":             NameGivenName,
	"2.5.4.43":             NameInitials,
	"2.5.4.65":             NamePseudonym,
	"2.5.4.44":             NameGenerationalQualifier,
	"1.2.840.113549.1.9.1": NameEmail,
}

// PublicKeyType is the algorithm family of a certificate's public key
type PublicKeyType int32

const (
	KeyRSA PublicKeyType = iota
	KeyDSA
	KeyDH
	KeyEC
	KeyUnknown
)

func (k PublicKeyType) String() string {
	switch k {
	case KeyRSA:
		return "RSA"
	case KeyDSA:
		return "DSA"
	case KeyDH:
		return "DH"
	case KeyEC:
		return "EC"
	default:
		return "Unknown"
	}
}

// KeyUsage is a set of key usage flags
type KeyUsage uint32

const (
	KeyUsageDigitalSignature KeyUsage = 1 << iota
	KeyUsageNonRepudiation
	KeyUsageKeyEncipherment
	KeyUsageDataEncipherment
	KeyUsageAgreement
	KeyUsageCertSign
	KeyUsageCRLSign
	KeyUsageEncipherOnly
	KeyUsageDecipherOnly
)

var keyUsageNames = []struct {
	flag KeyUsage
	name string
}{
	{KeyUsageDigitalSignature, "digitalSignature"},
	{KeyUsageNonRepudiation, "nonRepudiation"},
	{KeyUsageKeyEncipherment, "keyEncipherment"},
	{KeyUsageDataEncipherment, "dataEncipherment"},
	{KeyUsageAgreement, "keyAgreement"},
	{KeyUsageCertSign, "keyCertSign"},
	{KeyUsageCRLSign, "cRLSign"},
	{KeyUsageEncipherOnly, "encipherOnly"},
	{KeyUsageDecipherOnly, "decipherOnly"},
}

// Has reports whether all bits of flag are set
func (u KeyUsage) Has(flag KeyUsage) bool {
	return u&flag == flag
}

// Names returns the names of the set flags
func (u KeyUsage) Names() []string {
	names := make([]string, 0, len(keyUsageNames))
	for _, n := range keyUsageNames {
		if u.Has(n.flag) {
			names = append(names, n.name)
		}
	}
	return names
}

func keyUsageFromX509(ku x509.KeyUsage) KeyUsage {
	var u KeyUsage
	mapping := []struct {
		from x509.KeyUsage
		to   KeyUsage
	}{
		{x509.KeyUsageDigitalSignature, KeyUsageDigitalSignature},
		{x509.KeyUsageContentCommitment, KeyUsageNonRepudiation},
		{x509.KeyUsageKeyEncipherment, KeyUsageKeyEncipherment},
		{x509.KeyUsageDataEncipherment, KeyUsageDataEncipherment},
		{x509.KeyUsageKeyAgreement, KeyUsageAgreement},
		{x509.KeyUsageCertSign, KeyUsageCertSign},
		{x509.KeyUsageCRLSign, KeyUsageCRLSign},
		{x509.KeyUsageEncipherOnly, KeyUsageEncipherOnly},
		{x509.KeyUsageDecipherOnly, KeyUsageDecipherOnly},
	}
	for _, m := range mapping {
		if ku&m.from != 0 {
			u |= m.to
		}
	}
	return u
}

// CertificateInfo is a normalized snapshot of one X.509 certificate
type CertificateInfo struct {
	Version         int32
	KeySize         int32
	PublicKey       PublicKeyType
	Names           [NameEntryCount]string
	NotValidBefore  time.Time
	NotValidAfter   time.Time
	KeyUsage        KeyUsage
	CertificateData []byte
}

// Name returns one subject attribute, empty if absent
func (c *CertificateInfo) Name(entry NameEntry) string {
	if entry < 0 || entry >= NameEntryCount {
		return ""
	}
	return c.Names[entry]
}

// Subject returns a one-line rendering of the non-empty subject attributes
func (c *CertificateInfo) Subject() string {
	var buf bytes.Buffer
	for i, v := range c.Names {
		if v == "" || NameEntry(i) == NameDistinguishedName {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(NameEntry(i).String())
		buf.WriteByte('=')
		buf.WriteString(v)
	}
	return buf.String()
}

// Equal reports structural equality
func (c *CertificateInfo) Equal(other *CertificateInfo) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.Version == other.Version &&
		c.KeySize == other.KeySize &&
		c.PublicKey == other.PublicKey &&
		c.Names == other.Names &&
		c.NotValidBefore.Equal(other.NotValidBefore) &&
		c.NotValidAfter.Equal(other.NotValidAfter) &&
		c.KeyUsage == other.KeyUsage &&
		bytes.Equal(c.CertificateData, other.CertificateData)
}

// Certificate parses the stored DER bytes
func (c *CertificateInfo) Certificate() (*x509.Certificate, error) {
	if len(c.CertificateData) == 0 {
		return nil, fmt.Errorf("certificate info has no certificate data")
	}
	return x509.ParseCertificate(c.CertificateData)
}

// ParseCertificateInfo parses DER certificate bytes into a CertificateInfo.
// It acquires b itself and so must not be called while holding a guard on b.
func ParseCertificateInfo(b *backend.Backend, der []byte) (*CertificateInfo, error) {
	guard := b.Acquire()
	defer guard.Release()

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	info := Snapshot(guard, cert)
	return &info, nil
}

// Snapshot converts a parsed certificate into a CertificateInfo. The caller
// must hold guard.
func Snapshot(guard *backend.Guard, cert *x509.Certificate) CertificateInfo {
	backend.MustHold(guard)

	info := CertificateInfo{
		Version:         int32(cert.Version),
		PublicKey:       KeyUnknown,
		NotValidBefore:  cert.NotBefore.UTC(),
		NotValidAfter:   cert.NotAfter.UTC(),
		KeyUsage:        keyUsageFromX509(cert.KeyUsage),
		CertificateData: append([]byte(nil), cert.Raw...),
	}

	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		info.PublicKey = KeyRSA
		info.KeySize = int32(pub.N.BitLen())
	case *dsa.PublicKey:
		info.PublicKey = KeyDSA
		info.KeySize = int32(pub.P.BitLen())
	case *ecdsa.PublicKey:
		info.PublicKey = KeyEC
		info.KeySize = int32(pub.Curve.Params().BitSize)
	case ed25519.PublicKey:
		info.KeySize = int32(len(pub) * 8)
	}

	for _, atv := range cert.Subject.Names {
		entry, ok := nameEntryOIDs[atv.Type.String()]
		if !ok || info.Names[entry] != "" {
			continue
		}
		info.Names[entry] = norm.NFC.String(fmt.Sprint(atv.Value))
	}

	return info
}
