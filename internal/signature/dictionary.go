package signature

import (
	"fmt"
	"time"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

// Known SubFilter values
const (
	SubFilterPKCS7Detached = "adbe.pkcs7.detached"
	SubFilterPKCS7SHA1     = "adbe.pkcs7.sha1"
	SubFilterX509RSASHA1   = "adbe.x509.rsa_sha1"
	SubFilterCAdESDetached = "ETSI.CAdES.detached"
	SubFilterRFC3161       = "ETSI.RFC3161"
)

// Type is the /Type of a signature dictionary
type Type int

const (
	TypeSig Type = iota
	TypeDocTimeStamp
)

func (t Type) String() string {
	if t == TypeDocTimeStamp {
		return "DocTimeStamp"
	}
	return "Sig"
}

// AuthType is the /Prop_AuthType hint
type AuthType int

const (
	AuthTypeInvalid AuthType = iota
	AuthTypePIN
	AuthTypePassword
	AuthTypeFingerprint
)

func (a AuthType) String() string {
	switch a {
	case AuthTypePIN:
		return "PIN"
	case AuthTypePassword:
		return "Password"
	case AuthTypeFingerprint:
		return "Fingerprint"
	default:
		return "Invalid"
	}
}

// ParseAuthType maps a /Prop_AuthType name
func ParseAuthType(name string) AuthType {
	switch name {
	case "PIN":
		return AuthTypePIN
	case "Password":
		return AuthTypePassword
	case "Fingerprint":
		return AuthTypeFingerprint
	default:
		return AuthTypeInvalid
	}
}

// TransformMethod names a signature reference transform
type TransformMethod string

const (
	TransformDocMDP   TransformMethod = "DocMDP"
	TransformUR       TransformMethod = "UR"
	TransformFieldMDP TransformMethod = "FieldMDP"
)

// Valid reports whether m is one of the defined transform methods
func (m TransformMethod) Valid() bool {
	switch m {
	case TransformDocMDP, TransformUR, TransformFieldMDP:
		return true
	}
	return false
}

// ByteRange is one signed segment of the document
type ByteRange struct {
	Offset int64 `json:"offset"`
	Size   int64 `json:"size"`
}

// End returns the offset one past the last byte
func (b ByteRange) End() int64 {
	return b.Offset + b.Size
}

// SignatureReference is one entry of /Reference
type SignatureReference struct {
	TransformMethod TransformMethod   `json:"transform_method"`
	TransformParams map[string]string `json:"transform_params,omitempty"`
	DigestMethod    string            `json:"digest_method,omitempty"`
}

// Reference identifies an indirect object
type Reference struct {
	ObjectNumber uint32 `json:"object_number"`
	Generation   uint16 `json:"generation"`
}

func (r Reference) String() string {
	return fmt.Sprintf("%d %d R", r.ObjectNumber, r.Generation)
}

// SignatureDictionary is the parsed value of a signature field.
// It is built once and never modified.
type SignatureDictionary struct {
	Type         Type
	Filter       string
	SubFilter    string
	Contents     []byte
	Certificates [][]byte
	ByteRanges   []ByteRange
	References   []SignatureReference
	Changes      []int
	Name         string
	SigningTime  time.Time
	Location     string
	Reason       string
	ContactInfo  string
	R            int
	V            int
	AuthType     AuthType
}

// Field is one signature form field
type Field struct {
	QualifiedName string
	Reference     Reference
	Dictionary    *SignatureDictionary
}

// Parameters control a verification pass
type Parameters struct {
	// Store supplies the trust anchors. It must not be mutated during a pass.
	Store *trust.CertificateStore

	// Backend serializes every crypto call sequence; defaults to backend.Default()
	Backend *backend.Backend

	EnableVerification        bool
	IgnoreExpirationDate      bool
	UseSystemCertificateStore bool

	// CheckRevocation consults revocation data embedded in the signature
	CheckRevocation bool

	// RevocationCache memoises revoked verdicts across fields; may be nil
	RevocationCache *trust.StatusCache

	// Workers bounds concurrent field verification; values below 1 mean 1
	Workers int

	// Now is the verification time; defaults to time.Now
	Now func() time.Time
}

// DefaultParameters returns parameters with verification enabled and the
// default backend
func DefaultParameters(store *trust.CertificateStore) Parameters {
	return Parameters{
		Store:              store,
		Backend:            backend.Default(),
		EnableVerification: true,
		CheckRevocation:    true,
		Workers:            1,
	}
}

// CryptoBackend returns the configured backend or the process default
func (p *Parameters) CryptoBackend() *backend.Backend {
	if p.Backend != nil {
		return p.Backend
	}
	return backend.Default()
}

// ChainVerifier builds a chain verifier from the parameters
func (p *Parameters) ChainVerifier() *trust.ChainVerifier {
	return trust.NewChainVerifier(p.Store, trust.ChainOptions{
		UseSystemStore:   p.UseSystemCertificateStore,
		IgnoreExpiration: p.IgnoreExpirationDate,
		Now:              p.Now,
	})
}
