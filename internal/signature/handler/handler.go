// Package handler verifies one signature field with the variant selected by
// its SubFilter.
package handler

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
)

// Request is the input of one field verification
type Request struct {
	Field    *signature.Field
	Document []byte
	Params   *signature.Parameters
}

func (r *Request) dictionary() *signature.SignatureDictionary {
	return r.Field.Dictionary
}

// Handler verifies one signature encoding. Both checks always run; each
// records its outcome as flags on the result.
type Handler interface {
	// SubFilter returns the encoding this handler verifies
	SubFilter() string

	// VerifyCertificate validates the signer certificates against the store
	VerifyCertificate(req *Request, result *signature.VerificationResult)

	// VerifySignature validates the signature bytes over the signed data
	VerifySignature(req *Request, result *signature.VerificationResult)
}

// Verify runs the certificate check then the signature check of h and
// classifies the result
func Verify(h Handler, req *Request) *signature.VerificationResult {
	dict := req.dictionary()
	result := signature.NewVerificationResult(req.Field.QualifiedName, req.Field.Reference)
	result.SubFilter = dict.SubFilter
	if !dict.SigningTime.IsZero() {
		t := dict.SigningTime
		result.SigningTime = &t
	}

	h.VerifyCertificate(req, result)
	result.FinishCertificateCheck()

	h.VerifySignature(req, result)
	result.FinishSignatureCheck()

	result.Validate()

	log.Debug().
		Str("field", result.FieldName).
		Str("subfilter", dict.SubFilter).
		Str("flags", result.Flags.String()).
		Msg("signature field verified")

	return result
}

// NoHandlerResult is the result of a field whose SubFilter has no handler
func NoHandlerResult(field *signature.Field) *signature.VerificationResult {
	result := signature.NewVerificationResult(field.QualifiedName, field.Reference)
	if field.Dictionary != nil {
		result.SubFilter = field.Dictionary.SubFilter
	}
	result.AddNoHandler(result.SubFilter)
	result.Validate()
	return result
}

// Factory creates a handler
type Factory func() Handler

// Registry maps SubFilter names to handler factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds or replaces the factory for subFilter
func (r *Registry) Register(subFilter string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[subFilter] = f
}

// Lookup returns a handler for subFilter
func (r *Registry) Lookup(subFilter string) (Handler, bool) {
	r.mu.RLock()
	f, ok := r.factories[subFilter]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// AvailableSubFilters returns the registered SubFilter names, sorted
func (r *Registry) AvailableSubFilters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Builtin returns a registry with every shipped handler
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(signature.SubFilterPKCS7Detached, func() Handler { return NewDetached(signature.SubFilterPKCS7Detached) })
	r.Register(signature.SubFilterCAdESDetached, func() Handler { return NewDetached(signature.SubFilterCAdESDetached) })
	r.Register(signature.SubFilterPKCS7SHA1, func() Handler { return NewSHA1() })
	r.Register(signature.SubFilterX509RSASHA1, func() Handler { return NewRawRSA() })
	r.Register(signature.SubFilterRFC3161, func() Handler { return NewDocTimeStamp() })
	return r
}

var defaultRegistry = Builtin()

// ForSubFilter looks subFilter up in the built-in registry
func ForSubFilter(subFilter string) (Handler, bool) {
	return defaultRegistry.Lookup(subFilter)
}
