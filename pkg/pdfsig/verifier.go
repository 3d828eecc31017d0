package pdfsig

import (
	"context"
	"fmt"
	"io"

	"github.com/rezonia/pdfsig-verifier/internal/document"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/engine"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

// Options configures verification behavior
type Options struct {
	// Accept certificates that expired, trying the signing time first
	IgnoreExpirationDate bool

	// Also trust the operating system roots
	UseSystemStore bool

	// Check revocation data embedded in each signature
	CheckRevocation bool

	// Signature fields verified concurrently (default: 1)
	Workers int
}

// DefaultOptions returns the default verification options
func DefaultOptions() Options {
	return Options{
		CheckRevocation: true,
		Workers:         1,
	}
}

// Verifier verifies every signature of PDF documents
type Verifier struct {
	engine *engine.Engine
}

// NewVerifier creates a verifier trusting store. store must not be modified
// while a verification is running.
func NewVerifier(store *CertificateStore, opts Options) *Verifier {
	params := signature.DefaultParameters(store)
	params.IgnoreExpirationDate = opts.IgnoreExpirationDate
	params.UseSystemCertificateStore = opts.UseSystemStore
	params.CheckRevocation = opts.CheckRevocation
	params.Workers = opts.Workers
	if opts.CheckRevocation {
		params.RevocationCache = trust.NewStatusCache(trust.DefaultStatusCacheTTL)
	}

	return &Verifier{engine: engine.New(params)}
}

// SubFilters lists the supported signature formats
func (v *Verifier) SubFilters() []string {
	return v.engine.SubFilters()
}

// Verify reads a whole PDF from r and verifies every signature field
func (v *Verifier) Verify(ctx context.Context, r io.Reader) ([]*VerificationResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return v.VerifyBytes(ctx, data)
}

// VerifyBytes verifies every signature field of data
func (v *Verifier) VerifyBytes(ctx context.Context, data []byte) ([]*VerificationResult, error) {
	doc, err := document.Load(data)
	if err != nil {
		return nil, err
	}
	return v.engine.Verify(ctx, doc)
}

// VerifyBatch verifies multiple documents concurrently. The result at index
// i belongs to inputs[i]; it is nil when that input failed.
func (v *Verifier) VerifyBatch(ctx context.Context, inputs []io.Reader) ([][]*VerificationResult, error) {
	results := make([][]*VerificationResult, len(inputs))
	errCh := make(chan error, len(inputs))

	for i, input := range inputs {
		go func(idx int, r io.Reader) {
			result, err := v.Verify(ctx, r)
			if err != nil {
				errCh <- fmt.Errorf("input %d: %w", idx, err)
				return
			}
			results[idx] = result
			errCh <- nil
		}(i, input)
	}

	// Wait for all goroutines
	var firstErr error
	for range inputs {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return results, firstErr
}

// AllOK reports whether results is non-empty and every result is OK
func AllOK(results []*VerificationResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.IsOK() {
			return false
		}
	}
	return true
}
