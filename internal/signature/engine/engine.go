// Package engine verifies every signature field of a document.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/handler"
)

// Source is a document whose signature fields can be enumerated
type Source interface {
	// Bytes returns the raw document the byte ranges refer to
	Bytes() []byte

	// SignatureFields returns the signature fields in enumeration order
	SignatureFields() ([]signature.Field, error)
}

// Engine dispatches signature fields to their handlers
type Engine struct {
	params   signature.Parameters
	registry *handler.Registry
}

// Option configures an Engine
type Option func(*Engine)

// WithRegistry replaces the built-in handler registry
func WithRegistry(r *handler.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// New creates an engine
func New(params signature.Parameters, opts ...Option) *Engine {
	e := &Engine{
		params:   params,
		registry: handler.Builtin(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Parameters returns the parameters the engine verifies with
func (e *Engine) Parameters() signature.Parameters {
	return e.params
}

// SubFilters lists the sub-filters the engine has handlers for
func (e *Engine) SubFilters() []string {
	return e.registry.AvailableSubFilters()
}

// Verify enumerates the signature fields of src and verifies them
func (e *Engine) Verify(ctx context.Context, src Source) ([]*signature.VerificationResult, error) {
	if !e.params.EnableVerification {
		return []*signature.VerificationResult{}, nil
	}

	fields, err := src.SignatureFields()
	if err != nil {
		return nil, err
	}
	return e.VerifyAll(ctx, src.Bytes(), fields)
}

// VerifyAll returns one result per field, in field order. Each field is
// verified to completion once started; a cancelled ctx only prevents further
// fields from starting, and the results finished so far are returned with
// ctx's error.
func (e *Engine) VerifyAll(ctx context.Context, document []byte, fields []signature.Field) ([]*signature.VerificationResult, error) {
	if !e.params.EnableVerification {
		return []*signature.VerificationResult{}, nil
	}

	workers := e.params.Workers
	if workers < 1 {
		workers = 1
	}

	start := time.Now()
	results := make([]*signature.VerificationResult, len(fields))

	g := new(errgroup.Group)
	g.SetLimit(workers)

	var cancelled error
	for i := range fields {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}

		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = e.verifyField(document, &fields[i])
			return nil
		})
	}
	_ = g.Wait()

	if cancelled == nil {
		cancelled = ctx.Err()
	}

	done := make([]*signature.VerificationResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}

	log.Debug().
		Int("fields", len(fields)).
		Int("verified", len(done)).
		Int("workers", workers).
		Dur("elapsed", time.Since(start)).
		Msg("signature verification finished")

	if len(done) < len(fields) && cancelled != nil {
		return done, cancelled
	}
	return done, nil
}

// verifyField never panics: a handler panic becomes a failed result for
// that field only.
func (e *Engine) verifyField(document []byte, field *signature.Field) (result *signature.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("field", field.QualifiedName).Interface("panic", r).Msg("signature handler panicked")
			result = signature.NewVerificationResult(field.QualifiedName, field.Reference)
			if field.Dictionary != nil {
				result.SubFilter = field.Dictionary.SubFilter
			}
			result.AddSignatureError(signature.SignatureDataOther)
			result.Validate()
		}
	}()

	if field.Dictionary == nil {
		log.Debug().Str("field", field.QualifiedName).Msg("signature field has no value")
		return handler.NoHandlerResult(field)
	}

	h, ok := e.registry.Lookup(field.Dictionary.SubFilter)
	if !ok {
		log.Debug().
			Str("field", field.QualifiedName).
			Str("subfilter", field.Dictionary.SubFilter).
			Msg("no handler for signature format")
		return handler.NoHandlerResult(field)
	}

	return handler.Verify(h, &handler.Request{
		Field:    field,
		Document: document,
		Params:   &e.params,
	})
}
