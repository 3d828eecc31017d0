package signature

import "fmt"

// Error codes for failures that prevent verification from starting
const (
	ErrCodeInvalidDocument   = "INVALID_DOCUMENT"
	ErrCodeNoSignature       = "NO_SIGNATURE"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeStoreCorrupt      = "STORE_CORRUPT"
	ErrCodeInvalidField      = "INVALID_FIELD"
)

// SignatureError represents document-level verification errors.
// Cryptographic and trust failures are flags on VerificationResult instead.
type SignatureError struct {
	Code    string
	Field   string
	Message string
	Cause   error
}

func (e *SignatureError) Error() string {
	if e.Field != "" && e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Code, e.Field, e.Message, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// Is matches another *SignatureError by code
func (e *SignatureError) Is(target error) bool {
	t, ok := target.(*SignatureError)
	return ok && t.Code == e.Code
}

// NewSignatureError creates a new signature error
func NewSignatureError(code, field, message string, cause error) *SignatureError {
	return &SignatureError{
		Code:    code,
		Field:   field,
		Message: message,
		Cause:   cause,
	}
}

// ErrInvalidDocument returns error when the document cannot be read as a PDF
func ErrInvalidDocument(cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidDocument, "", "document is not a readable PDF", cause)
}

// ErrNoSignature returns error when no signature field is found in document
func ErrNoSignature() *SignatureError {
	return NewSignatureError(ErrCodeNoSignature, "", "no signature found in document", nil)
}

// ErrUnsupportedFormat returns error for unsupported file formats
func ErrUnsupportedFormat(format string) *SignatureError {
	return NewSignatureError(ErrCodeUnsupportedFormat, "", fmt.Sprintf("unsupported format: %s", format), nil)
}

// ErrStoreCorrupt returns error when a persisted certificate store cannot be loaded
func ErrStoreCorrupt(path string, cause error) *SignatureError {
	return NewSignatureError(ErrCodeStoreCorrupt, "store", fmt.Sprintf("certificate store %s is corrupt", path), cause)
}

// ErrInvalidField returns error when a signature field dictionary is malformed
func ErrInvalidField(field string, cause error) *SignatureError {
	return NewSignatureError(ErrCodeInvalidField, field, "malformed signature dictionary", cause)
}
