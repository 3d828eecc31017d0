// Package signeddata rebuilds the exact byte sequence a PDF signature covers
// and audits which document bytes no signature range claims.
package signeddata

import (
	"bytes"
	"encoding/hex"

	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/coverage"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
)

// Reconstruction is the signed data of one signature plus its coverage audit
type Reconstruction struct {
	// Data is the concatenation of the byte ranges in declared order
	Data []byte

	// Coverage holds the signed ranges and the contents hole
	Coverage *coverage.IntervalSet

	// Hole is the located /Contents string, nil when it was not found
	Hole *coverage.Interval

	DocumentLength int64
}

// Uncovered returns the number of document bytes outside Coverage
func (r *Reconstruction) Uncovered() int64 {
	return r.DocumentLength - r.Coverage.TotalLength()
}

// Reconstruct assembles the signed data of dict from document. On failure it
// records SignatureDataCoveredBySignatureMissing in result and returns nil.
// A document not fully covered only adds a warning.
func Reconstruct(dict *signature.SignatureDictionary, document []byte, result *signature.VerificationResult) *Reconstruction {
	docLen := int64(len(document))

	var total int64
	for _, br := range dict.ByteRanges {
		if br.Offset < 0 || br.Size < 0 {
			log.Debug().Int64("offset", br.Offset).Int64("size", br.Size).Msg("negative byte range")
			result.AddSignatureError(signature.SignatureDataCoveredBySignatureMissing)
			return nil
		}
		// compared before adding so the sum cannot overflow
		if br.Size > docLen-total {
			log.Debug().Int64("declared", total).Int64("size", br.Size).Int64("length", docLen).Msg("byte ranges exceed document length")
			result.AddSignatureError(signature.SignatureDataCoveredBySignatureMissing)
			return nil
		}
		total += br.Size
	}

	rec := &Reconstruction{
		Data:           make([]byte, 0, total),
		Coverage:       coverage.NewIntervalSet(),
		DocumentLength: docLen,
	}

	for _, br := range dict.ByteRanges {
		if br.Size == 0 {
			continue
		}

		start, end := br.Offset, br.End()
		if br.Size < 0 || start < 0 || start >= docLen || end > docLen || start > end {
			log.Debug().Int64("offset", br.Offset).Int64("size", br.Size).Msg("byte range out of bounds")
			result.AddSignatureError(signature.SignatureDataCoveredBySignatureMissing)
			return nil
		}

		rec.Data = append(rec.Data, document[start:end]...)
		rec.Coverage.Add(start, end-1)
	}

	if lo, hi, ok := FindContentsHole(document, dict.Contents); ok {
		rec.Coverage.Add(lo, hi)
		rec.Hole = &coverage.Interval{Lo: lo, Hi: hi}
	}

	if docLen > 0 && !rec.Coverage.IsCovered(0, docLen-1) {
		result.AddNotCoveredWarning(rec.Uncovered())
	}

	return rec
}

// FindContentsHole locates the hex encoding of contents inside document,
// lower case first and then upper case, and widens the match by one byte on
// each side when those bytes are the < and > string delimiters. The returned
// interval is closed.
func FindContentsHole(document, contents []byte) (lo, hi int64, ok bool) {
	if len(contents) == 0 {
		return 0, 0, false
	}

	encoded := []byte(hex.EncodeToString(contents))
	idx := bytes.Index(document, encoded)
	if idx < 0 {
		idx = bytes.Index(document, bytes.ToUpper(encoded))
	}
	if idx < 0 {
		return 0, 0, false
	}

	lo = int64(idx)
	hi = lo + int64(len(encoded)) - 1
	if lo > 0 && document[lo-1] == '<' {
		lo--
	}
	if hi+1 < int64(len(document)) && document[hi+1] == '>' {
		hi++
	}
	return lo, hi, true
}
