// Package document reads signature form fields out of raw PDF bytes.
package document

import (
	"bytes"
	"fmt"
	"os"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
)

// maxFieldDepth bounds the /Kids recursion of malformed field trees
const maxFieldDepth = 32

// Document is an immutable PDF held in memory
type Document struct {
	data   []byte
	reader *pdf.Reader
}

// Load parses data as a PDF. data must not be modified afterwards.
func Load(data []byte) (doc *Document, err error) {
	if len(data) == 0 {
		return nil, signature.ErrInvalidDocument(fmt.Errorf("empty document"))
	}
	if !bytes.Contains(data[:min(len(data), 1024)], []byte("%PDF-")) {
		return nil, signature.ErrUnsupportedFormat("not a PDF document")
	}

	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = signature.ErrInvalidDocument(fmt.Errorf("%v", r))
		}
	}()

	reader, err := pdf.NewReader(filebuffer.New(data), int64(len(data)))
	if err != nil {
		return nil, signature.ErrInvalidDocument(err)
	}

	return &Document{data: data, reader: reader}, nil
}

// LoadFile reads and parses a PDF file
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Load(data)
}

// Bytes returns the raw document
func (d *Document) Bytes() []byte {
	return d.data
}

// Len returns the document size in bytes
func (d *Document) Len() int64 {
	return int64(len(d.data))
}

// SignatureFields returns every signed signature field of the AcroForm in
// document order. Fields without a value are skipped.
func (d *Document) SignatureFields() (fields []signature.Field, err error) {
	defer func() {
		if r := recover(); r != nil {
			fields = nil
			err = signature.ErrInvalidDocument(fmt.Errorf("%v", r))
		}
	}()

	acroForm := d.reader.Trailer().Key("Root").Key("AcroForm")
	if acroForm.Kind() != pdf.Dict {
		return nil, signature.ErrNoSignature()
	}

	top := acroForm.Key("Fields")
	for i := 0; i < top.Len(); i++ {
		d.walk(top.Index(i), "", "", 0, &fields)
	}

	if len(fields) == 0 {
		return nil, signature.ErrNoSignature()
	}
	return fields, nil
}

func (d *Document) walk(v pdf.Value, parent, inheritedType string, depth int, out *[]signature.Field) {
	if depth > maxFieldDepth || v.Kind() != pdf.Dict {
		return
	}

	name := parent
	if partial := v.Key("T").Text(); partial != "" {
		if parent != "" {
			name = parent + "." + partial
		} else {
			name = partial
		}
	}

	fieldType := v.Key("FT").Name()
	if fieldType == "" {
		fieldType = inheritedType
	}

	if fieldType == "Sig" {
		switch value := v.Key("V"); value.Kind() {
		case pdf.Null:
		case pdf.Dict:
			ptr := v.GetPtr()
			*out = append(*out, signature.Field{
				QualifiedName: name,
				Reference: signature.Reference{
					ObjectNumber: uint32(ptr.GetID()),
					Generation:   uint16(ptr.GetGen()),
				},
				Dictionary: parseDictionary(name, value),
			})
		default:
			log.Debug().Err(signature.ErrInvalidField(name, fmt.Errorf("/V is a %v", value.Kind()))).Msg("skipping signature field")
		}
	}

	kids := v.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		// widget annotations without /T are part of this field
		if kid.Key("T").IsNull() {
			continue
		}
		d.walk(kid, name, fieldType, depth+1, out)
	}
}

// parseDictionary reads a signature dictionary. Malformed optional entries
// are dropped; the handlers report what is missing.
func parseDictionary(field string, v pdf.Value) *signature.SignatureDictionary {
	dict := &signature.SignatureDictionary{
		Filter:      v.Key("Filter").Name(),
		SubFilter:   v.Key("SubFilter").Name(),
		Contents:    []byte(v.Key("Contents").RawString()),
		Name:        v.Key("Name").Text(),
		Location:    v.Key("Location").Text(),
		Reason:      v.Key("Reason").Text(),
		ContactInfo: v.Key("ContactInfo").Text(),
		R:           int(v.Key("R").Int64()),
		V:           int(v.Key("V").Int64()),
		AuthType:    signature.ParseAuthType(v.Key("Prop_AuthType").Name()),
	}

	if v.Key("Type").Name() == "DocTimeStamp" {
		dict.Type = signature.TypeDocTimeStamp
	}

	switch certs := v.Key("Cert"); certs.Kind() {
	case pdf.String:
		dict.Certificates = [][]byte{[]byte(certs.RawString())}
	case pdf.Array:
		for i := 0; i < certs.Len(); i++ {
			if c := certs.Index(i); c.Kind() == pdf.String {
				dict.Certificates = append(dict.Certificates, []byte(c.RawString()))
			}
		}
	}

	br := v.Key("ByteRange")
	if br.Len()%2 != 0 {
		log.Debug().Str("field", field).Int("entries", br.Len()).Msg("odd /ByteRange length, last entry ignored")
	}
	for i := 0; i+1 < br.Len(); i += 2 {
		dict.ByteRanges = append(dict.ByteRanges, signature.ByteRange{
			Offset: br.Index(i).Int64(),
			Size:   br.Index(i + 1).Int64(),
		})
	}

	refs := v.Key("Reference")
	if refs.IsNull() {
		refs = v.Key("References")
	}
	for i := 0; i < refs.Len(); i++ {
		if ref := refs.Index(i); ref.Kind() == pdf.Dict {
			dict.References = append(dict.References, parseReference(ref))
		}
	}

	if changes := v.Key("Changes"); changes.Len() == 3 {
		for i := 0; i < 3; i++ {
			dict.Changes = append(dict.Changes, int(changes.Index(i).Int64()))
		}
	}

	if m := v.Key("M"); m.Kind() == pdf.String {
		if t, err := ParseDate(m.Text()); err == nil {
			dict.SigningTime = t
		} else {
			log.Debug().Str("field", field).Err(err).Msg("ignoring unreadable /M")
		}
	}

	return dict
}

func parseReference(v pdf.Value) signature.SignatureReference {
	ref := signature.SignatureReference{
		TransformMethod: signature.TransformMethod(v.Key("TransformMethod").Name()),
		DigestMethod:    v.Key("DigestMethod").Name(),
	}

	params := v.Key("TransformParams")
	if keys := params.Keys(); len(keys) > 0 {
		ref.TransformParams = make(map[string]string, len(keys))
		for _, key := range keys {
			ref.TransformParams[key] = valueString(params.Key(key))
		}
	}
	return ref
}

func valueString(v pdf.Value) string {
	switch v.Kind() {
	case pdf.Name:
		return v.Name()
	case pdf.String:
		return v.Text()
	case pdf.Integer:
		return fmt.Sprintf("%d", v.Int64())
	case pdf.Real:
		return fmt.Sprintf("%g", v.Float64())
	case pdf.Bool:
		return fmt.Sprintf("%t", v.Bool())
	default:
		return v.String()
	}
}
