package testpki

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
	"time"
)

// PDFOptions describe the single signature field written by BuildSignedPDF
type PDFOptions struct {
	FieldName string
	Type      string
	Filter    string
	SubFilter string
	// ContentsSize is the number of raw bytes reserved for /Contents
	ContentsSize int
	// Certs are written as /Cert, a string for one entry and an array otherwise
	Certs       [][]byte
	SigningTime time.Time
	Name        string
	Reason      string
	Location    string
	ContactInfo string
	// UppercaseHex writes /Contents with upper case digits
	UppercaseHex bool
}

// SignFunc receives the bytes covered by /ByteRange and returns /Contents
type SignFunc func(signed []byte) []byte

const byteRangePlaceholder = "/ByteRange [0000000000 0000000000 0000000000 0000000000]"

// BuildSignedPDF writes a minimal one-page PDF whose AcroForm holds one
// signature field, then fills /ByteRange and /Contents the way a signing
// application does.
func BuildSignedPDF(t testing.TB, opts PDFOptions, sign SignFunc) []byte {
	t.Helper()

	if opts.FieldName == "" {
		opts.FieldName = "Signature1"
	}
	if opts.Type == "" {
		opts.Type = "Sig"
	}
	if opts.Filter == "" {
		opts.Filter = "Adobe.PPKLite"
	}
	if opts.SubFilter == "" {
		opts.SubFilter = "adbe.pkcs7.detached"
	}
	if opts.ContentsSize == 0 {
		opts.ContentsSize = 8192
	}

	var sig strings.Builder
	fmt.Fprintf(&sig, "<< /Type /%s /Filter /%s /SubFilter /%s ", opts.Type, opts.Filter, opts.SubFilter)
	sig.WriteString(byteRangePlaceholder)
	sig.WriteString(" /Contents <")
	sig.WriteString(strings.Repeat("0", opts.ContentsSize*2))
	sig.WriteString(">")
	switch len(opts.Certs) {
	case 0:
	case 1:
		fmt.Fprintf(&sig, " /Cert <%s>", hex.EncodeToString(opts.Certs[0]))
	default:
		sig.WriteString(" /Cert [")
		for _, c := range opts.Certs {
			fmt.Fprintf(&sig, "<%s>", hex.EncodeToString(c))
		}
		sig.WriteString("]")
	}
	if !opts.SigningTime.IsZero() {
		fmt.Fprintf(&sig, " /M (D:%s+00'00')", opts.SigningTime.UTC().Format("20060102150405"))
	}
	writeText(&sig, "Name", opts.Name)
	writeText(&sig, "Reason", opts.Reason)
	writeText(&sig, "Location", opts.Location)
	writeText(&sig, "ContactInfo", opts.ContactInfo)
	sig.WriteString(" >>")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R] /SigFlags 3 >> >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> /Annots [4 0 R] >>",
		fmt.Sprintf("<< /FT /Sig /Type /Annot /Subtype /Widget /Rect [0 0 0 0] /F 132 /P 3 0 R /T (%s) /V 5 0 R >>", opts.FieldName),
		sig.String(),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	data := buf.Bytes()

	brStart := bytes.Index(data, []byte(byteRangePlaceholder))
	lt := bytes.Index(data, []byte("/Contents <")) + len("/Contents ")
	gt := lt + 1 + opts.ContentsSize*2
	if brStart < 0 || data[gt] != '>' {
		t.Fatalf("failed to locate signature placeholders")
	}

	byteRange := fmt.Sprintf("/ByteRange [%010d %010d %010d %010d]", 0, lt, gt+1, len(data)-(gt+1))
	copy(data[brStart:], byteRange)

	signed := make([]byte, 0, len(data)-(gt+1-lt))
	signed = append(signed, data[:lt]...)
	signed = append(signed, data[gt+1:]...)

	contents := sign(signed)
	if len(contents) > opts.ContentsSize {
		t.Fatalf("signature of %d bytes does not fit into %d reserved bytes", len(contents), opts.ContentsSize)
	}
	encoded := hex.EncodeToString(contents)
	if opts.UppercaseHex {
		encoded = strings.ToUpper(encoded)
	}
	copy(data[lt+1:], encoded)

	return data
}

// SignedRanges returns the bytes covered by the /ByteRange of a document
// produced by BuildSignedPDF
func SignedRanges(data []byte) []byte {
	lt := bytes.Index(data, []byte("/Contents <")) + len("/Contents ")
	gt := bytes.IndexByte(data[lt:], '>') + lt
	out := make([]byte, 0, len(data))
	out = append(out, data[:lt]...)
	return append(out, data[gt+1:]...)
}

// ExtractSignature returns the /ByteRange values and the decoded /Contents
// of a document produced by BuildSignedPDF
func ExtractSignature(t testing.TB, data []byte) ([4]int64, []byte) {
	t.Helper()

	var br [4]int64
	start := bytes.Index(data, []byte("/ByteRange ["))
	if start < 0 {
		t.Fatalf("no /ByteRange in document")
	}
	if _, err := fmt.Sscanf(string(data[start:start+len(byteRangePlaceholder)]), "/ByteRange [%d %d %d %d]", &br[0], &br[1], &br[2], &br[3]); err != nil {
		t.Fatalf("failed to read /ByteRange: %v", err)
	}

	contents, err := hex.DecodeString(string(data[br[1]+1 : br[2]-1]))
	if err != nil {
		t.Fatalf("failed to decode /Contents: %v", err)
	}
	return br, contents
}

func writeText(sb *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, " /%s (%s)", key, value)
}
