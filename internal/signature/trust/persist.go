package trust

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Persisted format versions. Readers accept any version up to the current one.
const (
	certificateInfoVersion  int32 = 1
	certificateEntryVersion int32 = 1
	certificateStoreVersion int32 = 1

	maxPersistedBlob = 16 << 20
)

// ErrUnsupportedVersion is returned when persisted data was written by a newer format
var ErrUnsupportedVersion = errors.New("unsupported persisted format version")

var byteOrder = binary.BigEndian

type persistWriter struct {
	w   io.Writer
	err error
}

func (p *persistWriter) int32(v int32) {
	if p.err == nil {
		p.err = binary.Write(p.w, byteOrder, v)
	}
}

func (p *persistWriter) uint32(v uint32) {
	if p.err == nil {
		p.err = binary.Write(p.w, byteOrder, v)
	}
}

func (p *persistWriter) bytes(b []byte) {
	p.uint32(uint32(len(b)))
	if p.err == nil && len(b) > 0 {
		_, p.err = p.w.Write(b)
	}
}

func (p *persistWriter) time(t time.Time) {
	if p.err != nil {
		return
	}
	data, err := t.MarshalBinary()
	if err != nil {
		p.err = err
		return
	}
	p.bytes(data)
}

type persistReader struct {
	r   io.Reader
	err error
}

func (p *persistReader) int32() int32 {
	var v int32
	if p.err == nil {
		p.err = binary.Read(p.r, byteOrder, &v)
	}
	return v
}

func (p *persistReader) uint32() uint32 {
	var v uint32
	if p.err == nil {
		p.err = binary.Read(p.r, byteOrder, &v)
	}
	return v
}

func (p *persistReader) bytes() []byte {
	n := p.uint32()
	if p.err != nil {
		return nil
	}
	if n > maxPersistedBlob {
		p.err = fmt.Errorf("persisted blob of %d bytes exceeds limit", n)
		return nil
	}
	buf := make([]byte, n)
	_, p.err = io.ReadFull(p.r, buf)
	return buf
}

func (p *persistReader) time() time.Time {
	data := p.bytes()
	if p.err != nil {
		return time.Time{}
	}
	var t time.Time
	if err := t.UnmarshalBinary(data); err != nil {
		p.err = err
	}
	return t.UTC()
}

func (p *persistReader) version(current int32, what string) int32 {
	v := p.int32()
	if p.err == nil && (v < 1 || v > current) {
		p.err = fmt.Errorf("%s version %d: %w", what, v, ErrUnsupportedVersion)
	}
	return v
}

// WriteTo serializes the info in the versioned binary format
func (c *CertificateInfo) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	p := &persistWriter{w: cw}
	c.write(p)
	return cw.n, p.err
}

func (c *CertificateInfo) write(p *persistWriter) {
	p.int32(certificateInfoVersion)
	p.int32(c.Version)
	p.int32(c.KeySize)
	p.int32(int32(c.PublicKey))
	p.uint32(uint32(len(c.Names)))
	for _, name := range c.Names {
		p.bytes([]byte(name))
	}
	p.time(c.NotValidBefore)
	p.time(c.NotValidAfter)
	p.uint32(uint32(c.KeyUsage))
	p.bytes(c.CertificateData)
}

// ReadCertificateInfo reads one info written by WriteTo
func ReadCertificateInfo(r io.Reader) (*CertificateInfo, error) {
	p := &persistReader{r: r}
	info := readCertificateInfo(p)
	if p.err != nil {
		return nil, fmt.Errorf("failed to read certificate info: %w", p.err)
	}
	return info, nil
}

func readCertificateInfo(p *persistReader) *CertificateInfo {
	info := &CertificateInfo{}
	p.version(certificateInfoVersion, "certificate info")
	info.Version = p.int32()
	info.KeySize = p.int32()
	info.PublicKey = PublicKeyType(p.int32())
	count := p.uint32()
	if p.err == nil && count > 1024 {
		p.err = fmt.Errorf("implausible name count %d", count)
	}
	for i := uint32(0); i < count && p.err == nil; i++ {
		name := string(p.bytes())
		// Entries added by a newer build are dropped.
		if int(i) < len(info.Names) {
			info.Names[i] = name
		}
	}
	info.NotValidBefore = p.time()
	info.NotValidAfter = p.time()
	info.KeyUsage = KeyUsage(p.uint32())
	info.CertificateData = p.bytes()
	return info
}

func (e *CertificateEntry) write(p *persistWriter) {
	p.int32(certificateEntryVersion)
	p.int32(int32(e.Type))
	e.Info.write(p)
}

func readCertificateEntry(p *persistReader) CertificateEntry {
	var e CertificateEntry
	p.version(certificateEntryVersion, "certificate entry")
	e.Type = EntryType(p.int32())
	if info := readCertificateInfo(p); p.err == nil {
		e.Info = *info
	}
	return e
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
