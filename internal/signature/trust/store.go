package trust

import (
	"bufio"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
)

// EntryType tags where a trusted certificate came from
type EntryType int32

const (
	EntryTypeUser EntryType = iota
	EntryTypeSystem
)

func (t EntryType) String() string {
	switch t {
	case EntryTypeUser:
		return "user"
	case EntryTypeSystem:
		return "system"
	default:
		return fmt.Sprintf("EntryType(%d)", int32(t))
	}
}

// ParseEntryType parses the names produced by EntryType.String
func ParseEntryType(s string) (EntryType, error) {
	switch s {
	case "user", "":
		return EntryTypeUser, nil
	case "system":
		return EntryTypeSystem, nil
	default:
		return 0, fmt.Errorf("unknown certificate entry type %q", s)
	}
}

// CertificateEntry is one trusted certificate
type CertificateEntry struct {
	Type EntryType
	Info CertificateInfo
}

// CertificateStore is an ordered, deduplicated list of trusted certificates.
// It is not safe for concurrent mutation; verification only reads it.
type CertificateStore struct {
	entries []CertificateEntry
	backend *backend.Backend
}

// StoreOption configures a CertificateStore
type StoreOption func(*CertificateStore)

// WithBackend sets the backend used to parse certificates added as DER
func WithBackend(b *backend.Backend) StoreOption {
	return func(s *CertificateStore) {
		s.backend = b
	}
}

// NewCertificateStore creates an empty store
func NewCertificateStore(opts ...StoreOption) *CertificateStore {
	store := &CertificateStore{
		entries: make([]CertificateEntry, 0),
		backend: backend.Default(),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Add appends info unless a structurally equal entry already exists.
// It returns true when the store grew.
func (s *CertificateStore) Add(entryType EntryType, info CertificateInfo) bool {
	if s.Contains(&info) {
		return false
	}
	s.entries = append(s.entries, CertificateEntry{Type: entryType, Info: info})
	return true
}

// AddDER parses a DER certificate and adds it
func (s *CertificateStore) AddDER(entryType EntryType, der []byte) (bool, error) {
	info, err := ParseCertificateInfo(s.backend, der)
	if err != nil {
		return false, err
	}
	return s.Add(entryType, *info), nil
}

// AddCertificatesFromPEM adds every CERTIFICATE block in pemData and returns
// how many new entries were created. Every block is parsed before any is
// added, so a bad block leaves the store unchanged.
func (s *CertificateStore) AddCertificatesFromPEM(entryType EntryType, pemData []byte) (int, error) {
	var infos []*CertificateInfo
	for {
		block, rest := pem.Decode(pemData)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			info, err := ParseCertificateInfo(s.backend, block.Bytes)
			if err != nil {
				return 0, fmt.Errorf("certificate %d: %w", len(infos)+1, err)
			}
			infos = append(infos, info)
		}
		pemData = rest
	}
	if len(infos) == 0 {
		return 0, fmt.Errorf("no certificates found in PEM data")
	}

	var added int
	for _, info := range infos {
		if s.Add(entryType, *info) {
			added++
		}
	}
	return added, nil
}

// AddCertificatesFromFile loads a PEM or DER certificate file
func (s *CertificateStore) AddCertificatesFromFile(entryType EntryType, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read certificate file: %w", err)
	}
	if block, _ := pem.Decode(data); block != nil {
		return s.AddCertificatesFromPEM(entryType, data)
	}
	ok, err := s.AddDER(entryType, data)
	if err != nil {
		return 0, err
	}
	if ok {
		return 1, nil
	}
	return 0, nil
}

// Contains reports whether a structurally equal entry exists
func (s *CertificateStore) Contains(info *CertificateInfo) bool {
	for i := range s.entries {
		if s.entries[i].Info.Equal(info) {
			return true
		}
	}
	return false
}

// Remove deletes the entry at index
func (s *CertificateStore) Remove(index int) error {
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("certificate index %d out of range [0, %d)", index, len(s.entries))
	}
	s.entries = append(s.entries[:index], s.entries[index+1:]...)
	return nil
}

// Len returns the number of entries
func (s *CertificateStore) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in insertion order
func (s *CertificateStore) Entries() []CertificateEntry {
	out := make([]CertificateEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Certificates parses every entry. Entries whose DER no longer parses are
// skipped and logged.
func (s *CertificateStore) Certificates() []*x509.Certificate {
	certs := make([]*x509.Certificate, 0, len(s.entries))
	for i := range s.entries {
		cert, err := s.entries[i].Info.Certificate()
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("skipping unparsable trusted certificate")
			continue
		}
		certs = append(certs, cert)
	}
	return certs
}

// Serialize writes the store in the versioned binary format
func (s *CertificateStore) Serialize(w io.Writer) error {
	p := &persistWriter{w: w}
	p.int32(certificateStoreVersion)
	p.uint32(uint32(len(s.entries)))
	for i := range s.entries {
		s.entries[i].write(p)
	}
	if p.err != nil {
		return fmt.Errorf("failed to serialize certificate store: %w", p.err)
	}
	return nil
}

// Deserialize replaces the store contents with data written by Serialize.
// On error the store is left unchanged.
func (s *CertificateStore) Deserialize(r io.Reader) error {
	p := &persistReader{r: r}
	p.version(certificateStoreVersion, "certificate store")
	count := p.uint32()
	if p.err == nil && count > 1<<16 {
		p.err = fmt.Errorf("implausible entry count %d", count)
	}

	entries := make([]CertificateEntry, 0, count)
	for i := uint32(0); i < count && p.err == nil; i++ {
		entries = append(entries, readCertificateEntry(p))
	}
	if p.err != nil {
		return fmt.Errorf("failed to deserialize certificate store: %w", p.err)
	}

	s.entries = entries
	return nil
}

// SaveFile writes the store to path atomically
func (s *CertificateStore) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".store-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := s.Serialize(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// LoadFile reads a store written by SaveFile. A missing file yields an empty store.
func LoadFile(path string, opts ...StoreOption) (*CertificateStore, error) {
	store := NewCertificateStore(opts...)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store file: %w", err)
	}
	defer f.Close()

	if err := store.Deserialize(bufio.NewReader(f)); err != nil {
		return nil, err
	}
	return store, nil
}
