package trust

import (
	"bytes"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/pdfsig-verifier/internal/backend"
	"github.com/rezonia/pdfsig-verifier/internal/testpki"
)

func newTestStore(t *testing.T) *CertificateStore {
	t.Helper()
	return NewCertificateStore(WithBackend(backend.New("store-test")))
}

func TestCertificateStore_AddIsIdempotent(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)

	added, err := store.AddDER(EntryTypeUser, pki.Root.Raw)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddDER(EntryTypeSystem, pki.Root.Raw)
	require.NoError(t, err)
	assert.False(t, added, "equal certificate must not be added twice")
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, EntryTypeUser, store.Entries()[0].Type)
}

func TestCertificateStore_Contains(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)

	root, err := ParseCertificateInfo(backend.New("t"), pki.Root.Raw)
	require.NoError(t, err)
	inter, err := ParseCertificateInfo(backend.New("t"), pki.Intermediate.Raw)
	require.NoError(t, err)

	assert.True(t, store.Add(EntryTypeUser, *root))
	assert.True(t, store.Contains(root))
	assert.False(t, store.Contains(inter))
}

func TestCertificateStore_AddCertificatesFromPEM(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)

	added, err := store.AddCertificatesFromPEM(EntryTypeSystem, testpki.PEM(pki.Root, pki.Intermediate))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Len(t, store.Certificates(), 2)

	added, err = store.AddCertificatesFromPEM(EntryTypeSystem, testpki.PEM(pki.Root))
	require.NoError(t, err)
	assert.Equal(t, 0, added)
}

func TestCertificateStore_AddCertificatesFromPEM_Invalid(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddCertificatesFromPEM(EntryTypeUser, []byte("not pem"))
	assert.Error(t, err)
	assert.Equal(t, 0, store.Len())
}

func TestCertificateStore_AddCertificatesFromPEM_BadBlockAddsNothing(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)

	data := testpki.PEM(pki.Root)
	data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x30, 0x01}})...)
	data = append(data, testpki.PEM(pki.Intermediate)...)

	added, err := store.AddCertificatesFromPEM(EntryTypeUser, data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certificate 2")
	assert.Equal(t, 0, added)
	assert.Equal(t, 0, store.Len())
}

func TestCertificateStore_AddCertificatesFromFile(t *testing.T) {
	pki := testpki.New(t)
	dir := t.TempDir()

	pemPath := filepath.Join(dir, "chain.pem")
	require.NoError(t, os.WriteFile(pemPath, testpki.PEM(pki.Root, pki.Intermediate), 0o600))
	derPath := filepath.Join(dir, "root.cer")
	require.NoError(t, os.WriteFile(derPath, pki.Root.Raw, 0o600))

	store := newTestStore(t)

	added, err := store.AddCertificatesFromFile(EntryTypeUser, derPath)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = store.AddCertificatesFromFile(EntryTypeUser, pemPath)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	_, err = store.AddCertificatesFromFile(EntryTypeUser, filepath.Join(dir, "missing.pem"))
	assert.Error(t, err)
}

func TestCertificateStore_Remove(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)
	_, err := store.AddCertificatesFromPEM(EntryTypeUser, testpki.PEM(pki.Root, pki.Intermediate))
	require.NoError(t, err)

	require.NoError(t, store.Remove(0))
	require.Equal(t, 1, store.Len())
	assert.Equal(t, "Test Intermediate CA", store.Entries()[0].Info.Name(NameCommonName))

	assert.Error(t, store.Remove(1))
	assert.Error(t, store.Remove(-1))
}

func TestCertificateStore_SerializeRoundTrip(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)
	_, err := store.AddDER(EntryTypeUser, pki.Root.Raw)
	require.NoError(t, err)
	_, err = store.AddDER(EntryTypeSystem, pki.Intermediate.Raw)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.Serialize(&buf))

	restored := newTestStore(t)
	require.NoError(t, restored.Deserialize(&buf))
	require.Equal(t, store.Len(), restored.Len())

	for i, entry := range store.Entries() {
		got := restored.Entries()[i]
		assert.Equal(t, entry.Type, got.Type)
		assert.True(t, entry.Info.Equal(&got.Info), "entry %d differs after round trip", i)
	}
}

func TestCertificateStore_DeserializeKeepsStoreOnError(t *testing.T) {
	pki := testpki.New(t)
	store := newTestStore(t)
	_, err := store.AddDER(EntryTypeUser, pki.Root.Raw)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.Serialize(&buf))
	truncated := buf.Bytes()[:buf.Len()/2]

	err = store.Deserialize(bytes.NewReader(truncated))
	assert.Error(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestCertificateStore_DeserializeNewerVersion(t *testing.T) {
	store := newTestStore(t)

	err := store.Deserialize(bytes.NewReader([]byte{0, 0, 0, 9, 0, 0, 0, 0}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestCertificateInfo_WriteRead(t *testing.T) {
	pki := testpki.New(t)
	info, err := ParseCertificateInfo(backend.New("t"), pki.Intermediate.Raw)
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := info.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	got, err := ReadCertificateInfo(&buf)
	require.NoError(t, err)
	assert.True(t, info.Equal(got))
}

func TestLoadFile(t *testing.T) {
	pki := testpki.New(t)
	path := filepath.Join(t.TempDir(), "nested", "store.bin")

	empty, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	store := newTestStore(t)
	_, err = store.AddDER(EntryTypeUser, pki.Root.Raw)
	require.NoError(t, err)
	require.NoError(t, store.SaveFile(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 1, loaded.Len())
	assert.Equal(t, "Test Root CA", loaded.Entries()[0].Info.Name(NameCommonName))
}

func TestLoadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xff}, 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestParseEntryType(t *testing.T) {
	tests := []struct {
		in      string
		want    EntryType
		wantErr bool
	}{
		{"", EntryTypeUser, false},
		{"user", EntryTypeUser, false},
		{"system", EntryTypeSystem, false},
		{"root", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntryType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "system", EntryTypeSystem.String())
}
