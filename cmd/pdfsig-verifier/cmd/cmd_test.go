package cmd

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/pdfsig-verifier/internal/testpki"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	for _, name := range []string{"a.pdf", "b.PDF", "notes.txt", filepath.Join("nested", "c.pdf")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.7"), 0o600))
	}

	files, err := collectFiles([]string{dir})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "a.pdf"),
		filepath.Join(dir, "b.PDF"),
		filepath.Join(nested, "c.pdf"),
	}, files)

	files, err = collectFiles([]string{filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "notes.txt")}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "missing.pdf")})
	assert.Error(t, err)
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "000-Test_Root_CA.pem", exportName(0, "Test Root CA"))
	assert.Equal(t, "012-certificate.pem", exportName(12, ""))
	assert.Equal(t, "003-a_b.pem", exportName(3, "a/b"))
}

func TestStoreAndVerifyCommands(t *testing.T) {
	dir := t.TempDir()
	storeFile := filepath.Join(dir, "store.bin")

	pki := testpki.New(t)
	rootPEM := filepath.Join(dir, "root.pem")
	require.NoError(t, os.WriteFile(rootPEM, testpki.PEM(pki.Root), 0o600))

	key, leaf := pki.IssueLeaf(t, "Mateja Kovač")
	doc := testpki.BuildSignedPDF(t, testpki.PDFOptions{}, func(signed []byte) []byte {
		return testpki.Sign(t, signed, key, leaf, []*x509.Certificate{pki.Intermediate}, testpki.SignOptions{Detached: true})
	})
	docPath := filepath.Join(dir, "contract.pdf")
	require.NoError(t, os.WriteFile(docPath, doc, 0o600))

	_, err := execute(t, "verify", "--store", storeFile, "-f", "table", docPath)
	require.Error(t, err, "a missing store is an error for verify")

	out, err := execute(t, "store", "add", "--store", storeFile, rootPEM)
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1 certificate(s), store now holds 1")

	out, err = execute(t, "store", "list", "--store", storeFile, "-f", "json")
	require.NoError(t, err)
	var entries []StoreEntryOutput
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "Test Root CA", entries[0].Certificate.CommonName)

	out, err = execute(t, "verify", "--store", storeFile, "-f", "table", docPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "contract.pdf: VALID")
	assert.Contains(t, out, "Signature1 (adbe.pkcs7.detached)")
	assert.Contains(t, out, "Coverage:    100.00%")
	assert.Contains(t, out, "Mean coverage: 100.00% over 1 signature(s)")

	out, err = execute(t, "inspect", "-f", "json", docPath)
	require.NoError(t, err)
	var inspected []InspectResult
	require.NoError(t, json.Unmarshal([]byte(out), &inspected))
	require.Len(t, inspected, 1)
	require.Len(t, inspected[0].Fields, 1)
	assert.Equal(t, "Signature1", inspected[0].Fields[0].Name)
	assert.True(t, inspected[0].Fields[0].Supported)

	exportDir := filepath.Join(dir, "export")
	_, err = execute(t, "store", "export", "--store", storeFile, "-f", "table", exportDir)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(exportDir, "000-Test_Root_CA.pem"))

	out, err = execute(t, "store", "remove", "--store", storeFile, "0")
	require.NoError(t, err)
	assert.Contains(t, out, "store now holds 0")

	out, err = execute(t, "verify", "--store", storeFile, "-f", "table", docPath)
	assert.Error(t, err)
	assert.Contains(t, out, "contract.pdf: INVALID")
	assert.Contains(t, out, "Trusted certificate not found.")
}
