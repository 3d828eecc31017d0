package cmd

import (
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

var entryTypeName string

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the trusted certificate store",
	Long: `Manage the persisted certificate store used by verify and serve.

The store location is taken from --store, PDFSIG_STORE, the store.path
configuration key, or the per-user default, in that order.

Examples:
  pdfsig-verifier store add root-ca.pem intermediate.der
  pdfsig-verifier store list
  pdfsig-verifier store remove 1
  pdfsig-verifier store export ./trusted`,
}

var storeAddCmd = &cobra.Command{
	Use:   "add <files...>",
	Short: "Add PEM or DER certificates",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStoreAdd,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trusted certificates",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeRemoveCmd = &cobra.Command{
	Use:   "remove <index>",
	Short: "Remove the certificate at index",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreRemove,
}

var storeExportCmd = &cobra.Command{
	Use:   "export <dir>",
	Short: "Write every certificate as a PEM file",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreExport,
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeAddCmd, storeListCmd, storeRemoveCmd, storeExportCmd)

	storeAddCmd.Flags().StringVar(&entryTypeName, "type", "user", "Entry type (user, system)")
}

// openStore loads the store for modification; a missing file is an empty store
func openStore() (*trust.CertificateStore, string, error) {
	path := cfg.Store.Path
	if path == "" {
		return nil, "", fmt.Errorf("no certificate store configured, use --store")
	}

	store, err := trust.LoadFile(path)
	if err != nil {
		return nil, "", signature.ErrStoreCorrupt(path, err)
	}
	return store, path, nil
}

func runStoreAdd(cmd *cobra.Command, args []string) error {
	entryType, err := trust.ParseEntryType(entryTypeName)
	if err != nil {
		return err
	}

	store, path, err := openStore()
	if err != nil {
		return err
	}

	total := 0
	for _, f := range args {
		n, err := store.AddCertificatesFromFile(entryType, f)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", f, err)
		}
		log.Debug().Str("file", f).Int("added", n).Msg("certificates added")
		total += n
	}

	if total > 0 {
		if err := store.SaveFile(path); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Added %d certificate(s), store now holds %d\n", total, store.Len())
	return nil
}

func storeEntries(store *trust.CertificateStore) []StoreEntryOutput {
	entries := store.Entries()
	out := make([]StoreEntryOutput, 0, len(entries))
	for i := range entries {
		out = append(out, StoreEntryOutput{
			Index:       i,
			Type:        entries[i].Type.String(),
			Certificate: signature.Summarize(&entries[i].Info),
		})
	}
	return out
}

func runStoreList(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	entries := storeEntries(store)
	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		return writeJSON(out, entries)
	}
	printStoreTable(out, entries)
	return nil
}

func printStoreTable(w io.Writer, entries []StoreEntryOutput) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "Certificate store is empty")
		return
	}
	for _, e := range entries {
		c := e.Certificate
		fmt.Fprintf(w, "[%d] %s (%s)\n", e.Index, c.Subject, e.Type)
		fmt.Fprintf(w, "    Key:   %s %d\n", c.KeyType, c.KeySize)
		fmt.Fprintf(w, "    Valid: %s - %s\n", c.ValidFrom.Format(time.RFC3339), c.ValidTo.Format(time.RFC3339))
	}
}

func runStoreRemove(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[0])
	}

	store, path, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Remove(index); err != nil {
		return err
	}
	if err := store.SaveFile(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed certificate %d, store now holds %d\n", index, store.Len())
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// exportName builds a file name from the index and common name
func exportName(index int, commonName string) string {
	name := unsafeFileChars.ReplaceAllString(commonName, "_")
	if name == "" || name == "_" {
		name = "certificate"
	}
	return fmt.Sprintf("%03d-%s.pem", index, name)
}

func runStoreExport(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	dir := args[0]
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	entries := store.Entries()
	for i := range entries {
		info := &entries[i].Info
		path := filepath.Join(dir, exportName(i, info.Name(trust.NameCommonName)))
		data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: info.CertificateData})
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d certificate(s) to %s\n", len(entries), dir)
	return nil
}
