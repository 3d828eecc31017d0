package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rezonia/pdfsig-verifier/internal/decimal"
	"github.com/rezonia/pdfsig-verifier/internal/document"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/engine"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

var (
	caFiles          []string
	ignoreExpiration bool
	systemStore      bool
	noRevocation     bool
	workers          int
)

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Verify PDF signatures",
	Long: `Verify every signature field of one or more PDF documents.

Each field is checked twice:
  - Certificate: the signer chain must end in a trusted certificate
  - Signature:   the container must match the signed byte ranges

A document is valid when every field passes both checks. Bytes not
covered by a signature are reported as a warning.

Examples:
  # Verify a document against the certificate store
  pdfsig-verifier verify contract.pdf

  # Trust an extra CA for this run only
  pdfsig-verifier verify --ca-file partner-ca.pem contract.pdf

  # Accept certificates that expired after signing
  pdfsig-verifier verify --ignore-expiration archive/*.pdf

  # JSON output
  pdfsig-verifier verify -f json contract.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringSliceVar(&caFiles, "ca-file", nil, "Additional trusted certificate file (PEM or DER), repeatable")
	verifyCmd.Flags().BoolVar(&ignoreExpiration, "ignore-expiration", false, "Accept expired certificates (env: PDFSIG_IGNORE_EXPIRATION)")
	verifyCmd.Flags().BoolVar(&systemStore, "system-store", false, "Also trust the operating system roots (env: PDFSIG_USE_SYSTEM_STORE)")
	verifyCmd.Flags().BoolVar(&noRevocation, "no-revocation", false, "Skip the embedded revocation data check")
	verifyCmd.Flags().IntVar(&workers, "workers", 1, "Signature fields verified concurrently")
}

// verificationParameters merges the configuration with the verify flags
func verificationParameters(cmd *cobra.Command) (signature.Parameters, error) {
	if cmd.Flags().Changed("ignore-expiration") {
		cfg.Verification.IgnoreExpirationDate = ignoreExpiration
	}
	if cmd.Flags().Changed("system-store") {
		cfg.Verification.UseSystemStore = systemStore
	}
	if cmd.Flags().Changed("no-revocation") {
		cfg.Verification.CheckRevocation = !noRevocation
	}
	if cmd.Flags().Changed("workers") {
		cfg.Verification.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		return signature.Parameters{}, err
	}

	store, err := cfg.LoadStore()
	if err != nil {
		return signature.Parameters{}, err
	}
	for _, f := range caFiles {
		n, err := store.AddCertificatesFromFile(trust.EntryTypeUser, f)
		if err != nil {
			return signature.Parameters{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
		log.Debug().Str("file", f).Int("added", n).Msg("trusted certificates loaded")
	}

	return cfg.Parameters(store), nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	params, err := verificationParameters(cmd)
	if err != nil {
		return err
	}
	e := engine.New(params)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	results := make([]*VerifyResult, 0, len(files))
	allValid := true
	var overall decimal.CoverageMean

	for _, file := range files {
		log.Debug().Str("file", file).Msg("verifying")

		result := verifyFile(ctx, e, file, &overall)
		results = append(results, result)

		if !result.Valid {
			allValid = false
		}
		if ctx.Err() != nil {
			break
		}
	}

	out := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := writeJSON(out, results); err != nil {
			return err
		}
	} else {
		printVerifyTable(out, results)
		if overall.Count() > 0 {
			fmt.Fprintf(out, "\nMean coverage: %s over %d signature(s)\n",
				decimal.FormatPercent(overall.Mean()), overall.Count())
		}
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}

	return nil
}

// verifyFile verifies one file and records the coverage of each signature
// in overall as well as in the file's own mean
func verifyFile(ctx context.Context, e *engine.Engine, filePath string, overall *decimal.CoverageMean) *VerifyResult {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	result := &VerifyResult{
		File:     filePath,
		Results:  []*signature.VerificationResult{},
		Coverage: []string{},
	}

	doc, err := document.LoadFile(filePath)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	fields, err := doc.SignatureFields()
	if err != nil {
		result.Error = err.Error()
		return result
	}

	results, err := e.VerifyAll(ctx, doc.Bytes(), fields)
	result.Results = results
	if err != nil {
		result.Error = fmt.Sprintf("verification interrupted: %v", err)
		return result
	}

	result.Valid = len(results) > 0
	var mean decimal.CoverageMean
	for _, r := range results {
		if !r.IsOK() {
			result.Valid = false
		}
		result.Coverage = append(result.Coverage, decimal.FormatPercent(mean.Add(doc.Len(), r.NotCoveredBytes)))
		overall.Add(doc.Len(), r.NotCoveredBytes)
	}
	if mean.Count() > 0 {
		result.MeanCoverage = decimal.FormatPercent(mean.Mean())
	}

	return result
}

func status(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func printVerifyTable(w io.Writer, results []*VerifyResult) {
	for _, r := range results {
		statusText := "VALID"
		if !r.Valid {
			statusText = "INVALID"
		}

		fmt.Fprintf(w, "%s %s: %s\n", status(r.Valid), r.File, statusText)
		if r.Error != "" {
			fmt.Fprintf(w, "  ✗ %s\n", r.Error)
		}

		for i, res := range r.Results {
			fmt.Fprintf(w, "  %s (%s)\n", res.FieldName, res.SubFilter)

			if signer := res.Signer(); signer != nil {
				fmt.Fprintf(w, "    Signer:      %s\n", signer.Subject())
			}
			if res.SigningTime != nil {
				fmt.Fprintf(w, "    Signed:      %s\n", res.SigningTime.Format(time.RFC3339))
			}
			fmt.Fprintf(w, "    Certificate: %s\n", status(res.Flags.Has(signature.CertificateOK)))
			fmt.Fprintf(w, "    Signature:   %s\n", status(res.Flags.Has(signature.SignatureOK)))
			if i < len(r.Coverage) {
				fmt.Fprintf(w, "    Coverage:    %s\n", r.Coverage[i])
			}

			for _, e := range res.Errors {
				fmt.Fprintf(w, "    ✗ %s\n", e)
			}
			for _, warn := range res.Warnings {
				fmt.Fprintf(w, "    ⚠ %s\n", warn)
			}
		}
	}
}
