package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezonia/pdfsig-verifier/internal/config"
	"github.com/rezonia/pdfsig-verifier/internal/logging"
)

var (
	version = "1.0.0"

	// Global flags
	verbose      bool
	logJSON      bool
	outputFormat string
	configPath   string
	storePath    string

	cfg       *config.Config
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "pdfsig-verifier",
	Short: "Verify digital signatures in PDF documents",
	Long: `pdfsig-verifier checks every signature field of a PDF document.

For each field it verifies:
  - the signature container against the signed byte ranges
  - the signer certificate chain against the certificate store
  - revocation data embedded in the signature
  - how much of the document the signature covers

Supported signature formats:
  - adbe.pkcs7.detached, ETSI.CAdES.detached
  - adbe.pkcs7.sha1
  - adbe.x509.rsa_sha1
  - ETSI.RFC3161 document timestamps

Examples:
  # Trust a root certificate
  pdfsig-verifier store add root-ca.pem

  # Verify a document
  pdfsig-verifier verify contract.pdf

  # Verify a directory of documents as JSON
  pdfsig-verifier verify ./signed -f json

  # Start the HTTP API
  pdfsig-verifier serve --address :8080`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configErr
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON instead of console output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Certificate store file (env: "+config.EnvStore+")")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	logging.Setup(logging.Options{Verbose: verbose, JSON: logJSON})

	configErr = nil
	cfg = config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			configErr = err
			return
		}
		cfg = loaded
	}

	if err := cfg.ApplyEnv(); err != nil {
		configErr = err
		return
	}

	if storePath != "" {
		cfg.Store.Path = storePath
	}

	switch outputFormat {
	case "json", "table":
	default:
		configErr = fmt.Errorf("unknown output format %q", outputFormat)
	}
}
