package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/pdfsig-verifier/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for verifying PDF signatures.

The API provides endpoints for:
  - POST /api/v1/verify  - Verify every signature of a PDF (raw body)
  - GET  /api/v1/store   - List trusted certificates
  - POST /api/v1/store   - Trust a PEM or DER certificate (?type=user|system)
  - GET  /health         - Health check

Examples:
  # Start server on default port
  pdfsig-verifier serve

  # Start on custom port with a specific store
  pdfsig-verifier serve --address :9090 --store /var/lib/pdfsig/store.bin

  # Start in debug mode
  pdfsig-verifier serve --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", ":8080", "Server listen address")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 5*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("address") {
		cfg.Server.Address = serverAddr
	}
	if cmd.Flags().Changed("read-timeout") {
		cfg.Server.ReadTimeout = readTimeout
	}
	if cmd.Flags().Changed("write-timeout") {
		cfg.Server.WriteTimeout = writeTimeout
	}

	params, err := verificationParameters(cmd)
	if err != nil {
		return err
	}

	config := &server.Config{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Debug:        serverDebug,
		StorePath:    cfg.Store.Path,
	}

	srv := server.NewServer(config, params)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
