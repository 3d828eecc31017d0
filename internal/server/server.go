package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/rezonia/pdfsig-verifier/internal/decimal"
	"github.com/rezonia/pdfsig-verifier/internal/document"
	"github.com/rezonia/pdfsig-verifier/internal/signature"
	"github.com/rezonia/pdfsig-verifier/internal/signature/engine"
	"github.com/rezonia/pdfsig-verifier/internal/signature/trust"
)

const verifyTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodyBytes int64
	Debug        bool

	// StorePath persists certificates added through the API when set
	StorePath string
}

// Server represents the HTTP API server
type Server struct {
	config *Config
	router *gin.Engine
	engine *engine.Engine

	// mu guards store: verification reads it, POST /store mutates it
	mu    sync.RWMutex
	store *trust.CertificateStore
}

// NewServer creates a new API server verifying against params.Store
func NewServer(config *Config, params signature.Parameters) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	if params.Store == nil {
		params.Store = trust.NewCertificateStore()
	}

	s := &Server{
		config: config,
		router: router,
		engine: engine.New(params),
		store:  params.Store,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/verify", s.handleVerify)

		v1.GET("/store", s.handleListStore)
		v1.POST("/store", s.handleAddCertificate)
	}
}

// Run starts the HTTP server and shuts it down gracefully when ctx is done
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", s.config.Address).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Warn().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server")
		return err
	}
	return nil
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("size", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, newHealthResponse(s.engine.SubFilters()))
}

// readBody reads the request body within the configured limit and writes
// the error response itself when it fails
func (s *Server) readBody(c *gin.Context) ([]byte, bool) {
	if s.config.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxBodyBytes)
	}

	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return nil, false
	}

	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "empty request body"})
		return nil, false
	}
	return body, true
}

func signatureErrorResponse(err error) ErrorResponse {
	resp := ErrorResponse{Error: err.Error()}
	var sigErr *signature.SignatureError
	if errors.As(err, &sigErr) {
		resp.Error = sigErr.Message
		resp.Code = sigErr.Code
		if sigErr.Cause != nil {
			resp.Details = sigErr.Cause.Error()
		}
	}
	return resp
}

func (s *Server) handleVerify(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	doc, err := document.Load(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, signatureErrorResponse(err))
		return
	}

	fields, err := doc.SignatureFields()
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, signature.ErrNoSignature()) {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, signatureErrorResponse(err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
	defer cancel()

	s.mu.RLock()
	results, err := s.engine.VerifyAll(ctx, doc.Bytes(), fields)
	s.mu.RUnlock()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "signature verification interrupted",
			Details: err.Error(),
		})
		return
	}

	response := VerifyResponse{
		Valid:    len(results) > 0,
		Fields:   len(fields),
		Results:  results,
		Coverage: make([]FieldCoverage, 0, len(results)),
		Document: doc.Preflight(),
	}
	var mean decimal.CoverageMean
	for _, r := range results {
		if !r.IsOK() {
			response.Valid = false
		}
		response.Coverage = append(response.Coverage, FieldCoverage{
			Field:   r.FieldName,
			Covered: decimal.FormatPercent(mean.Add(doc.Len(), r.NotCoveredBytes)),
		})
	}
	response.MeanCoverage = decimal.FormatPercent(mean.Mean())

	if response.Valid {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusUnprocessableEntity, response)
	}
}

func (s *Server) handleListStore(c *gin.Context) {
	s.mu.RLock()
	entries := s.store.Entries()
	s.mu.RUnlock()

	response := StoreResponse{
		Count:   len(entries),
		Entries: make([]StoreEntry, 0, len(entries)),
	}
	for i := range entries {
		response.Entries = append(response.Entries, StoreEntry{
			Index:       i,
			Type:        entries[i].Type.String(),
			Certificate: signature.Summarize(&entries[i].Info),
		})
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleAddCertificate(c *gin.Context) {
	body, ok := s.readBody(c)
	if !ok {
		return
	}

	entryType, err := trust.ParseEntryType(c.Query("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.store.Len()
	var added int
	if bytes.Contains(body, []byte("-----BEGIN")) {
		added, err = s.store.AddCertificatesFromPEM(entryType, body)
	} else {
		var isNew bool
		isNew, err = s.store.AddDER(entryType, body)
		if isNew {
			added = 1
		}
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "failed to add certificate", Details: err.Error()})
		return
	}

	if added > 0 && s.config.StorePath != "" {
		if err := s.store.SaveFile(s.config.StorePath); err != nil {
			log.Error().Err(err).Str("path", s.config.StorePath).Msg("Failed to persist certificate store")
			for s.store.Len() > before {
				_ = s.store.Remove(s.store.Len() - 1)
			}
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to persist certificate store"})
			return
		}
	}

	status := http.StatusOK
	if added > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, AddCertificateResponse{Added: added, Count: s.store.Len()})
}
