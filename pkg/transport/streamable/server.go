// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package streamable serves MCP over HTTP: one JSON-RPC message per POST,
// with sessions identified by the Mcp-Session-Id header.
package streamable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/envector-mcp/pkg/logger"
	"github.com/stacklok/envector-mcp/pkg/mcp"
	"github.com/stacklok/envector-mcp/pkg/transport/session"
)

const (
	// StreamableHTTPEndpoint is the MCP endpoint path.
	StreamableHTTPEndpoint = "/mcp"

	// HeaderSessionID carries the session id.
	HeaderSessionID = "Mcp-Session-Id"

	// HeaderProtocolVersion carries the negotiated protocol version.
	HeaderProtocolVersion = "MCP-Protocol-Version"

	// DefaultRequestTimeout bounds a single call.
	DefaultRequestTimeout = 5 * time.Minute

	maxBodyBytes      = 10 << 20
	readHeaderTimeout = 10 * time.Second
)

// Config holds the HTTP server settings.
type Config struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Server is the HTTP session transport.
type Server struct {
	config   Config
	handler  *mcp.Handler
	sessions *session.Manager
	router   http.Handler

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewServer creates the transport. Sessions are owned by the caller, which
// stops the manager after Stop.
func NewServer(config Config, handler *mcp.Handler, sessions *session.Manager) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.MeterProvider == nil {
		config.MeterProvider = metricnoop.NewMeterProvider()
	}
	if config.TracerProvider == nil {
		config.TracerProvider = tracenoop.NewTracerProvider()
	}
	s := &Server{config: config, handler: handler, sessions: sessions}
	s.router = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
		requestLogger,
	)

	r.With(middleware.AllowContentType("application/json")).Post(StreamableHTTPEndpoint, s.handlePost)
	r.Delete(StreamableHTTPEndpoint, s.handleDelete)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if s.config.MetricsHandler != nil {
		r.Handle("/metrics", s.config.MetricsHandler)
	}

	return otelhttp.NewHandler(r, "envector-mcp",
		otelhttp.WithMeterProvider(s.config.MeterProvider),
		otelhttp.WithTracerProvider(s.config.TracerProvider),
	)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = listener
	s.mu.Unlock()

	go func() {
		logger.Infof("MCP endpoint: http://%s%s", listener.Addr(), StreamableHTTPEndpoint)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Streamable HTTP server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	// responses are always plain JSON, never an event stream
	if !acceptsJSON(r.Header.Values("Accept")) {
		http.Error(w, "Accept header must allow application/json", http.StatusNotAcceptable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, fmt.Sprintf("Error reading request body: %v", err), http.StatusBadRequest)
		return
	}

	if isBatch(body) {
		logger.Warn("Batch JSON-RPC requests are not supported")
		http.Error(w, "Batch JSON-RPC requests are not supported", http.StatusBadRequest)
		return
	}
	if code := checkEnvelope(body); code != 0 {
		writeJSONRPCError(w, http.StatusBadRequest, jsonrpc2.ID{}, code, "Invalid JSON-RPC 2.0 message")
		return
	}
	msg, err := jsonrpc2.DecodeMessage(body)
	if err != nil {
		writeJSONRPCError(w, http.StatusBadRequest, jsonrpc2.ID{}, mcpgo.INVALID_REQUEST,
			fmt.Sprintf("Invalid JSON-RPC 2.0 message: %v", err))
		return
	}

	req, ok := msg.(*jsonrpc2.Request)
	if !ok {
		// this server sends no requests, so client responses are dropped
		w.WriteHeader(http.StatusAccepted)
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("mcp.method.name", req.Method),
		attribute.String("gen_ai.tool.name", gjson.GetBytes(req.Params, "name").String()),
	)

	if req.Method == mcp.MethodInitialize && r.Header.Get(HeaderSessionID) == "" {
		s.initialize(w, r, req)
		return
	}

	sess, ok := s.session(w, r, req)
	if !ok {
		return
	}
	if !sess.Allow(req.Method) {
		writeJSONRPCError(w, http.StatusBadRequest, req.ID, mcpgo.INVALID_REQUEST, "session not initialized")
		return
	}

	if req.Method == mcp.MethodNotificationInitialized && sess.State() == session.StateInitialized {
		if err := sess.Transition(session.StateReady); err != nil {
			logger.Debugf("Session %s: %v", sess.ID(), err)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()
	stop := context.AfterFunc(sess.Context(), cancel)
	defer stop()

	resp := s.handler.Handle(ctx, req)
	if resp == nil || isNotification(req) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSONRPC(w, http.StatusOK, resp)
}

// initialize opens a session for an initialize request without a session id.
func (s *Server) initialize(w http.ResponseWriter, r *http.Request, req *jsonrpc2.Request) {
	if !req.IsCall() {
		writeJSONRPCError(w, http.StatusBadRequest, req.ID, mcpgo.INVALID_REQUEST, "initialize must be a request")
		return
	}

	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		logger.Errorf("Failed to create session: %v", err)
		writeJSONRPCError(w, http.StatusInternalServerError, req.ID, mcpgo.INTERNAL_ERROR, "failed to create session")
		return
	}

	resp := s.handler.Handle(r.Context(), req)
	if resp.Error != nil {
		_ = s.sessions.Delete(r.Context(), sess.ID())
		writeJSONRPC(w, http.StatusOK, resp)
		return
	}
	if err := sess.Initialize(gjson.GetBytes(resp.Result, "protocolVersion").String()); err != nil {
		logger.Errorf("Failed to initialize session %s: %v", sess.ID(), err)
		_ = s.sessions.Delete(r.Context(), sess.ID())
		writeJSONRPCError(w, http.StatusInternalServerError, req.ID, mcpgo.INTERNAL_ERROR, "failed to initialize session")
		return
	}

	w.Header().Set(HeaderSessionID, sess.ID())
	writeJSONRPC(w, http.StatusOK, resp)
}

// session resolves the request's session and checks its protocol version
// header. On failure it writes the response and returns false.
func (s *Server) session(w http.ResponseWriter, r *http.Request, req *jsonrpc2.Request) (*session.Session, bool) {
	id := r.Header.Get(HeaderSessionID)
	if id == "" {
		writeJSONRPCError(w, http.StatusBadRequest, req.ID, mcpgo.INVALID_REQUEST, "missing "+HeaderSessionID+" header")
		return nil, false
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeJSONRPCError(w, http.StatusNotFound, req.ID, mcpgo.INVALID_REQUEST, "session not found")
		return nil, false
	}
	if err != nil {
		logger.Errorf("Failed to load session %s: %v", id, err)
		writeJSONRPCError(w, http.StatusInternalServerError, req.ID, mcpgo.INTERNAL_ERROR, "failed to load session")
		return nil, false
	}

	if v := r.Header.Get(HeaderProtocolVersion); v != "" && v != sess.ProtocolVersion() {
		writeJSONRPCError(w, http.StatusBadRequest, req.ID, mcpgo.INVALID_REQUEST,
			fmt.Sprintf("protocol version %q does not match negotiated version %q", v, sess.ProtocolVersion()))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(HeaderSessionID)
	if id == "" {
		http.Error(w, "missing "+HeaderSessionID+" header", http.StatusBadRequest)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requestLogger logs each request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debugw("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
