// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/llmtrace/ratelimit"
	"storj.io/llmtrace/traceauth"
	"storj.io/llmtrace/tracer"
)

// Version reported by the health endpoint.
const Version = "1.0.0"

// Config is the HTTP server configuration.
type Config struct {
	Address     string `help:"address to listen on" default:":8080"`
	CORSOrigins string `help:"comma separated list of allowed cors origins" default:"*"`
}

// Server wires the controllers, authentication and rate limiting into one
// HTTP endpoint.
type Server struct {
	log     *zap.Logger
	config  Config
	service *tracer.Service
	auth    *traceauth.Authenticator
	limiter *ratelimit.Limiter

	listener net.Listener
	server   http.Server
}

// NewServer creates a new Server.
func NewServer(log *zap.Logger, config Config, service *tracer.Service, auth *traceauth.Authenticator, limiter *ratelimit.Limiter, listener net.Listener) *Server {
	server := &Server{
		log:      log,
		config:   config,
		service:  service,
		auth:     auth,
		limiter:  limiter,
		listener: listener,
	}

	traces := NewTraces(log.Named("traces"), service)
	spans := NewSpans(log.Named("spans"), service)
	stats := NewStats(log.Named("stats"), service)

	router := mux.NewRouter()
	router.Use(server.withRateLimit)

	router.HandleFunc("/health", server.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(server.withAuth)
	api.HandleFunc("/traces", traces.Create).Methods(http.MethodPost)
	api.HandleFunc("/traces", traces.List).Methods(http.MethodGet)
	api.HandleFunc("/traces/{trace_id}", traces.Get).Methods(http.MethodGet)
	api.HandleFunc("/traces/{trace_id}/complete", traces.Complete).Methods(http.MethodPatch)
	api.HandleFunc("/traces/{trace_id}/spans", spans.Create).Methods(http.MethodPost)
	api.HandleFunc("/spans/{span_id}/complete", spans.Complete).Methods(http.MethodPatch)
	api.HandleFunc("/stats", stats.Project).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(strings.Split(config.CORSOrigins, ",")),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", traceauth.Header}),
	)

	server.server = http.Server{
		Handler: cors(router),
	}
	return server
}

// Run starts the server and blocks until ctx is canceled.
func (server *Server) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		defer cancel()
		server.log.Info("server listening", zap.String("address", server.listener.Addr().String()))
		err := server.server.Serve(server.listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close stops the server immediately.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// withRateLimit rejects requests from sources that exhausted their window.
// The limit applies before authentication so unauthenticated floods are cut
// off as early as possible, and it covers every route including health.
func (server *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !server.limiter.Allow(requestSource(r)) {
			serveJSON(server.log, w, http.StatusTooManyRequests, map[string]string{
				"detail": "rate limit exceeded, try again later",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuth resolves the API key and stores the project on the context.
func (server *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project, err := server.auth.Authenticate(r)
		if err != nil {
			serveError(server.log, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withProject(r.Context(), project)))
	})
}

// requestSource identifies the client for rate limiting purposes.
func requestSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	serveJSON(server.log, w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "LLM Tracer",
		"version":   Version,
		"features":  []string{"Multi-project-support", "Cost tracking", "Detailed trace analysis"},
		"storage":   server.service.StorageType(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
