// Package api serves the engine control API: boot and quit, status, the
// encoded command line, recent logs and live lifecycle events.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/synthnode/internal/api/models"
	"github.com/smazurov/synthnode/internal/engine"
	"github.com/smazurov/synthnode/internal/events"
	"github.com/smazurov/synthnode/internal/logging"
	"github.com/smazurov/synthnode/internal/version"
)

const authRealm = `Basic realm="synthnode API"`

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string
	Supervisor   *engine.Supervisor
	EventBus     *events.Bus
	// PrometheusHandler is mounted at /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the Huma v2 API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	supervisor *engine.Supervisor
	eventBus   *events.Bus
	logger     *slog.Logger
}

// NewServer creates the API server and registers all routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("synthnode API", version.Get().Version)
	config.Info.Description = "Boot, monitor and quit a SuperCollider synthesis engine"
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:        api,
		mux:        mux,
		supervisor: opts.Supervisor,
		eventBus:   opts.EventBus,
		logger:     logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// basicAuthMiddleware enforces HTTP basic auth on operations that declare a
// security requirement. SSE clients that cannot set headers may pass the
// base64 credentials in the auth query parameter.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if op := ctx.Operation(); op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		encoded := ""
		if header := ctx.Header("Authorization"); header != "" {
			const prefix = "Basic "
			if !strings.HasPrefix(header, prefix) {
				s.unauthorized(ctx, "Invalid authentication type")
				return
			}
			encoded = header[len(prefix):]
		} else {
			encoded = ctx.Query("auth")
		}
		if encoded == "" {
			s.unauthorized(ctx, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			s.unauthorized(ctx, "Invalid credentials format", err)
			return
		}
		user, pass, ok := strings.Cut(string(decoded), ":")
		if !ok {
			s.unauthorized(ctx, "Invalid credentials format")
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !userOK || !passOK {
			s.unauthorized(ctx, "Invalid credentials")
			return
		}
		next(ctx)
	}
}

func (s *Server) unauthorized(ctx huma.Context, msg string, errs ...error) {
	ctx.SetHeader("WWW-Authenticate", authRealm)
	_ = huma.WriteErr(s.api, ctx, http.StatusUnauthorized, msg, errs...)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting synthnode API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
// Open event streams are closed rather than waited for.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerEngineRoutes()
	s.registerEngineMetricsRoutes()
	s.registerLogRoutes()
	s.registerSSERoutes()
}

// withAuth returns the basic auth security requirement.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
