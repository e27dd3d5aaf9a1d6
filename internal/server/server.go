package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/oktsec/signdata/internal/audit"
	"github.com/oktsec/signdata/internal/config"
	"github.com/oktsec/signdata/internal/identity"
	"github.com/oktsec/signdata/internal/metrics"
	"github.com/oktsec/signdata/internal/replay"
	"github.com/oktsec/signdata/internal/signdata"
)

// Version is reported by /health and the CLI.
var Version = "0.1.0"

// Server is the signdata relying-party HTTP server.
type Server struct {
	cfg         *config.Config
	cfgPath     string
	srv         *http.Server
	ln          net.Listener
	keys        *identity.KeyStore
	pipeline    *Pipeline
	guard       replay.Guard
	audit       *audit.Store
	logger      *slog.Logger
	watchCtx    context.Context
	watchCancel context.CancelFunc
	sighup      chan os.Signal
	stopOnce    sync.Once
}

// NewServer creates and wires the server. cfgPath may be empty, in which
// case the config is not watched for changes.
func NewServer(ctx context.Context, cfg *config.Config, cfgPath string, logger *slog.Logger) (*Server, error) {
	// Load wallet public keys
	keys := identity.NewKeyStore()
	if cfg.Identity.KeysDir != "" {
		if err := keys.LoadFromDir(cfg.Identity.KeysDir); err != nil {
			logger.Warn("could not load keys, only explicit public keys will verify", "error", err)
		} else {
			logger.Info("loaded wallet keys", "count", keys.Count(), "keys", keys.Names())
		}
	}

	guard, err := replay.New(ctx, cfg.Verify.Replay.Backend, replay.RedisConfig{
		Address:   cfg.Verify.Replay.RedisAddr,
		DB:        cfg.Verify.Replay.RedisDB,
		KeyPrefix: cfg.Verify.Replay.KeyPrefix,
		Password:  os.Getenv("SIGNDATA_REDIS_PASSWORD"),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening replay guard: %w", err)
	}

	auditStore, err := audit.NewStore(cfg.Audit.DBPath, logger, cfg.Audit.RetentionDays)
	if err != nil {
		_ = guard.Close()
		return nil, fmt.Errorf("opening audit store: %w", err)
	}

	m := metrics.New()
	svc := signdata.New(signdata.WithLogger(logger))

	pipeline, err := NewPipeline(PipelineDeps{
		Service: svc,
		Keys:    keys,
		Guard:   guard,
		Audit:   auditStore,
		Metrics: m,
		Limiter: NewRateLimiter(cfg.RateLimit.PerAddress, cfg.RateLimit.Window()),
		Logger:  logger,
	}, cfg.Verify)
	if err != nil {
		_ = guard.Close()
		_ = auditStore.Close()
		return nil, err
	}

	var signer *signdata.Service
	if cfg.Signer.Enabled {
		signer = svc
		logger.Warn("development signer enabled", "keys_dir", cfg.Identity.KeysDir)
	}

	h := NewHandler(pipeline, signer, cfg.Identity.KeysDir, auditStore, m, logger)
	mux := http.NewServeMux()
	h.Routes(mux)

	// Bind to 127.0.0.1 by default (localhost only).
	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	// Try configured port, auto-find next available if busy.
	ln, actualPort, err := listenAutoPort(bind, cfg.Server.Port, logger)
	if err != nil {
		_ = guard.Close()
		_ = auditStore.Close()
		return nil, fmt.Errorf("binding port: %w", err)
	}
	cfg.Server.Port = actualPort

	srv := &http.Server{
		Handler:        wrap(mux, m, logger),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	sighup := make(chan os.Signal, 1)
	if reloadOnSIGHUP(cfg) {
		signal.Notify(sighup, syscall.SIGHUP)
	}
	return &Server{
		cfg:         cfg,
		cfgPath:     cfgPath,
		srv:         srv,
		ln:          ln,
		keys:        keys,
		pipeline:    pipeline,
		guard:       guard,
		audit:       auditStore,
		logger:      logger,
		watchCtx:    watchCtx,
		watchCancel: watchCancel,
		sighup:      sighup,
	}, nil
}

// wrap applies the middleware chain to mux.
func wrap(mux *http.ServeMux, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	var h http.Handler = mux
	h = instrument(m)(h)
	h = securityHeaders(h)
	h = logging(logger)(h)
	h = recovery(logger)(h)
	h = requestID(h)
	return otelhttp.NewHandler(h, "signdata")
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := net.JoinHostPort(bind, fmt.Sprint(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		// When port is 0, the OS assigns a random port. Return the actual one.
		actual := ln.Addr().(*net.TCPAddr).Port
		return ln, actual, nil
	}

	if !isAddrInUse(err) {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		ln, err = net.Listen("tcp", net.JoinHostPort(bind, fmt.Sprint(tryPort)))
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}

func reloadOnSIGHUP(cfg *config.Config) bool {
	return runtime.GOOS != "windows" && cfg.Identity.KeysDir != ""
}

// stopBackground ends the config watcher and the SIGHUP reload loop.
func (s *Server) stopBackground() {
	s.stopOnce.Do(func() {
		s.watchCancel()
		signal.Stop(s.sighup)
		close(s.sighup)
	})
}

// AuditStore returns the audit store for CLI queries.
func (s *Server) AuditStore() *audit.Store {
	return s.audit
}

// Pipeline returns the verification pipeline.
func (s *Server) Pipeline() *Pipeline {
	return s.pipeline
}

// Port returns the actual port the server is bound to.
func (s *Server) Port() int {
	return s.cfg.Server.Port
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Start begins listening. Blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("signdata server starting",
		"addr", s.ln.Addr().String(),
		"replay_backend", s.cfg.Verify.Replay.Backend,
		"allowed_domains", len(s.cfg.Verify.AllowedDomains),
		"signer", s.cfg.Signer.Enabled,
	)

	if s.cfgPath != "" {
		go func() {
			err := config.Watch(s.watchCtx, s.cfgPath, s.logger, func(c *config.Config) {
				if err := s.pipeline.UpdatePolicy(c.Verify); err != nil {
					s.logger.Error("failed to apply verify policy", "error", err)
					return
				}
				s.logger.Info("verify policy updated",
					"max_age_seconds", c.Verify.MaxAgeSeconds,
					"allowed_domains", len(c.Verify.AllowedDomains),
				)
			})
			if err != nil {
				s.logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	// SIGHUP handler for hot-reloading keys (Unix only)
	if reloadOnSIGHUP(s.cfg) {
		go func() {
			for range s.sighup {
				s.logger.Info("SIGHUP received, reloading keys", "dir", s.cfg.Identity.KeysDir)
				if err := s.keys.ReloadFromDir(s.cfg.Identity.KeysDir); err != nil {
					s.logger.Error("failed to reload keys", "error", err)
				} else {
					s.logger.Info("keys reloaded", "count", s.keys.Count(), "keys", s.keys.Names())
				}
			}
		}()
	}

	return s.srv.Serve(s.ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	s.stopBackground()
	err := s.srv.Shutdown(ctx)
	if cerr := s.guard.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.audit.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
