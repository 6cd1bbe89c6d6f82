// ABOUTME: Gateway orchestrator that wires the LINE webhook to the conversation machine
// ABOUTME: Manages HTTP server, tailscale funnel, ledger, and health endpoints lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/photoid-gateway/internal/auth"
	"github.com/2389/photoid-gateway/internal/config"
	"github.com/2389/photoid-gateway/internal/conversation"
	"github.com/2389/photoid-gateway/internal/dedupe"
	"github.com/2389/photoid-gateway/internal/line"
	"github.com/2389/photoid-gateway/internal/metrics"
	"github.com/2389/photoid-gateway/internal/storage"
	"github.com/2389/photoid-gateway/internal/store"
)

// maxWebhookBody bounds a single webhook delivery. LINE batches are a few KB.
const maxWebhookBody = 1 << 20

// Gateway orchestrates the photoid-gateway server components.
type Gateway struct {
	config      *config.Config
	store       store.Store
	pending     *conversation.Store
	machine     *conversation.Machine
	dedupe      *dedupe.Cache
	metrics     *metrics.Metrics
	limiter     *rateLimiter
	handler     http.Handler
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	backend     string
	logger      *slog.Logger
}

// Option customizes New. Used by tests and by callers that bring their own backends.
type Option func(*options)

type options struct {
	store     store.Store
	fetcher   conversation.Fetcher
	replier   conversation.Replier
	persister conversation.Persister
	backend   string
	clock     func() time.Time
}

// WithStore uses s as the upload ledger instead of opening database.path.
func WithStore(s store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithFetcher replaces the LINE content client.
func WithFetcher(f conversation.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithReplier replaces the LINE reply client.
func WithReplier(r conversation.Replier) Option {
	return func(o *options) { o.replier = r }
}

// WithPersister replaces the configured storage backend. backend names it in the ledger.
func WithPersister(p conversation.Persister, backend string) Option {
	return func(o *options) {
		o.persister = p
		o.backend = backend
	}
}

// WithClock overrides the time source used for file naming.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// openStore is swapped in tests to observe the ledger New opens.
var openStore = initStore

// initStore opens the SQLite ledger at the configured path.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// initPersister builds the storage backend chosen by configuration.
// The choice is made once here and never re-probed.
func initPersister(cfg *config.Config, logger *slog.Logger) (conversation.Persister, string, error) {
	backend := cfg.StorageBackend()
	switch backend {
	case config.BackendDrive:
		creds, err := cfg.DriveCredentials()
		if err != nil {
			return nil, "", err
		}
		loc, err := cfg.Location()
		if err != nil {
			return nil, "", err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p, err := storage.NewDrivePersister(ctx, cfg.Storage.DriveFolderID, creds, loc, logger)
		if err != nil {
			return nil, "", fmt.Errorf("initializing drive storage: %w", err)
		}
		return p, backend, nil
	default:
		return storage.NewLocalPersister(cfg.Storage.LocalDir, logger), config.BackendLocal, nil
	}
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if o.fetcher == nil || o.replier == nil {
		client, err := line.NewClient(cfg.LINE.ChannelAccessToken, cfg.LINE.MaxContentBytes, logger)
		if err != nil {
			return nil, fmt.Errorf("creating LINE client: %w", err)
		}
		if o.fetcher == nil {
			o.fetcher = client
		}
		if o.replier == nil {
			o.replier = client
		}
	}

	if o.persister == nil {
		p, backend, err := initPersister(cfg, logger)
		if err != nil {
			return nil, err
		}
		o.persister = p
		o.backend = backend
	}

	// A ledger opened here is closed again if New fails; an injected one is the caller's.
	ownsStore := false
	if o.store == nil {
		s, err := openStore(cfg)
		if err != nil {
			return nil, err
		}
		o.store = s
		ownsStore = true
	}
	closeOwnedStore := func() {
		if ownsStore {
			_ = o.store.Close()
		}
	}

	pending := conversation.NewStore()

	var m *metrics.Metrics
	if cfg.Metrics.On() {
		m = metrics.New(pending.Len)
	}

	machineCfg := conversation.MachineConfig{
		Store:     pending,
		Fetcher:   o.fetcher,
		Persister: o.persister,
		Replier:   o.replier,
		Recorder:  store.NewRecorder(o.store, o.backend),
		Clock:     o.clock,
		Logger:    logger,
	}
	if m != nil {
		machineCfg.Observer = m
	}
	machine, err := conversation.NewMachine(machineCfg)
	if err != nil {
		closeOwnedStore()
		return nil, fmt.Errorf("creating conversation machine: %w", err)
	}

	gw := &Gateway{
		config:  cfg,
		store:   o.store,
		pending: pending,
		machine: machine,
		dedupe:  dedupe.New(cfg.Dedupe.TTL, dedupe.DefaultMaxSize),
		metrics: m,
		limiter: newRateLimiter(apiRequestsPerMinute, apiBurst),
		backend: o.backend,
		logger:  logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("/health", gw.handleHealth)
	mux.HandleFunc("/health/ready", gw.handleReady)

	// Webhook - authenticated by the channel signature
	mux.HandleFunc("/callback", gw.handleCallback)

	if m != nil {
		metricsPath := cfg.Metrics.Path
		if metricsPath == "" {
			metricsPath = config.DefaultMetricsPath
		}
		mux.Handle(metricsPath, m.Handler())
	}

	if err := gw.registerHTTPAPIRoutes(mux, cfg); err != nil {
		gw.dedupe.Close()
		closeOwnedStore()
		return nil, err
	}

	gw.handler = mux
	gw.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway configured",
		"storage_backend", gw.backend,
		"metrics", m != nil,
		"admin_auth", cfg.Auth.JWTSecret != "",
	)
	return gw, nil
}

// registerHTTPAPIRoutes registers the upload API with or without auth middleware.
func (g *Gateway) registerHTTPAPIRoutes(mux *http.ServeMux, cfg *config.Config) error {
	list := g.limiter.middleware(http.HandlerFunc(g.handleListUploads))
	get := g.limiter.middleware(http.HandlerFunc(g.handleGetUpload))

	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return fmt.Errorf("creating HTTP JWT verifier: %w", err)
		}
		authMiddleware := auth.HTTPAuthMiddleware(verifier, g.logger)
		mux.Handle("GET /api/uploads", authMiddleware(list))
		mux.Handle("GET /api/uploads/{id}", authMiddleware(get))
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		mux.Handle("GET /api/uploads", list)
		mux.Handle("GET /api/uploads/{id}", get)
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	return nil
}

// Handler returns the HTTP handler with every route registered.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// setupTCPListener creates a standard TCP listener on server.host:server.port.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "addr", g.config.Addr())

	ln, err := net.Listen("tcp", g.config.Addr())
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		return g.setupTailscaleListener(ctx)
	}
	return g.setupTCPListener()
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the gateway server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "photoid-gateway", "tailscale"), nil
}

// setupTailscaleListener joins the tailnet and listens on :443 via Funnel
// (reachable by LINE) or on :80 inside the tailnet only.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	if tsCfg.AuthKey == "" {
		return nil, errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY (get one at https://login.tailscale.com/admin/settings/keys)")
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   tsCfg.AuthKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	var ln net.Listener
	if tsCfg.Funnel {
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err = g.tsnetServer.ListenFunnel("tcp", ":443")
	} else {
		g.logger.Warn("tailscale funnel disabled - LINE cannot reach the webhook from outside the tailnet")
		ln, err = g.tsnetServer.Listen("tcp", ":80")
	}
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("listening on tailscale: %w", err)
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status, including the
// webhook URL to paste into the LINE console.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
	if dnsName != "" && g.config.Tailscale.Funnel {
		g.logger.Info("webhook URL", "url", "https://"+trimDot(dnsName)+"/callback")
	}
}

func trimDot(s string) string {
	if len(s) > 0 && s[len(s)-1] == '.' {
		return s[:len(s)-1]
	}
	return s
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the gateway server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway", "pending_images", g.pending.Len())

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	g.dedupe.Close()

	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the upload ledger answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d pending)", g.pending.Len())
}
