// Package main is the entry point for the navgate binary, the offline
// resilience gateway for the navigator application.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/milvetnav/navigator-gateway/internal/resilience"
	"github.com/milvetnav/navigator-gateway/pkg/cache"
	"github.com/milvetnav/navigator-gateway/pkg/config"
	"github.com/milvetnav/navigator-gateway/pkg/lifecycle"
	"github.com/milvetnav/navigator-gateway/pkg/logging"
	"github.com/milvetnav/navigator-gateway/pkg/notify"
	"github.com/milvetnav/navigator-gateway/pkg/proxy"
	"github.com/milvetnav/navigator-gateway/pkg/telemetry"
)

const (
	defaultConfigPath        = "navgate.yaml"
	serviceName              = "navgate"
	telemetryShutdownTimeout = 5 * time.Second
	gracefulShutdownTimeout  = 10 * time.Second
)

// version is stamped at build time.
var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "navgate",
		Short: "Offline resilience gateway for the navigator application",
		Long: `navgate fronts the navigator web application and its backend API with a
partitioned response cache. Cached GET responses keep the application usable
through network outages; failed submissions can be deferred and replayed when
connectivity returns.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newActivateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy and admin servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.serve(cmd.Context())
		},
	}
	cmd.Flags().String("proxy-listen", "", "Listen address for intercepted traffic")
	cmd.Flags().String("admin-listen", "", "Listen address for the admin endpoints")
	return cmd
}

func newInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Seed the static cache partition from the manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.install(cmd.Context())
		},
	}
}

func newActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Retire cache partitions from previous versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := buildApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.manager.Activate(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the navgate version",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("navgate %s\n", version)
		},
	}
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   cache.Store
	queue   notify.Queue
	hub     *notify.Hub
	metrics *telemetry.Metrics
	router  *proxy.Router
	manager *lifecycle.Manager
}

// buildApp loads configuration and constructs every component the
// subcommands share.
func buildApp(cmd *cobra.Command) (*app, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// A missing default config file is fine; env vars may carry everything.
	if configPath == defaultConfigPath {
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			configPath = ""
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if addr, _ := flagString(cmd, "proxy-listen"); addr != "" {
		cfg.Server.ProxyAddress = addr
	}
	if addr, _ := flagString(cmd, "admin-listen"); addr != "" {
		cfg.Server.AdminAddress = addr
	}

	logger := logging.Setup(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})

	origin, err := cfg.AppOriginURL()
	if err != nil {
		return nil, fmt.Errorf("invalid app origin: %w", err)
	}

	var store cache.Store
	var queue notify.Queue
	switch cfg.Cache.Backend {
	case "redis":
		redisStore, err := cache.NewRedisStore(cache.RedisConfig{
			URL:      cfg.Cache.Redis.URL,
			Password: cfg.Cache.Redis.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		store = redisStore
		queue = notify.NewRedisQueue(redisStore.Client())
		logger.Info("using redis storage", "url", cfg.Cache.Redis.URL)
	default:
		store = cache.NewMemoryStore()
		queue = notify.NewMemoryQueue()
		logger.Info("using in-memory storage")
	}

	metrics := telemetry.NewMetrics()
	hub := notify.NewHub(logger)

	var policy *proxy.RoutePolicy
	if cfg.RoutePolicy.File != "" {
		//nolint:gosec // Policy path is controlled by the operator
		src, err := os.ReadFile(cfg.RoutePolicy.File)
		if err != nil {
			return nil, fmt.Errorf("read route policy: %w", err)
		}
		policy, err = proxy.NewRoutePolicy(cmd.Context(), cfg.RoutePolicy.File, string(src), logger)
		if err != nil {
			return nil, err
		}
		logger.Info("route policy loaded", "file", cfg.RoutePolicy.File)
	}

	router := proxy.NewRouter(proxy.Config{
		Store:     store,
		AppOrigin: origin,
		APIHost:   cfg.Upstream.APIHost,
		Version:   cfg.Cache.Version,
		Policy:    policy,
		Queue:     queue,
		Breaker:   resilience.NewBreaker(resilience.DefaultBreakerConfig()),
		Logger:    logger,
		Metrics:   metrics,
	})

	manager, err := lifecycle.NewManager(lifecycle.ManagerConfig{
		Store:     store,
		AppOrigin: origin,
		Version:   cfg.Cache.Version,
		Hub:       hub,
		Logger:    logger,
		Metrics:   metrics,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		queue:   queue,
		hub:     hub,
		metrics: metrics,
		router:  router,
		manager: manager,
	}, nil
}

func flagString(cmd *cobra.Command, name string) (string, error) {
	if cmd.Flags().Lookup(name) == nil {
		return "", nil
	}
	return cmd.Flags().GetString(name)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("cache store close failed", "error", err)
	}
}

// install runs the install phase against the configured manifest.
func (a *app) install(ctx context.Context) error {
	if a.cfg.Offline.ManifestFile == "" {
		return errors.New("offline.manifest_file is not configured")
	}
	manifest, err := lifecycle.LoadManifest(a.cfg.Offline.ManifestFile)
	if err != nil {
		return err
	}
	return a.manager.Install(ctx, manifest)
}

// serve runs install and activate for the current version, then serves
// traffic until a shutdown signal arrives.
func (a *app) serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    a.cfg.Telemetry.OTLPEndpoint,
		Insecure:    a.cfg.Telemetry.Insecure,
		Environment: os.Getenv("NAVGATE_ENVIRONMENT"),
	})
	if err != nil {
		return fmt.Errorf("telemetry initialization failed: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := telemetryShutdown(sctx); err != nil {
			a.logger.Warn("telemetry shutdown error", "error", err)
		}
	}()

	if a.cfg.Offline.ManifestFile != "" {
		if err := a.install(ctx); err != nil {
			return err
		}
		if a.cfg.Offline.WatchManifest {
			watcher, err := lifecycle.NewManifestWatcher(a.cfg.Offline.ManifestFile, func(path string) error {
				manifest, err := lifecycle.LoadManifest(path)
				if err != nil {
					return err
				}
				return a.manager.Install(ctx, manifest)
			}, a.logger)
			if err != nil {
				return fmt.Errorf("manifest watcher: %w", err)
			}
			if err := watcher.Start(ctx); err != nil {
				return fmt.Errorf("manifest watcher: %w", err)
			}
			defer func() {
				if err := watcher.Stop(); err != nil {
					a.logger.Warn("manifest watcher stop failed", "error", err)
				}
			}()
		}
	}
	if err := a.manager.Activate(ctx); err != nil {
		return err
	}

	proxySrv := a.startServer(a.cfg.Server.ProxyAddress, otelhttp.NewHandler(a.router, "navgate.proxy"), "proxy")
	defer a.shutdownServer(proxySrv, "proxy")

	adminSrv := a.startServer(a.cfg.Server.AdminAddress, a.adminHandler(), "admin")
	defer a.shutdownServer(adminSrv, "admin")

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return nil
}

func (a *app) startServer(addr string, handler http.Handler, name string) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			a.logger.Error("server listen error", "server", name, "addr", addr, "error", err)
			return
		}
		a.logger.Info("server listening", "server", name, "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("server error", "server", name, "error", err)
		}
	}()

	return server
}

func (a *app) shutdownServer(server *http.Server, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Warn("server shutdown error", "server", name, "error", err)
	}
}
