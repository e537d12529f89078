package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/redaction-review/internal/api"
	"github.com/raaihank/redaction-review/internal/audit"
	"github.com/raaihank/redaction-review/internal/cache"
	"github.com/raaihank/redaction-review/internal/config"
	"github.com/raaihank/redaction-review/internal/ingest"
	"github.com/raaihank/redaction-review/internal/logger"
	"github.com/raaihank/redaction-review/internal/redaction"
	"github.com/raaihank/redaction-review/internal/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		seedFile    = flag.String("seed", "", "Case fixture or detection file to load at startup (overrides ingest.seed_file)")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = flag.String("health-url", "http://localhost:8080/health", "URL used by -health-check")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("redaction-review %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	loader, err := config.NewLoader(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting redaction review service",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.String("config_file", loader.ConfigFile()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, err := initializeServices(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}

	store := redaction.NewStore()
	fixtureUser, err := seedStore(ctx, cfg, *seedFile, store, log)
	if err != nil {
		log.Fatal("Failed to seed document store", zap.Error(err))
	}

	manager := redaction.NewManager(store, log.WithComponent("lifecycle").Logger, svc.sinks()...)

	opts := svc.serverOptions()
	if fixtureUser != nil {
		opts = append(opts, api.WithFallbackReviewer(*fixtureUser))
	}
	server, err := api.New(cfg, log, manager, opts...)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	server.Limiter().StartCleanupRoutine(ctx, 30*time.Minute)

	if loader.ConfigFile() != "" {
		err := loader.Watch(func(newConfig *config.Config) {
			if err := server.Reconfigure(newConfig); err != nil {
				log.Warn("Ignoring configuration reload", zap.Error(err))
			}
		}, func(err error) {
			log.Warn("Invalid configuration change ignored", zap.Error(err))
		})
		if err != nil {
			log.Warn("Configuration hot reload disabled", zap.Error(err))
		}
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
			exitCode = 1
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer stop()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			exitCode = 1
		}
	}

	cancel()
	if err := svc.Close(); err != nil {
		log.Error("Failed to release resources", zap.Error(err))
		exitCode = 1
	}

	log.Info("Server shutdown complete")
	if exitCode != 0 {
		log.Sync()
		os.Exit(exitCode)
	}
}

// services holds the optional collaborators enabled by configuration
type services struct {
	hub          *websocket.Hub
	segmentCache *cache.SegmentCache
	auditStore   *audit.Store
	recorder     *audit.Recorder
}

// initializeServices connects the collaborators enabled in cfg
func initializeServices(ctx context.Context, cfg *config.Config, log *logger.Logger) (*services, error) {
	svc := &services{}

	if cfg.WebSocket.Enabled {
		ws := cfg.WebSocket
		svc.hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastLifecycle:   ws.Events.BroadcastLifecycle,
			BroadcastConnections: ws.Events.BroadcastConnections,
			MaxConnections:       ws.MaxConnections,
			ReadBufferSize:       ws.ReadBufferSize,
			WriteBufferSize:      ws.WriteBufferSize,
			PingInterval:         ws.PingInterval,
			PongTimeout:          ws.PongTimeout,
			WriteTimeout:         ws.WriteTimeout,
			MaxMessageSize:       ws.MaxMessageSize,
			AllowedOrigins:       ws.AllowedOrigins,
		}, log.Logger)
		go svc.hub.Run(ctx)
	}

	if cfg.Cache.Enabled {
		log.Info("Initializing segment cache...")
		c, err := cache.NewSegmentCache(&cfg.Cache, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to initialize segment cache: %w", err), svc.Close())
		}
		svc.segmentCache = c
	}

	if cfg.Audit.Enabled {
		log.Info("Initializing audit store...")
		store, err := audit.NewStore(&cfg.Audit, log.WithComponent("audit").Logger)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed to initialize audit store: %w", err), svc.Close())
		}
		svc.auditStore = store
		svc.recorder = audit.NewRecorder(store, &cfg.Audit, log.WithComponent("audit").Logger)
	}

	return svc, nil
}

func (s *services) sinks() []redaction.Option {
	var opts []redaction.Option
	if s.hub != nil {
		opts = append(opts, redaction.WithSink(s.hub))
	}
	if s.recorder != nil {
		opts = append(opts, redaction.WithSink(s.recorder))
	}
	return opts
}

func (s *services) serverOptions() []api.Option {
	var opts []api.Option
	if s.hub != nil {
		opts = append(opts, api.WithHub(s.hub))
	}
	if s.segmentCache != nil {
		opts = append(opts, api.WithSegmentSource(s.segmentCache))
	}
	if s.auditStore != nil {
		opts = append(opts, api.WithAuditLog(s.auditStore))
	}
	return opts
}

// Close flushes the audit recorder and closes every connection
func (s *services) Close() error {
	var err error
	if s.recorder != nil {
		err = multierr.Append(err, s.recorder.Close())
	}
	if s.auditStore != nil {
		err = multierr.Append(err, s.auditStore.Close())
	}
	if s.segmentCache != nil {
		err = multierr.Append(err, s.segmentCache.Close())
	}
	return err
}

// seedStore loads the configured fixture and applies the case settings. It
// returns the fixture's current user, if any.
func seedStore(ctx context.Context, cfg *config.Config, override string, store *redaction.Store, log *logger.Logger) (*redaction.Actor, error) {
	scanDate, err := cfg.Case.ParsedScanDate()
	if err != nil {
		return nil, err
	}
	store.SetCase(redaction.CaseInfo{
		CaseNumber: cfg.Case.CaseNumber,
		Status:     cfg.Case.Status,
		ScanDate:   scanDate,
	})

	path := cfg.Ingest.SeedFile
	if override != "" {
		path = override
	}
	if path == "" {
		log.Warn("No seed file configured, starting with an empty case")
		return nil, nil
	}

	loader := ingest.NewLoader(&ingest.Config{BatchSize: cfg.Ingest.BatchSize}, log.WithComponent("ingest").Logger)
	result, err := loader.Load(ctx, path, store)
	if err != nil {
		return nil, err
	}
	if result.InvalidRecords > 0 {
		log.Warn("Seed file contained invalid records",
			zap.Int64("invalid_records", result.InvalidRecords))
	}

	// Configured case details win over the fixture's
	if cfg.Case.CaseNumber != "" {
		info := store.Case()
		info.CaseNumber = cfg.Case.CaseNumber
		info.Status = cfg.Case.Status
		if !scanDate.IsZero() {
			info.ScanDate = scanDate
		}
		store.SetCase(info)
	}
	if result.Reviewer != nil && cfg.Reviewer.Name == "" && cfg.Reviewer.Badge == "" {
		log.Info("Acting as the seed fixture's current user", zap.String("reviewer_badge", result.Reviewer.Badge))
	}
	return result.Reviewer, nil
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
