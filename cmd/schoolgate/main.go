package main

//	@title						SchoolGate API
//	@version					1.0.0
//	@description				Secure outbound gateway for student information system integrations.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: "Bearer {token}"

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/schoolgate/schoolgate/api/swagger"
	"github.com/schoolgate/schoolgate/internal/audit"
	"github.com/schoolgate/schoolgate/internal/auth"
	"github.com/schoolgate/schoolgate/internal/config"
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/event"
	"github.com/schoolgate/schoolgate/internal/keys"
	"github.com/schoolgate/schoolgate/internal/monitor"
	"github.com/schoolgate/schoolgate/internal/registry"
	"github.com/schoolgate/schoolgate/internal/server"
	"github.com/schoolgate/schoolgate/internal/store"
	"github.com/schoolgate/schoolgate/internal/transmit"
	"github.com/schoolgate/schoolgate/internal/version"
	"github.com/schoolgate/schoolgate/internal/webhook"
	"github.com/schoolgate/schoolgate/internal/ws"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("SchoolGate server starting", zap.String("version", version.Short()))

	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	// Open database
	dbPath := viperCfg.GetString("database.dsn")
	if dbPath == "" {
		dbPath = "schoolgate.db"
	}
	db, err := store.New(dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.CheckVersion(context.Background(), version.Short()); err != nil {
		logger.Fatal("database version check failed", zap.Error(err))
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Shared services
	bus := event.NewBus(logger.Named("event"))

	// Master key and encryption engine, shared by devices and transmit.
	masterKey, err := keys.LoadMasterKey(cfg.Sub("encryption"), logger.Named("keys"))
	if err != nil {
		logger.Fatal("failed to load master key", zap.Error(err))
	}
	engine, err := keys.NewEngine(masterKey)
	if err != nil {
		logger.Fatal("failed to create encryption engine", zap.Error(err))
	}

	// Register all modules (compile-time composition).
	reg := registry.New(logger.Named("registry"))

	authMod := auth.New()
	devMod := devices.New(engine)
	auditMod := audit.New()
	txMod := transmit.New(devMod, auditMod, engine, transmit.Passthrough{})
	monMod := monitor.New(devMod)
	wsMod := ws.New(authMod)
	webhookMod := webhook.New()

	for _, m := range []module.Module{authMod, devMod, auditMod, txMod, monMod, wsMod, webhookMod} {
		if err := reg.Register(m); err != nil {
			logger.Fatal("failed to register module", zap.Error(err))
		}
	}

	if err := reg.Validate(); err != nil {
		logger.Fatal("module validation failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := reg.InitAll(ctx, func(name string) module.Dependencies {
		return module.Dependencies{
			Config: cfg.Sub("modules." + name),
			Logger: logger.Named(name),
			Store:  db,
			Bus:    bus,
		}
	}); err != nil {
		logger.Fatal("failed to initialize modules", zap.Error(err))
	}

	if err := reg.StartAll(ctx); err != nil {
		logger.Fatal("failed to start modules", zap.Error(err))
	}

	// HTTP server
	addr := fmt.Sprintf("%s:%d", viperCfg.GetString("server.host"), viperCfg.GetInt("server.port"))
	devMode := viperCfg.GetBool("server.dev_mode")
	readyCheck := server.ReadinessChecker(func(ctx context.Context) error {
		return db.DB().PingContext(ctx)
	})
	srv := server.New(addr, reg, logger.Named("server"), readyCheck, authMod.HTTPMiddleware(), devMode)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("SchoolGate server ready", zap.String("addr", addr))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	reg.StopAll(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("SchoolGate server stopped")
}
