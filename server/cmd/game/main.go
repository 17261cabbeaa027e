package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asynkron/protoactor-go/actor"

	"github.com/xtr3m3nerd/DinoJam2/server/configs"
	internalActor "github.com/xtr3m3nerd/DinoJam2/server/internal/actor"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/archive"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/descriptor"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/httpapi"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/metrics"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/network"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/rules"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	startedAt := time.Now()

	// --- Configuration Loading ---
	configs.CreateExampleConfigFile("config.json")
	cfg, err := configs.LoadConfig("config.json")
	if err != nil {
		// Our logger is not configured yet.
		log.Fatalf("Failed to load configuration: %v", err)
	}

	utils.SetLogLevel(cfg.Server.LogLevel)
	utils.LogInfo("Starting DinoJam2 match server...")
	utils.LogInfof("Configuration loaded. TCP: %s, HTTP: %s, LogLevel: %s", cfg.TCPAddr(), cfg.HTTPAddr(), cfg.Server.LogLevel)

	// --- Descriptor Tables ---
	tables, layout, err := descriptor.Load(cfg.Game.DataDir)
	if err != nil {
		utils.LogFatalf("Failed to load descriptors from %s: %v", cfg.Game.DataDir, err)
	}
	utils.LogInfof("Loaded %d units, %d terrain kinds and %d buildings.", len(tables.Units), len(tables.Terrain), len(tables.Buildings))

	conditions := game.NoWinConditions
	if cfg.Game.Script != "" {
		script, err := rules.Load(cfg.Game.Script, tables)
		if err != nil {
			utils.LogFatalf("Failed to load win conditions: %v", err)
		}
		defer script.Close()
		conditions = script
		utils.LogInfof("Win conditions loaded from %s.", cfg.Game.Script)
	} else {
		utils.LogWarn("No win condition script configured. Matches only end when a player leaves.")
	}

	// --- Match Archive ---
	var store *archive.Store
	if cfg.ArchiveEnabled() {
		store, err = archive.Open(cfg.Database.PostgresURL, cfg.RedisConfig())
		if err != nil {
			utils.LogFatalf("Failed to open match archive: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		err = store.Start(ctx)
		cancel()
		if err != nil {
			utils.LogFatalf("Failed to start match archive: %v", err)
		}
	} else {
		utils.LogWarn("PostgreSQL is not configured. Finished matches will not be archived.")
	}

	// --- Network ---
	m := metrics.New()
	hub := network.NewHub(cfg.Server.MaxMessagesPerSecond, m)
	tcpServer := network.NewTCPServer(cfg.TCPAddr(), hub)
	if err := tcpServer.Start(); err != nil {
		utils.LogFatalf("Failed to start TCP server: %v", err)
	}

	opts := game.ServerOptions{
		Tables:       tables,
		Layout:       layout,
		Conditions:   conditions,
		Metrics:      m,
		TickInterval: cfg.TickInterval(),
	}
	if store != nil {
		opts.Archiver = store
	}
	server := game.NewServer(hub, opts)

	// --- Actor System ---
	actorSystem := actor.NewActorSystemWithConfig(actor.Configure(
		actor.WithLoggerFactory(func(*actor.ActorSystem) *slog.Logger { return utils.Logger() }),
	))
	match, err := internalActor.SpawnMatch(actorSystem, server, cfg.TickInterval(), requestTimeout)
	if err != nil {
		utils.LogFatalf("Failed to spawn MatchActor: %v", err)
	}
	utils.LogInfo("MatchActor spawned.")

	// --- HTTP ---
	var httpServer *http.Server
	if cfg.Server.HTTPPort != 0 {
		routerOpts := httpapi.Options{
			Match:     match,
			Tables:    tables,
			Metrics:   m.Handler(),
			WebSocket: network.NewWebSocketServer(hub),
		}
		if store != nil {
			routerOpts.Store = store
		}
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr(),
			Handler:           httpapi.NewRouter(routerOpts),
			ReadHeaderTimeout: requestTimeout,
		}
		go func() {
			utils.LogInfof("HTTP server listening on %s", httpServer.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				utils.LogFatalf("HTTP server failed: %v", err)
			}
		}()
	}

	utils.Elapsed("Startup", startedAt)
	utils.LogInfo("DinoJam2 match server running. Press Ctrl+C to shut down.")

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.LogInfo("Shutting down DinoJam2 match server...")

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpServer.Shutdown(ctx); err != nil {
			utils.LogErrorf("HTTP server shutdown: %v", err)
		}
		cancel()
	}
	tcpServer.Stop()

	match.Stop()
	utils.LogInfo("MatchActor stopped.")
	actorSystem.Shutdown()

	if store != nil {
		store.Stop()
	}
	utils.LogInfo("DinoJam2 match server shut down gracefully.")
}
