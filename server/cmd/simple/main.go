package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xtr3m3nerd/DinoJam2/server/internal/descriptor"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/game"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/metrics"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/network"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/rules"
	"github.com/xtr3m3nerd/DinoJam2/server/internal/utils"
)

// A single match over TCP with no actor system, HTTP or archive.
func main() {
	var addr = flag.String("addr", ":5000", "TCP listen address")
	var data = flag.String("data", "server/data", "Descriptor directory")
	var script = flag.String("rules", "server/data/rules.lua", "Lua win conditions, empty to disable")
	var level = flag.String("log", "INFO", "Log level")
	flag.Parse()

	utils.SetLogLevel(*level)
	utils.LogInfo("Starting simple DinoJam2 server...")

	tables, layout, err := descriptor.Load(*data)
	if err != nil {
		log.Fatalf("Failed to load descriptors: %v", err)
	}
	conditions := game.NoWinConditions
	if *script != "" {
		s, err := rules.Load(*script, tables)
		if err != nil {
			log.Fatalf("Failed to load win conditions: %v", err)
		}
		defer s.Close()
		conditions = s
	}

	m := metrics.New()
	hub := network.NewHub(0, m)
	tcp := network.NewTCPServer(*addr, hub)
	if err := tcp.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	server := game.NewServer(hub, game.ServerOptions{
		Tables:     tables,
		Layout:     layout,
		Conditions: conditions,
		Metrics:    m,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	utils.LogInfof("Simple server listening on %s. Press Ctrl+C to shut down.", tcp.Addr())
	server.Run(ctx)

	utils.LogInfo("Shutting down server...")
	tcp.Stop()
	utils.LogInfo("Server stopped.")
}
