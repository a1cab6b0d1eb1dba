package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/CodingInCarhartts/yum-osu/config"
	"github.com/CodingInCarhartts/yum-osu/logger"
	"github.com/CodingInCarhartts/yum-osu/persistence"
	"github.com/CodingInCarhartts/yum-osu/server"
)

func main() {
	logger.Init()
	defer logger.Sync()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := persistence.Open(cfg.Storage)
	if err != nil {
		logger.Log.Fatalf("Failed to open storage (%s): %v", cfg.Storage.Driver, err)
	}
	defer store.Close()

	gameServer, err := server.NewGameServer(cfg, store)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize server: %v", err)
	}

	// Shut down cleanly on SIGINT/SIGTERM so the snapshot gets flushed.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Log.Info("shutdown signal received")
		gameServer.Shutdown()
	}()

	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
