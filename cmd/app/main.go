package main

import (
	"flag"
	"log"
	"os"

	"CoinDash/internal/di"
	"CoinDash/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s store=%s kafka=%t redis=%t", cfg.Environment, cfg.Store.Backend, cfg.Kafka.Enabled, cfg.Redis.Enabled)

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
