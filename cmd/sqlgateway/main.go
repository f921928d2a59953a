package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redbco/redb-sqlgateway/internal/config"
	"github.com/redbco/redb-sqlgateway/internal/engine"
	"github.com/redbco/redb-sqlgateway/pkg/logger"

	// Import all database adapters to trigger their init() registration
	_ "github.com/redbco/redb-sqlgateway/internal/database/mssql"
	_ "github.com/redbco/redb-sqlgateway/internal/database/postgres"
)

var (
	configFile     = flag.String("config", "", "Path to the YAML configuration file")
	serviceVersion = "1.0.0"
)

func main() {
	flag.Parse()

	log := logger.New(engine.ServiceName, serviceVersion)

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	log.SetLevel(cfg.Logging.Level)

	// Create context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng := engine.NewEngine(cfg, log, serviceVersion)
	if err := eng.Start(ctx); err != nil {
		log.Errorf("Failed to start gateway: %v", err)
		os.Exit(1)
	}

	// Block until the process is signalled or the transport exits. A
	// stdio client closing its end of the pipe lands here with a nil
	// error.
	select {
	case <-ctx.Done():
		log.Infof("Shutdown signal received")
	case err := <-eng.Err():
		if err != nil {
			log.Errorf("Gateway transport failed: %v", err)
		}
	}

	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Errorf("Shutdown did not complete cleanly: %v", err)
		os.Exit(1)
	}
}
