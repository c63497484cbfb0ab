package main

import (
	"log"
	"os"

	"github.com/tserav/inferno/internal/api"
	"github.com/tserav/inferno/internal/config"
	"github.com/tserav/inferno/internal/executor"
	"github.com/tserav/inferno/internal/executor/local"
	"github.com/tserav/inferno/internal/pipeline"
	"github.com/tserav/inferno/internal/store"
)

// passthrough copies the "data" input to the "output" blob. It stands in for
// a real model until a hardware engine factory is registered.
func passthrough(inputs map[string][]byte) (map[string][]byte, error) {
	return map[string][]byte{"output": inputs["data"]}, nil
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("inferno: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"devices", cfg.Devices,
		"max_requests", cfg.MaxRequests,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	registry := executor.NewRegistry()
	registry.Register(executor.DeviceCPU, local.NewFactory(passthrough))

	pipe, err := pipeline.New(pipeline.Config{
		Registry:  registry,
		ModelPath: cfg.ModelPath,
		Runtime: executor.RuntimeConfig{
			Devices:     cfg.Devices,
			MaxRequests: cfg.MaxRequests,
		},
		OutputName:  cfg.OutputName,
		MaxRequests: cfg.MaxRequests,
	}, logger)
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	defer pipe.Close()

	srv := api.NewServer(cfg.ListenAddr, db, registry, pipe, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
