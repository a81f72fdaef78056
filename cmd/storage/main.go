// Package main provides the storage task: it prepares the staging tree of a
// pipeline run and publishes the run identity for the downstream tasks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"newsetl/internal/config"
	"newsetl/internal/logger"
	"newsetl/internal/tasks"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	pipelineName := flag.String("pipeline", "", "Pipeline id (tempus_challenge_dag or tempus_bonus_challenge_dag)")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if *pipelineName == "" {
		log.Error("Please provide a pipeline with -pipeline flag")
		flag.PrintDefaults()
		os.Exit(1)
	}

	rc, err := tasks.NewRunContext(*pipelineName)
	if err != nil {
		log.Error("Invalid pipeline", "error", err)
		os.Exit(1)
	}

	runner, err := tasks.NewRunner(cfg, log)
	if err != nil {
		log.Error("Failed to initialize tasks", "error", err)
		os.Exit(1)
	}

	if err := runner.CreateStorage(context.Background(), rc); err != nil {
		log.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}

	fmt.Println(rc.RunID)
}
