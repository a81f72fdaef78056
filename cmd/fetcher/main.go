// Package main provides the fetch tasks of a pipeline run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"newsetl/internal/config"
	"newsetl/internal/logger"
	"newsetl/internal/tasks"
)

// Stages.
const (
	stageSources   = "sources"
	stageHeadlines = "headlines"
	stageKeywords  = "keywords"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	stage := flag.String("stage", "", "Fetch stage: sources, headlines or keywords")
	pipelineName := flag.String("pipeline", "", "Pipeline id (defaults to the one published by the storage task)")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	runner, err := tasks.NewRunner(cfg, log)
	if err != nil {
		log.Error("Failed to initialize tasks", "error", err)
		os.Exit(1)
	}

	rc, err := tasks.ResolveRunContext(runner.Variables(), *pipelineName)
	if err != nil {
		log.Error("Failed to resolve pipeline run", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, runner, rc, *stage); err != nil {
		log.Error("Fetch failed", "stage", *stage, "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, runner *tasks.Runner, rc tasks.RunContext, stage string) error {
	switch stage {
	case stageSources:
		return runner.FetchSources(ctx, rc)
	case stageHeadlines:
		_, err := runner.FetchSourceHeadlines(ctx, rc)

		return err
	case stageKeywords:
		_, err := runner.FetchKeywordHeadlines(ctx, rc)

		return err
	default:
		return fmt.Errorf("unknown stage %q (want %s, %s or %s)", stage, stageSources, stageHeadlines, stageKeywords)
	}
}
