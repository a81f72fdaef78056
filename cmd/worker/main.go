// Package main provides the local worker that runs every stage of one
// pipeline in order.
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
	"newsetl/internal/report"
	"newsetl/internal/tasks"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	pipelineName := flag.String("pipeline", "tempus_challenge_dag", "Pipeline id to run")
	showReport := flag.Bool("report", true, "Print a headline summary table when the run completes")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("🚀 Starting pipeline run", "pipeline", string(rc.Pipeline), "run_id", rc.RunID)

	summary, err := runner.Run(ctx, rc)
	if err != nil {
		log.Error("❌ Pipeline run failed", "error", err)
		stop()
		os.Exit(1)
	}

	log.Info("✨ Pipeline complete", "headline_files", summary.HeadlineFiles, "duration", summary.Duration)

	if !*showReport {
		return
	}

	dir, err := runner.Storage().HeadlinesDirectory(rc.Pipeline)
	if err != nil {
		log.Error("Failed to resolve headlines directory", "error", err)
		os.Exit(1)
	}

	entries, err := report.LoadHeadlineRecords(dir, runner.Storage())
	if err != nil {
		log.Error("Failed to load headline records", "error", err)
		os.Exit(1)
	}

	fmt.Println("\n------------------------------------------------")
	fmt.Printf("📊 Summary Report (%s)\n", rc.Pipeline)
	fmt.Println("------------------------------------------------")
	fmt.Print(report.HeadlineSummary(entries))
	fmt.Printf("Total Duration: %v\n", summary.Duration)
	fmt.Println("------------------------------------------------")
}
