// Package main prints a summary table of the staged headlines of a pipeline.
package main

import (
	"flag"
	"fmt"
	"os"

	"newsetl/internal/config"
	"newsetl/internal/logger"
	"newsetl/internal/report"
	"newsetl/internal/tasks"
)

func main() {
	configFile := flag.String("config", "", "Path to YAML configuration file")
	pipelineName := flag.String("pipeline", "", "Pipeline id (defaults to the one published by the storage task)")
	output := flag.String("output", "", "Write the table to this file instead of stdout")

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

	table := report.HeadlineSummary(entries)

	if *output == "" {
		fmt.Print(table)

		return
	}

	if err := os.WriteFile(*output, []byte(table), 0o644); err != nil {
		log.Error("Failed to write report", "path", *output, "error", err)
		os.Exit(1)
	}

	log.Info("Report written", "path", *output, "records", len(entries))
}
