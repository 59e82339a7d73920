package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"divrecon/config"
	"divrecon/logger"
	"divrecon/pipeline"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	nbimPath := flag.String("nbim", "", "Override path to the NBIM source file")
	custodyPath := flag.String("custody", "", "Override path to the custody source file")
	outDir := flag.String("out", "", "Override output directory for artifacts")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if *nbimPath != "" {
		cfg.Sources.NBIM.Path = *nbimPath
	}
	if *custodyPath != "" {
		cfg.Sources.Custody.Path = *custodyPath
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if env := config.AppEnvironment(); config.IsProductionLike(env) {
		cfg.Normalizer.Strict = true
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Recon.Name,
		"version": cfg.Recon.Version,
		"env":     config.AppEnvironment(),
		"strict":  cfg.Normalizer.Strict,
	}).Info("starting reconciliation")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A signal during the run cancels any in-flight S3 work; local artifact
	// writes are short enough to finish.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if cfg.Logging.DashboardName != "" {
		logger.InitCloudWatch(cfg.Storage.S3.Region, cfg.Recon.Name, cfg.Logging.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	summary, err := pipeline.New(cfg).Run(ctx)
	if err != nil {
		log.WithError(err).Error("reconciliation failed")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"total_keys":   summary.TotalRows,
		"matched":      summary.Matched,
		"nbim_only":    summary.NBIMOnly,
		"custody_only": summary.CustodyOnly,
	}).Info("reconciliation finished")
}
