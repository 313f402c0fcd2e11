package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"optionflow/config"
	"optionflow/internal/channel"
	"optionflow/internal/feed"
	"optionflow/internal/fetch"
	"optionflow/internal/metrics"
	"optionflow/internal/oifetch"
	"optionflow/internal/orchestrator"
	"optionflow/internal/processor"
	"optionflow/internal/scanner"
	"optionflow/internal/writer"
	"optionflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	watchlistPath := flag.String("watchlists", "config/watchlists.yml", "Path to watchlist configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Optionflow.Name,
		"version":     cfg.Optionflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting optionflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watchlists extend the static ticker sets from the main config.
	if wl, err := config.LoadWatchlists(*watchlistPath); err == nil {
		cfg.Scanner.Tickers = mergeTickers(cfg.Scanner.Tickers, wl.AllTickers())
		cfg.OpenInterest.Tickers = mergeTickers(cfg.OpenInterest.Tickers, wl.AllOITickers())
	} else if !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Failed to load watchlists")
	}

	metrics.Configure(cfg.Metrics)
	metrics.Init()

	logger.InitCloudWatch(cfg.Storage.S3.Region, "OptionFlow", cfg.Logging.DashboardName)
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(
		cfg.Channels.AlertBuffer,
		cfg.Channels.OIBuffer,
		cfg.Channels.SignalBuffer,
	)
	defer channels.Close()

	metrics.StartChannelSizeMetrics(ctx, channels, 15*time.Second)

	client := fetch.NewClient(cfg.Fetch, log)

	feedStore := feed.NewStore(cfg.Feed.History)
	feedServer := feed.NewServer(cfg.Feed, cfg.Pricing, feedStore, log)

	var s3Writer *writer.S3Writer
	if cfg.Storage.S3.Enabled {
		s3Writer, err = writer.NewS3Writer(cfg)
		if err != nil {
			log.WithError(err).Error("Failed to create S3 writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archive writer")
	}

	proc := processor.NewProcessor(cfg.Clusters, channels)
	proc.AddAlertSink(feedStore.AddAlert)
	if s3Writer != nil {
		proc.AddAlertSink(s3Writer.EnqueueAlert)
	}

	chainScanner := scanner.NewScanner(cfg.Scanner, client, channels.Alerts)
	orch := orchestrator.NewOrchestrator(cfg.Orchestrator, cfg.Scanner, chainScanner)
	orch.SetScanListener(feedStore.RecordScan)

	oiFetcher := oifetch.NewFetcher(cfg.OpenInterest, client, channels.OI)

	if s3Writer != nil {
		if err := s3Writer.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start S3 writer")
			os.Exit(1)
		}
	}

	if err := proc.Start(ctx); err != nil {
		log.WithError(err).Error("Failed to start signal processor")
		os.Exit(1)
	}

	// Cluster events fan out to the feed and the archive.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-channels.Signals.Events:
				if !ok {
					return
				}
				feedStore.AddCluster(evt)
				if s3Writer != nil {
					s3Writer.EnqueueCluster(evt)
				}
			}
		}
	}()

	if cfg.Scanner.Enabled {
		if err := orch.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start scan orchestrator")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("Chain scanner disabled")
	}

	if cfg.OpenInterest.Enabled {
		if err := oiFetcher.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start open-interest fetcher")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("Open-interest fetcher disabled")
	}

	if feedServer != nil {
		go func() {
			if err := feedServer.Run(ctx); err != nil {
				log.WithError(err).Error("Feed server exited")
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if cfg.OpenInterest.Enabled {
		log.Info("stopping open-interest fetcher")
		oiFetcher.Stop()
	}

	if cfg.Scanner.Enabled {
		log.Info("stopping scan orchestrator")
		orch.Stop()
	}

	log.Info("stopping signal processor")
	proc.Stop()

	if s3Writer != nil {
		log.Info("stopping S3 writer")
		s3Writer.Stop()
	}

	log.Info("optionflow stopped")
}

func mergeTickers(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := append([]string(nil), base...)
	for _, t := range base {
		seen[t] = struct{}{}
	}
	for _, t := range extra {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
