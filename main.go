package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bosley/parley/config"
	"github.com/bosley/parley/metrics"
	"github.com/bosley/parley/voice"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	mode := flag.String("mode", config.ModeServe, "Run mode: serve, dial, interview, score or extract")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	shortlist := flag.String("shortlist", "data/shortlisted_candidates.xlsx", "Shortlisted candidates workbook (dial mode)")
	role := flag.String("role", "Software Engineer", "Role discussed on screening calls (dial mode)")
	salary := flag.String("salary", "", "Salary range negotiated on screening calls (dial mode)")
	listDevices := flag.Bool("list-devices", false, "List available audio output devices")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *listDevices {
		devices, err := voice.ListOutputDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio output devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Output Channels: %d\n", device.MaxOutputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("Failed to load environment", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(*mode); err != nil {
		slog.Error("Invalid configuration", "mode", *mode, "error", err)
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	rec := metrics.NewRecorder()
	slog.Info("Starting parley", "mode", *mode, "model", cfg.LLM.Model)

	switch *mode {
	case config.ModeServe:
		err = serve(ctx, cfg, rec)
	case config.ModeDial:
		err = dial(ctx, cfg, rec, *shortlist, *role, *salary)
	case config.ModeInterview:
		err = interview(ctx, cfg, rec)
	case config.ModeScore:
		err = score(ctx, cfg, rec)
	case config.ModeExtract:
		err = extractBookings(ctx, cfg, rec)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Run failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}
