package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/framegraph/framegraph/internal/airtable"
	"github.com/framegraph/framegraph/internal/analyzer"
	"github.com/framegraph/framegraph/internal/config"
	"github.com/framegraph/framegraph/internal/drive"
	"github.com/framegraph/framegraph/internal/embeddings"
	"github.com/framegraph/framegraph/internal/engine"
	"github.com/framegraph/framegraph/internal/extractor"
	"github.com/framegraph/framegraph/internal/ingest"
	"github.com/framegraph/framegraph/internal/migrate"
	"github.com/framegraph/framegraph/internal/models"
	"github.com/framegraph/framegraph/internal/ocr"
	"github.com/framegraph/framegraph/internal/retry"
	"github.com/framegraph/framegraph/internal/storage"
	"github.com/framegraph/framegraph/internal/verify"
)

func usage() {
	fmt.Println(`Usage: framegraph <command> [options]

Commands:
  init-schema   create the zone tables and vector extension
  ingest        process pending record-store frames
  extract       extract frames from a local recording and register them
  migrate       backfill chunk-aware zones from legacy embeddings
  verify        audit referential integrity across all zones

Options:
  --config path   YAML config file
  --video path    recording to extract (extract only)
  --output dir    frame output directory (extract only)
  --filter f      record-store filter formula (ingest only)
  --repair        prune duplicate embeddings (verify only)
  --json          print machine-readable reports`)
}

func main() {
	ctx := context.Background()

	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: "15:04:05",
		}),
	)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	command := os.Args[1]

	// Parse command line arguments
	configPath := ""
	videoPath := ""
	outputDir := "output_frames"
	filter := ""
	repair := false
	jsonOut := false

	for i := 2; i < len(os.Args); i++ {
		switch os.Args[i] {
		case "--config":
			if i+1 < len(os.Args) {
				configPath = os.Args[i+1]
				i++
			}
		case "--video":
			if i+1 < len(os.Args) {
				videoPath = os.Args[i+1]
				i++
			}
		case "--output":
			if i+1 < len(os.Args) {
				outputDir = os.Args[i+1]
				i++
			}
		case "--filter":
			if i+1 < len(os.Args) {
				filter = os.Args[i+1]
				i++
			}
		case "--repair":
			repair = true
		case "--json":
			jsonOut = true
		default:
			fmt.Printf("Unknown option: %s\n", os.Args[i])
			usage()
			os.Exit(1)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	pgConfig := storage.PostgresConfig{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
	}

	switch command {
	case "init-schema":
		if err := storage.InitSchema(ctx, pgConfig, cfg.Dimension); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		fmt.Println("Schema initialized successfully!")

	case "ingest":
		store := mustOpen(ctx, pgConfig, cfg.Dimension)
		defer store.Close()
		eng := engine.New(store, cfg.Dimension, logger)

		visionAgent, err := analyzer.NewAgent(ctx, analyzer.OllamaConfig{
			BaseURL: cfg.Ollama.BaseURL,
			Port:    cfg.Ollama.Port,
			Model:   cfg.Ollama.Model,
		}, logger)
		if err != nil {
			log.Fatalf("Failed to initialize vision agent: %v", err)
		}

		records := airtable.NewClient(airtable.Config{
			BaseURL:  cfg.Airtable.BaseURL,
			APIKey:   cfg.Airtable.APIKey,
			BaseID:   cfg.Airtable.BaseID,
			Table:    cfg.Airtable.Table,
			MinDelay: time.Duration(cfg.Airtable.MinDelayMS) * time.Millisecond,
		}, retry.Default, logger)
		files := drive.NewClient(drive.Config{
			BaseURL: cfg.Drive.BaseURL,
			APIKey:  cfg.Drive.APIKey,
		}, retry.Default)
		embedder := embeddings.NewService(embeddings.Config{
			APIKey:    cfg.OpenAI.APIKey,
			Model:     cfg.OpenAI.EmbedModel,
			Dimension: cfg.Dimension,
		}, retry.Default, logger)

		pipeline := ingest.New(records, files,
			ocr.New(visionAgent, logger),
			analyzer.New(visionAgent, logger),
			embedder, eng,
			ingest.Options{
				Workers:      cfg.Workers,
				ChunkWindow:  cfg.ChunkWindow,
				ChunkOverlap: cfg.ChunkOverlap,
				Filter:       filter,
			}, logger)

		summary, err := pipeline.Run(ctx)
		if err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		fmt.Printf("Ingestion finished: processed=%d skipped=%d errored=%d\n",
			summary.Processed, summary.Skipped, summary.Errored)
		if summary.Errored > 0 {
			os.Exit(1)
		}

	case "extract":
		if videoPath == "" {
			fmt.Println("Usage: framegraph extract --video path/to/recording.mp4 [--output output_directory]")
			os.Exit(1)
		}
		store := mustOpen(ctx, pgConfig, cfg.Dimension)
		defer store.Close()
		eng := engine.New(store, cfg.Dimension, logger)

		recording := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
		// Folder names carry no underscore in reference ids.
		folder := strings.ReplaceAll(recording, "_", "-")

		frames, err := extractor.ExtractFrames(videoPath, outputDir, 15)
		if err != nil {
			log.Fatalf("Failed to extract frames: %v", err)
		}
		fmt.Printf("Found %d frames to register\n", len(frames))

		registered := 0
		for _, frame := range frames {
			frameID := strings.TrimSuffix(frame, filepath.Ext(frame))
			framePath := filepath.Join(outputDir, recording, frame)
			if _, err := eng.UpsertFrame(ctx, frameID, folder, frame, framePath); err != nil {
				logger.Error("failed to register frame", "frame", frame, "error", err)
				continue
			}
			stage := models.StageInitial
			if err := eng.UpsertFrameDetail(ctx, frameID, models.FrameDetailPatch{WorkflowStage: &stage}); err != nil {
				logger.Error("failed to register frame detail", "frame", frame, "error", err)
				continue
			}
			registered++
		}
		fmt.Printf("Registered %d/%d frames from '%s'\n", registered, len(frames), videoPath)

	case "migrate":
		store := mustOpen(ctx, pgConfig, cfg.Dimension)
		defer store.Close()
		eng := engine.New(store, cfg.Dimension, logger)
		verifier := verify.New(store, cfg.Dimension, cfg.MaxExamples, logger)

		report, err := migrate.New(store, eng, verifier, logger).Run(ctx)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		for _, step := range report.Steps {
			fmt.Printf("%-34s processed=%d skipped=%d errored=%d\n",
				step.Name, step.Processed, step.Skipped, step.Errored)
		}
		printVerification(report.Verification, jsonOut)
		if !report.OK() {
			os.Exit(1)
		}

	case "verify":
		store := mustOpen(ctx, pgConfig, cfg.Dimension)
		defer store.Close()
		verifier := verify.New(store, cfg.Dimension, cfg.MaxExamples, logger)

		if repair {
			eng := engine.New(store, cfg.Dimension, logger)
			removed, err := verifier.Repair(ctx, eng)
			if err != nil {
				log.Fatalf("Repair failed: %v", err)
			}
			fmt.Printf("Repair finished: pruned %d duplicate embeddings\n", removed)
		}

		report, err := verifier.Run(ctx)
		if err != nil {
			log.Fatalf("Verification failed: %v", err)
		}
		printVerification(report, jsonOut)
		if !report.OK() {
			os.Exit(1)
		}
		fmt.Println("All consistency checks passed!")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		usage()
		os.Exit(1)
	}
}

func mustOpen(ctx context.Context, pgConfig storage.PostgresConfig, dim int) *storage.Postgres {
	store, err := storage.NewPostgres(ctx, pgConfig, dim)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := store.CheckSchema(ctx); err != nil {
		log.Fatalf("Schema check failed: %v", err)
	}
	return store
}

func printVerification(report *verify.Report, jsonOut bool) {
	if report == nil {
		return
	}
	if jsonOut {
		data, err := report.JSON()
		if err != nil {
			log.Fatalf("Failed to render report: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	fmt.Print(report.Summary())
}
