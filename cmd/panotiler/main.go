package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"panotiler/internal/logger"
	"panotiler/internal/models"
	"panotiler/pkg/batch"
	"panotiler/pkg/config"
	"panotiler/pkg/tilestore"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "Equirectangular panorama file or folder of panoramas")
	outputRoot := flag.String("output", "tiles", "Output root directory for the tile store")
	configPath := flag.String("config", "panotiler.yaml", "Path to YAML configuration file")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: config value)")
	levels := flag.Int("levels", 0, "Number of resolution levels (default: config value)")
	tileSize := flag.Int("tile-size", 0, "Tile side length in pixels (default: config value)")
	faceSize := flag.Int("face-size", 0, "Base cube face side length (default: derived from levels)")
	format := flag.String("format", "", "Tile image format, jpg or png (default: config value)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (default: config value)")
	writeConfig := flag.Bool("write-config", false, "Write the default configuration file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	// Validate inputs
	if *inputPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flags override config file values
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *levels > 0 {
		cfg.Processing.Levels = *levels
	}
	if *tileSize > 0 {
		cfg.Processing.TileSize = *tileSize
	}
	if *faceSize > 0 {
		cfg.Processing.BaseFaceSize = *faceSize
	}
	if *format != "" {
		cfg.Output.Format = *format
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: true,
	})
	defer log.Sync()

	fmt.Println("================================")
	fmt.Println("360° PANORAMA TILE GENERATOR")
	fmt.Println("Equirectangular to multi-resolution cube map tiles")
	fmt.Println("================================")
	fmt.Printf("Source: %s\n", *inputPath)
	fmt.Printf("Output: %s\n", *outputRoot)
	fmt.Printf("Levels: %d (base face %dpx, tile %dpx, %s)\n",
		cfg.Processing.Levels, cfg.FaceSize(), cfg.Processing.TileSize, cfg.Output.Format)

	store := tilestore.NewFSStore(*outputRoot, tilestore.Options{
		Format:         cfg.Output.Format,
		TileQuality:    cfg.Output.TileQuality,
		PreviewQuality: cfg.Output.PreviewQuality,
	})

	// Drain progress snapshots into debug logging; the channel keeps the
	// pipeline itself free of any shared progress state.
	progress := make(chan models.Progress, 64)
	go func() {
		for p := range progress {
			log.Debug("progress",
				zap.String("scene", p.SceneID),
				zap.String("stage", p.Stage.String()),
				zap.String("face", p.Face.String()),
				zap.Int("level", p.Level),
				zap.Int("tiles", p.TilesWritten),
				zap.Int("tilesTotal", p.TilesTotal))
		}
	}()

	runner := &batch.Runner{
		Sink:            store,
		Levels:          models.DefaultLevels(cfg.Processing.Levels, cfg.FaceSize(), cfg.Processing.TileSize),
		NumCores:        cfg.Processing.NumCores,
		PreviewFaceSize: cfg.Output.PreviewFaceSize,
		Progress:        progress,
		Log:             log,
	}

	// Interrupt stops the batch before the next image; the image in
	// flight always finishes or fails on its own.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	summary, err := runBatch(ctx, runner, *inputPath)
	close(progress)
	if err != nil && len(summary.Results) == 0 {
		log.Fatal("batch failed", zap.Error(err))
	}

	fmt.Printf("\nConversion finished in %.2f seconds\n", time.Since(startTime).Seconds())
	fmt.Printf("================================\n")
	for _, res := range summary.Results {
		if res.Succeeded() {
			fmt.Printf("  [OK]     %-24s %6.2fs\n", res.SceneID, res.Duration.Seconds())
		} else {
			fmt.Printf("  [FAILED] %-24s %v\n", res.SceneID, res.Err)
		}
	}
	fmt.Printf("================================\n")
	fmt.Printf("%d succeeded, %d failed (of %d)\n",
		summary.Succeeded, summary.Failed, len(summary.Results))
	if err != nil {
		fmt.Printf("Batch stopped early: %v\n", err)
	}

	if summary.Failed > 0 || err != nil {
		os.Exit(1)
	}
}

// runBatch converts either a single panorama file or a whole folder.
func runBatch(ctx context.Context, runner *batch.Runner, input string) (models.BatchSummary, error) {
	info, err := os.Stat(input)
	if err != nil {
		return models.BatchSummary{}, fmt.Errorf("cannot read input path: %w", err)
	}
	if info.IsDir() {
		return runner.Run(ctx, input)
	}
	return runner.RunPaths(ctx, []string{input})
}
