package main

import (
	"context"
	"flag"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/app"
	"github.com/raaihank/docmask/internal/config"
	"github.com/raaihank/docmask/internal/logger"
	"github.com/raaihank/docmask/internal/pipeline"
	"github.com/raaihank/docmask/internal/report"
)

// progressLogger reports job events on the CLI log
type progressLogger struct {
	log *logger.Logger
}

func (p progressLogger) PublishProgress(u pipeline.ProgressUpdate) {
	p.log.Info("Recognizing text", zap.Int("progress", u.Progress))
}

func (p progressLogger) PublishState(c pipeline.StateChange) {
	p.log.Debug("Job state", zap.String("state", string(c.State)))
}

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		inputFile    = flag.String("input", "", "Document image to redact (PNG, JPEG, GIF, BMP or TIFF)")
		outputFile   = flag.String("output", "", "Masked PNG path (default: masking.output_filename)")
		findingsFile = flag.String("findings", "", "Write findings to this file (.csv, .parquet or .jsonl)")
		printText    = flag.Bool("print-text", false, "Print the extracted text to stdout")
		categories   = flag.String("categories", "", "Comma separated categories to detect (overrides config)")
	)
	flag.Parse()

	if *inputFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -input aadhaar.jpg -output masked.png\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input form.png -findings findings.parquet -categories email,phone\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *categories != "" {
		cfg.Detection.Categories = parseCategories(*categories)
		if len(cfg.Detection.Categories) == 0 {
			fmt.Fprintf(os.Stderr, "No categories in -categories %q\n", *categories)
			os.Exit(1)
		}
	}
	if *outputFile == "" {
		*outputFile = cfg.Masking.OutputFilename
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling...")
		cancel()
	}()

	if err := run(ctx, cfg, log, *inputFile, *outputFile, *findingsFile, *printText); err != nil {
		log.Error("Redaction failed",
			zap.String("error_code", string(pipeline.CodeOf(err))),
			zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, input, output, findings string, printText bool) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	components, err := app.Build(cfg, log, progressLogger{log: log})
	if err != nil {
		return err
	}
	defer components.Close()

	snap, err := components.Orchestrator.Process(ctx, data, detectContentType(input, data))
	if err != nil {
		return err
	}

	if err := os.WriteFile(output, snap.Masked, 0o644); err != nil {
		return fmt.Errorf("failed to write masked image: %w", err)
	}

	if findings != "" {
		if err := report.WriteFile(findings, report.FromMatches(snap.Matches)); err != nil {
			return err
		}
	}

	counts := make(map[string]int)
	for _, m := range snap.Matches {
		counts[m.Category]++
	}
	log.Info("Redaction complete",
		zap.String("output", output),
		zap.String("findings", findings),
		zap.Int("matches", len(snap.Matches)),
		zap.Any("categories", counts),
	)

	if printText {
		fmt.Println(snap.Text)
	}
	return nil
}

// parseCategories splits a comma separated list, ignoring blanks around and
// between entries.
func parseCategories(list string) []string {
	var ids []string
	for _, id := range strings.Split(list, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// detectContentType sniffs the data, falling back to the file extension for
// formats the sniffer does not know, such as TIFF.
func detectContentType(path string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".tif" || ext == ".tiff" {
		return "image/tiff"
	}
	if byExt := mime.TypeByExtension(ext); byExt != "" {
		return byExt
	}
	return sniffed
}
