// Package app assembles the pipeline and its optional backends from
// configuration for the docmask binaries.
package app

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/audit"
	"github.com/raaihank/docmask/internal/cache"
	"github.com/raaihank/docmask/internal/config"
	"github.com/raaihank/docmask/internal/logger"
	"github.com/raaihank/docmask/internal/mask"
	"github.com/raaihank/docmask/internal/ocr/tesseract"
	"github.com/raaihank/docmask/internal/patterns"
	"github.com/raaihank/docmask/internal/pipeline"
)

// Components are the long-lived objects built from configuration
type Components struct {
	Orchestrator *pipeline.Orchestrator
	Cache        *cache.OCRCache // nil when disabled or unreachable
	Audit        *audit.Store    // nil when disabled
}

// Build wires the orchestrator. publisher may be nil.
func Build(cfg *config.Config, log *logger.Logger, publisher pipeline.Publisher) (*Components, error) {
	defs, err := Definitions(cfg.Detection)
	if err != nil {
		return nil, err
	}

	maskOpts, err := MaskOptions(cfg.Masking)
	if err != nil {
		return nil, err
	}

	engine, err := tesseract.NewEngine(cfg.OCR.Engine, tesseract.TesseractOptions{
		PageSegMode: cfg.OCR.PageSegMode,
		Preprocess:  cfg.OCR.Preprocess,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR engine: %w", err)
	}

	c := &Components{}
	opts := pipeline.Options{
		Engine:      engine,
		Renderer:    mask.NewRenderer(maskOpts),
		Definitions: defs,
		Language:    cfg.OCR.Language,
		Timeout:     cfg.OCR.Timeout,
		Publisher:   publisher,
		Logger:      log,
	}

	if cfg.Cache.Enabled {
		ocrCache, err := cache.NewOCRCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
			Variant:        CacheVariant(cfg.OCR),
		}, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("OCR cache unavailable, continuing without it", zap.Error(err))
		} else {
			c.Cache = ocrCache
			opts.Cache = ocrCache
		}
	}

	if cfg.Audit.Enabled {
		store, err := audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		c.Audit = store
		opts.Recorder = store
	}

	orch, err := pipeline.New(opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Orchestrator = orch

	return c, nil
}

// Close stops the orchestrator and releases backend connections
func (c *Components) Close() error {
	var errs []error
	if c.Orchestrator != nil {
		errs = append(errs, c.Orchestrator.Close())
	}
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.Audit != nil {
		errs = append(errs, c.Audit.Close())
	}
	return errors.Join(errs...)
}

// Definitions selects the configured detection categories
func Definitions(cfg config.DetectionConfig) ([]patterns.Definition, error) {
	defs, err := patterns.Select(patterns.Default(), cfg.Categories)
	if err != nil {
		return nil, fmt.Errorf("invalid detection categories: %w", err)
	}
	return defs, nil
}

// CacheVariant names the recognition settings that change OCR output.
func CacheVariant(cfg config.OCRConfig) string {
	pre := 0
	if cfg.Preprocess {
		pre = 1
	}
	return fmt.Sprintf("psm%d-pre%d", cfg.PageSegMode, pre)
}

// MaskOptions converts masking configuration into renderer options
func MaskOptions(cfg config.MaskingConfig) (mask.Options, error) {
	opts := mask.DefaultOptions()

	fill, err := mask.ParseHexColor(cfg.FillColor)
	if err != nil {
		return opts, fmt.Errorf("invalid fill color: %w", err)
	}
	marker, err := mask.ParseHexColor(cfg.MarkerColor)
	if err != nil {
		return opts, fmt.Errorf("invalid marker color: %w", err)
	}

	opts.Fill = fill
	opts.Marker = marker
	opts.MarkerText = cfg.MarkerText
	return opts, nil
}
