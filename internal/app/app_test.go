package app

import (
	"image/color"
	"testing"

	"github.com/raaihank/docmask/internal/config"
	"github.com/raaihank/docmask/internal/logger"
	"github.com/raaihank/docmask/internal/patterns"
)

func TestDefinitions(t *testing.T) {
	defs, err := Definitions(config.DetectionConfig{Categories: []string{"all"}})
	if err != nil || len(defs) != len(patterns.IDs()) {
		t.Fatalf("expected every category, got %d, %v", len(defs), err)
	}

	defs, err = Definitions(config.DetectionConfig{Categories: []string{patterns.Email, patterns.Aadhaar}})
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 2 || defs[0].ID != patterns.Aadhaar || defs[1].ID != patterns.Email {
		t.Errorf("expected declaration order, got %+v", defs)
	}

	if _, err := Definitions(config.DetectionConfig{Categories: []string{"passport"}}); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestMaskOptions(t *testing.T) {
	opts, err := MaskOptions(config.MaskingConfig{FillColor: "#102030", MarkerColor: "#FFFFFF80", MarkerText: "HIDDEN"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Fill != (color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 0xff}) {
		t.Errorf("unexpected fill %v", opts.Fill)
	}
	if opts.Marker.A != 0x80 || opts.MarkerText != "HIDDEN" {
		t.Errorf("unexpected marker %+v", opts)
	}

	if _, err := MaskOptions(config.MaskingConfig{FillColor: "black", MarkerColor: "#FFFFFF"}); err == nil {
		t.Error("expected error for a named color")
	}
}

func TestBuildWithoutBackends(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.Detection.Categories = []string{patterns.Phone}

	c, err := Build(cfg, logger.NewNop(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if c.Cache != nil || c.Audit != nil {
		t.Error("backends are disabled by default")
	}
	if defs := c.Orchestrator.Definitions(); len(defs) != 1 || defs[0].ID != patterns.Phone {
		t.Errorf("unexpected definitions %+v", defs)
	}
}

func TestBuildRejectsUnknownEngine(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.OCR.Engine = "cloud"
	if _, err := Build(cfg, logger.NewNop(), nil); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestCacheVariant(t *testing.T) {
	base := config.OCRConfig{PageSegMode: 3}
	if got := CacheVariant(base); got != "psm3-pre0" {
		t.Errorf("unexpected variant %q", got)
	}

	preprocessed := base
	preprocessed.Preprocess = true
	sparse := base
	sparse.PageSegMode = 11
	if CacheVariant(preprocessed) == CacheVariant(base) || CacheVariant(sparse) == CacheVariant(base) {
		t.Error("recognition settings must change the variant")
	}

	// language is part of the cache key itself
	hin := base
	hin.Language = "hin"
	if CacheVariant(hin) != CacheVariant(base) {
		t.Error("language must not affect the variant")
	}
}
