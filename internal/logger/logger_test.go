package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestFileOutputOmitsMatchedText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docmask.log")
	log, err := New(Config{
		Level:  "debug",
		Format: "console",
		File:   &FileConfig{Enabled: true, Path: path},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.WithComponent("test").WithJob("job-1", 3).LogFindings(map[string]int{"Email Address": 2}, 1)
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"component":"test"`, `"job_id":"job-1"`, `"generation":3`, `"Email Address":2`, `"uncorrelated_dropped":1`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in log output: %s", want, out)
		}
	}
}
