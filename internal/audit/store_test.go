package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/pipeline"
)

func TestRowFromRecord(t *testing.T) {
	done := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	row, err := rowFromRecord(pipeline.JobRecord{
		JobID:       "job-1",
		Generation:  7,
		State:       pipeline.StateReady,
		MatchCount:  3,
		Categories:  map[string]int{"Email Address": 2, "Phone Number": 1},
		Duration:    1500 * time.Millisecond,
		CompletedAt: done,
	})
	if err != nil {
		t.Fatal(err)
	}

	if row.Generation != 7 || row.State != "ready" || row.DurationMs != 1500 || !row.CompletedAt.Equal(done) {
		t.Errorf("unexpected row %+v", row)
	}
	if row.Categories != `{"Email Address":2,"Phone Number":1}` {
		t.Errorf("unexpected categories %s", row.Categories)
	}
}

func TestRowFromFailedRecord(t *testing.T) {
	row, err := rowFromRecord(pipeline.JobRecord{
		JobID:     "job-2",
		State:     pipeline.StateFailed,
		ErrorCode: pipeline.ErrorDecodeFailure,
	})
	if err != nil {
		t.Fatal(err)
	}
	if row.ErrorCode != "DECODE_FAILURE" || row.Categories != "{}" {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	got := maskDatabaseURL("postgres://docmask:hunter2@db:5432/docmask?sslmode=disable")
	if got != "postgres://docmask:***@db:5432/docmask?sslmode=disable" {
		t.Errorf("password not masked: %s", got)
	}
}

func TestStoreRecordAndList(t *testing.T) {
	url := os.Getenv("DOCMASK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DOCMASK_TEST_DATABASE_URL not set")
	}

	store, err := NewStore(&Config{DatabaseURL: url, MaxOpenConns: 2, MaxIdleConns: 1}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	rec := pipeline.JobRecord{
		JobID:       uuid.NewString(),
		Generation:  1,
		State:       pipeline.StateReady,
		MatchCount:  1,
		Categories:  map[string]int{"PAN Number": 1},
		CompletedAt: time.Now().Add(time.Hour),
	}
	if err := store.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("duplicate record should be ignored: %v", err)
	}

	rows, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].JobID != rec.JobID {
		t.Fatalf("expected newest job first, got %+v", rows)
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalJobs < 1 || stats.ReadyJobs < 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
