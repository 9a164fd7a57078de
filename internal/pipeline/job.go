package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/docmask/internal/matcher"
	"github.com/raaihank/docmask/internal/ocr"
	"github.com/raaihank/docmask/internal/patterns"
)

// State is the lifecycle state of the current job
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateIdle:       {StateProcessing},
	StateProcessing: {StateReady, StateFailed},
	StateReady:      {StateIdle},
	StateFailed:     {StateIdle},
}

// Snapshot is an immutable view of a job. Masked and Matches must not be
// modified by callers.
type Snapshot struct {
	JobID       string             `json:"job_id"`
	Generation  uint64             `json:"generation"`
	State       State              `json:"state"`
	Progress    int                `json:"progress"`
	Matches     []matcher.PIIMatch `json:"matches"`
	Text        string             `json:"text"`
	Masked      []byte             `json:"-"`
	Err         *JobError          `json:"-"`
	SubmittedAt time.Time          `json:"submitted_at"`
	CompletedAt time.Time          `json:"completed_at,omitempty"`
}

// ProgressUpdate is published for every mapped OCR progress report
type ProgressUpdate struct {
	JobID      string `json:"job_id"`
	Generation uint64 `json:"generation"`
	Progress   int    `json:"progress"`
}

// StateChange is published when a job enters a new state. It carries counts
// only, never matched text.
type StateChange struct {
	JobID      string         `json:"job_id"`
	Generation uint64         `json:"generation"`
	State      State          `json:"state"`
	MatchCount int            `json:"match_count"`
	Categories map[string]int `json:"categories,omitempty"`
	ErrorCode  ErrorCode      `json:"error_code,omitempty"`
}

// Publisher receives job events. Implementations must not block.
type Publisher interface {
	PublishProgress(ProgressUpdate)
	PublishState(StateChange)
}

// TokenCache stores normalized OCR output keyed by image content and language.
// A miss is (nil, nil).
type TokenCache interface {
	Get(ctx context.Context, image []byte, language string) (*ocr.Result, error)
	Put(ctx context.Context, image []byte, language string, result ocr.Result) error
}

// JobRecord is the audit summary of a terminal job
type JobRecord struct {
	JobID       string
	Generation  uint64
	State       State
	ErrorCode   ErrorCode
	MatchCount  int
	Categories  map[string]int
	Duration    time.Duration
	CompletedAt time.Time
}

// Recorder persists terminal jobs
type Recorder interface {
	Record(ctx context.Context, rec JobRecord) error
}

type job struct {
	id          string
	generation  uint64
	state       State
	progress    int
	defs        []patterns.Definition
	matches     []matcher.PIIMatch
	text        string
	masked      []byte
	err         *JobError
	submittedAt time.Time
	completedAt time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (j *job) transition(to State) error {
	for _, allowed := range transitions[j.state] {
		if allowed == to {
			j.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", j.state, to)
}

func (j *job) finish() {
	j.closeOnce.Do(func() { close(j.done) })
}

func (j *job) snapshot() Snapshot {
	var matches []matcher.PIIMatch
	if j.matches != nil {
		matches = make([]matcher.PIIMatch, len(j.matches))
		copy(matches, j.matches)
	}
	return Snapshot{
		JobID:       j.id,
		Generation:  j.generation,
		State:       j.state,
		Progress:    j.progress,
		Matches:     matches,
		Text:        j.text,
		Masked:      j.masked,
		Err:         j.err,
		SubmittedAt: j.submittedAt,
		CompletedAt: j.completedAt,
	}
}

func (j *job) stateChange() StateChange {
	change := StateChange{
		JobID:      j.id,
		Generation: j.generation,
		State:      j.state,
		MatchCount: len(j.matches),
	}
	if len(j.matches) > 0 {
		change.Categories = countCategories(j.matches)
	}
	if j.err != nil {
		change.ErrorCode = j.err.Code
	}
	return change
}

func (j *job) record() JobRecord {
	rec := JobRecord{
		JobID:       j.id,
		Generation:  j.generation,
		State:       j.state,
		MatchCount:  len(j.matches),
		Categories:  countCategories(j.matches),
		Duration:    j.completedAt.Sub(j.submittedAt),
		CompletedAt: j.completedAt,
	}
	if j.err != nil {
		rec.ErrorCode = j.err.Code
	}
	return rec
}

func countCategories(matches []matcher.PIIMatch) map[string]int {
	counts := make(map[string]int)
	for _, m := range matches {
		counts[m.Category]++
	}
	return counts
}
