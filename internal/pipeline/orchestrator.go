// Package pipeline runs submitted images through recognition, detection and
// masking, keeping only the most recently submitted job.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/docmask/internal/logger"
	"github.com/raaihank/docmask/internal/mask"
	"github.com/raaihank/docmask/internal/matcher"
	"github.com/raaihank/docmask/internal/ocr"
	"github.com/raaihank/docmask/internal/patterns"
)

const recordTimeout = 5 * time.Second

var (
	// ErrSuperseded is returned by Wait when a newer submission replaced the job.
	ErrSuperseded = errors.New("job superseded by a newer submission")
	// ErrUnknownGeneration is returned by Wait for a generation never issued.
	ErrUnknownGeneration = errors.New("unknown job generation")
)

// Options configures an Orchestrator. Engine and Renderer are required.
type Options struct {
	Engine      ocr.Engine
	Renderer    *mask.Renderer
	Definitions []patterns.Definition
	Language    string
	Timeout     time.Duration

	Cache     TokenCache
	Recorder  Recorder
	Publisher Publisher
	Logger    *logger.Logger
}

// Orchestrator owns the current job. Resubmitting abandons the previous job;
// results from abandoned jobs are discarded.
type Orchestrator struct {
	engine    ocr.Engine
	renderer  *mask.Renderer
	language  string
	timeout   time.Duration
	cache     TokenCache
	recorder  Recorder
	publisher Publisher
	logger    *logger.Logger

	mu         sync.Mutex
	defs       []patterns.Definition
	generation uint64
	current    *job

	wg sync.WaitGroup
}

// New creates an orchestrator
func New(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil {
		return nil, errors.New("ocr engine is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("mask renderer is required")
	}

	defs := opts.Definitions
	if defs == nil {
		defs = patterns.Default()
	}
	language := opts.Language
	if language == "" {
		language = "eng"
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Orchestrator{
		engine:    opts.Engine,
		renderer:  opts.Renderer,
		language:  language,
		timeout:   opts.Timeout,
		cache:     opts.Cache,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
		logger:    log.WithComponent("pipeline"),
		defs:      defs,
	}, nil
}

// SetDefinitions replaces the pattern set used by subsequent submissions.
// A job already running keeps the set it started with.
func (o *Orchestrator) SetDefinitions(defs []patterns.Definition) {
	o.mu.Lock()
	o.defs = defs
	o.mu.Unlock()

	o.logger.Info("Detection categories updated", zap.Int("count", len(defs)))
}

// Definitions returns the pattern set for new submissions
func (o *Orchestrator) Definitions() []patterns.Definition {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.defs
}

// Submit starts a new job for data and returns its initial snapshot. The
// job keeps running after ctx is done; only ctx values are inherited.
func (o *Orchestrator) Submit(ctx context.Context, data []byte, contentType string) (Snapshot, error) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if !isImageType(contentType) {
		o.logger.Warn("Rejected submission", zap.String("content_type", contentType))
		return Snapshot{}, NewInputRejectedError(contentType)
	}

	o.mu.Lock()
	if prev := o.current; prev != nil {
		o.retire(prev)
	}

	o.generation++
	j := &job{
		id:          uuid.NewString(),
		generation:  o.generation,
		state:       StateIdle,
		defs:        o.defs,
		submittedAt: time.Now(),
		done:        make(chan struct{}),
	}
	if err := j.transition(StateProcessing); err != nil {
		o.mu.Unlock()
		return Snapshot{}, err
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if o.timeout > 0 {
		jobCtx, cancel = withTimeout(jobCtx, cancel, o.timeout)
	}
	j.cancel = cancel
	o.current = j

	snap := j.snapshot()
	change := j.stateChange()
	o.mu.Unlock()

	o.logger.WithJob(j.id, j.generation).Info("Job submitted",
		zap.Int("bytes", len(data)),
		zap.String("content_type", contentType),
	)
	o.publishState(change)

	o.wg.Add(1)
	go o.run(jobCtx, j, data)

	return snap, nil
}

// retire moves prev out of the way of a new submission. Caller holds o.mu.
func (o *Orchestrator) retire(prev *job) {
	switch prev.state {
	case StateProcessing:
		prev.cancel()
		prev.finish()
		o.logger.WithJob(prev.id, prev.generation).Info("Abandoning in-flight job")
	case StateReady, StateFailed:
		if err := prev.transition(StateIdle); err != nil {
			o.logger.Error("Failed to reset job", zap.Error(err))
		}
	}
}

func withTimeout(parent context.Context, parentCancel context.CancelFunc, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, d)
	return ctx, func() {
		cancel()
		parentCancel()
	}
}

func (o *Orchestrator) run(ctx context.Context, j *job, data []byte) {
	defer o.wg.Done()
	defer j.cancel()

	log := o.logger.WithJob(j.id, j.generation)
	start := time.Now()

	img, err := mask.Decode(bytes.NewReader(data))
	if err != nil {
		o.fail(j, NewDecodeFailureError(j.id, j.generation, err))
		return
	}
	log.Debug("Image decoded", zap.Stringer("bounds", img.Bounds()))

	result, err := o.recognize(ctx, j, data)
	if err != nil {
		o.fail(j, NewRecognitionFailureError(j.id, j.generation, o.engine.Name(), err))
		return
	}

	if !o.isCurrent(j) {
		log.Info("Discarding result of superseded job")
		return
	}

	matches, stats := matcher.FindWithStats(result.Text, result.Tokens, j.defs)
	log.LogFindings(stats.ByCategory, stats.Dropped)

	masked, err := o.renderer.RenderPNG(img, matches)
	if err != nil {
		o.fail(j, NewRenderFailureError(j.id, j.generation, err))
		return
	}

	o.complete(j, result.Text, matches, masked)
	log.Info("Job finished",
		zap.Int("tokens", len(result.Tokens)),
		zap.Int("matches", len(matches)),
		zap.Duration("duration", time.Since(start)),
	)
}

func (o *Orchestrator) recognize(ctx context.Context, j *job, data []byte) (ocr.Result, error) {
	log := o.logger.WithJob(j.id, j.generation)

	if o.cache != nil {
		cached, err := o.cache.Get(ctx, data, o.language)
		if err != nil {
			log.Warn("OCR cache lookup failed", zap.Error(err))
		} else if cached != nil {
			log.Debug("OCR cache hit", zap.Int("tokens", len(cached.Tokens)))
			return *cached, nil
		}
	}

	raw, err := o.engine.Recognize(ctx, data, o.language, func(ev ocr.ProgressEvent) {
		if ev.Status != ocr.StatusRecognizingText {
			return
		}
		o.setProgress(j, ocr.ProgressPercent(ev.Progress))
	})
	if err != nil {
		return ocr.Result{}, err
	}

	result := ocr.Normalize(raw)

	if o.cache != nil {
		if err := o.cache.Put(ctx, data, o.language, result); err != nil {
			log.Warn("OCR cache store failed", zap.Error(err))
		}
	}

	return result, nil
}

func (o *Orchestrator) isCurrent(j *job) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == j
}

func (o *Orchestrator) setProgress(j *job, percent int) {
	o.mu.Lock()
	if o.current != j || j.state != StateProcessing {
		o.mu.Unlock()
		return
	}
	j.progress = percent
	update := ProgressUpdate{JobID: j.id, Generation: j.generation, Progress: percent}
	o.mu.Unlock()

	if o.publisher != nil {
		o.publisher.PublishProgress(update)
	}
}

func (o *Orchestrator) complete(j *job, text string, matches []matcher.PIIMatch, masked []byte) {
	o.settle(j, func() error {
		if err := j.transition(StateReady); err != nil {
			return err
		}
		j.text = text
		j.matches = matches
		j.masked = masked
		return nil
	})
}

func (o *Orchestrator) fail(j *job, jobErr *JobError) {
	o.logger.WithJob(j.id, j.generation).Error("Job failed",
		zap.String("error_code", string(jobErr.Code)),
		zap.Error(jobErr),
	)

	o.settle(j, func() error {
		if err := j.transition(StateFailed); err != nil {
			return err
		}
		j.text = ""
		j.matches = nil
		j.masked = nil
		j.err = jobErr
		return nil
	})
}

// settle applies a terminal transition if j is still the current job.
func (o *Orchestrator) settle(j *job, apply func() error) {
	log := o.logger.WithJob(j.id, j.generation)

	o.mu.Lock()
	if o.current != j {
		o.mu.Unlock()
		log.Info("Discarding result of superseded job")
		return
	}
	if err := apply(); err != nil {
		o.mu.Unlock()
		log.Error("Job could not be settled", zap.Error(err))
		return
	}
	j.progress = 0
	j.completedAt = time.Now()
	j.finish()
	change := j.stateChange()
	rec := j.record()
	o.mu.Unlock()

	o.publishState(change)

	if o.recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := o.recorder.Record(ctx, rec); err != nil {
			log.Warn("Failed to record job", zap.Error(err))
		}
	}
}

func (o *Orchestrator) publishState(change StateChange) {
	if o.publisher != nil {
		o.publisher.PublishState(change)
	}
}

// Current returns a snapshot of the current job, or an idle snapshot when
// nothing was submitted yet.
func (o *Orchestrator) Current() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return Snapshot{State: StateIdle}
	}
	return o.current.snapshot()
}

// Wait blocks until the job with the given generation reaches a terminal
// state. A failed job returns its snapshot together with its JobError.
func (o *Orchestrator) Wait(ctx context.Context, generation uint64) (Snapshot, error) {
	o.mu.Lock()
	j := o.current
	latest := o.generation
	o.mu.Unlock()

	if generation == 0 || generation > latest {
		return Snapshot{}, fmt.Errorf("%w: %d", ErrUnknownGeneration, generation)
	}
	if j == nil || j.generation != generation {
		return Snapshot{}, ErrSuperseded
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != j {
		return Snapshot{}, ErrSuperseded
	}
	snap := j.snapshot()
	if snap.Err != nil {
		return snap, snap.Err
	}
	return snap, nil
}

// Process submits data and waits for its result
func (o *Orchestrator) Process(ctx context.Context, data []byte, contentType string) (Snapshot, error) {
	snap, err := o.Submit(ctx, data, contentType)
	if err != nil {
		return Snapshot{}, err
	}
	return o.Wait(ctx, snap.Generation)
}

// Close abandons any running job, waits for workers and closes the engine
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if j := o.current; j != nil && j.state == StateProcessing {
		j.cancel()
	}
	o.mu.Unlock()

	o.wg.Wait()
	return o.engine.Close()
}

func isImageType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
