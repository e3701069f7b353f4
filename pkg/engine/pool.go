package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"time"
)

// DefaultRetryAttempts is the retry budget applied when callers do not
// set one. Two retries absorb transient capability failures without
// letting a genuinely broken chunk monopolize the run.
const DefaultRetryAttempts = 2

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	// MaxWorkers is the number of concurrent execution slots. Must be
	// >= 1.
	MaxWorkers int

	// RetryAttempts is how many times a failed chunk is re-dispatched
	// before it is marked permanently failed. Must be >= 0. A chunk that
	// always fails is invoked RetryAttempts+1 times in total.
	RetryAttempts int
}

// DefaultPoolConfig sizes the pool to host parallelism.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers:    max(runtime.NumCPU(), 1),
		RetryAttempts: DefaultRetryAttempts,
	}
}

// validate rejects unusable pool parameters.
func (c PoolConfig) validate() error {
	if c.MaxWorkers < 1 {
		return fmt.Errorf("%w: maxWorkers must be >= 1, got %d", ErrInvalidConfig, c.MaxWorkers)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retryAttempts must be >= 0, got %d", ErrInvalidConfig, c.RetryAttempts)
	}

	return nil
}

// PoolDeps carries the pool's optional collaborators.
type PoolDeps struct {
	// Hooks receives scheduler events. The pool itself prints nothing.
	Hooks EventHooks

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pool runs chunks across a bounded set of isolated workers with
// per-chunk retry. Workers share no state; all coordination happens by
// message passing, and every registry is owned by the single coordinator
// goroutine inside RunParallel.
//
// A Pool holds no per-run state and can be reused for sequential runs.
type Pool struct {
	cfg    PoolConfig
	hooks  EventHooks
	logger *slog.Logger
	spawn  workerSpawner
}

// NewPool validates cfg and assembles a pool.
func NewPool(cfg PoolConfig, deps PoolDeps) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		cfg:    cfg,
		hooks:  deps.Hooks,
		logger: logger,
		spawn:  spawnWorker,
	}, nil
}

// workerRequest is one dispatch message: the chunk plus its attempt
// number (0 for the initial run, 1..RetryAttempts for retries).
type workerRequest struct {
	chunk   Chunk
	attempt int
}

// workerDone is the completion message a worker posts back.
type workerDone struct {
	workerID int
	chunkID  string
	attempt  int
	result   AnalysisResult
	err      error
	elapsed  time.Duration
}

// worker is one isolated execution slot. It owns its mailbox and
// communicates only over channels.
type worker struct {
	id      int
	mailbox chan workerRequest
	done    chan struct{}
}

// workerSpawner creates and starts one execution slot. The indirection
// exists so tests can exercise the fatal startup path.
type workerSpawner func(ctx context.Context, id, mailboxDepth int, analyze AnalyzeChunk, completions chan<- workerDone) (*worker, error)

// spawnWorker is the default workerSpawner. The mailbox is deep enough
// to hold every chunk so the coordinator never blocks placing work, even
// when the retry fallback stacks requests onto slot 0.
func spawnWorker(ctx context.Context, id, mailboxDepth int, analyze AnalyzeChunk, completions chan<- workerDone) (*worker, error) {
	w := &worker{
		id:      id,
		mailbox: make(chan workerRequest, mailboxDepth),
		done:    make(chan struct{}),
	}

	go w.run(ctx, analyze, completions)

	return w, nil
}

// run drains the mailbox until it closes. Every request produces exactly
// one completion message, panics included.
func (w *worker) run(ctx context.Context, analyze AnalyzeChunk, completions chan<- workerDone) {
	defer close(w.done)

	for req := range w.mailbox {
		start := time.Now()
		result, err := safeAnalyze(ctx, analyze, req.chunk)
		elapsed := time.Since(start)

		if result.ProcessingTime == 0 {
			result.ProcessingTime = elapsed
		}

		result.ChunkID = req.chunk.ID

		completions <- workerDone{
			workerID: w.id,
			chunkID:  req.chunk.ID,
			attempt:  req.attempt,
			result:   result,
			err:      err,
			elapsed:  elapsed,
		}
	}
}

// stop closes the mailbox and waits for the worker to drain. Called only
// by the coordinator, exactly once per worker.
func (w *worker) stop() {
	close(w.mailbox)
	<-w.done
}

// safeAnalyze shields the pool from a panicking capability: the panic
// becomes an ordinary chunk failure.
func safeAnalyze(ctx context.Context, analyze AnalyzeChunk, chunk Chunk) (result AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAnalyzePanic, r)
		}
	}()

	return analyze(ctx, chunk)
}

// chunkPhase is the per-chunk state machine:
// Pending → Running → {Succeeded | Retrying → Running | PermanentlyFailed}.
// Retrying collapses into the next Running transition inside one
// coordinator step.
type chunkPhase int

const (
	phasePending chunkPhase = iota
	phaseRunning
	phaseSucceeded
	phaseFailed
)

// chunkState is the single coordinator-side record for one chunk. One
// map owns the whole lifecycle, so a chunk can never be simultaneously
// active and failed.
type chunkState struct {
	chunk    Chunk
	phase    chunkPhase
	worker   int
	started  time.Time
	attempts int
	lastErr  error
}

// poolRun holds the coordinator registries for a single RunParallel
// call. Only the coordinator goroutine touches it.
type poolRun struct {
	states   map[string]*chunkState
	queue    []Chunk
	workers  []*worker
	idle     []int
	failed   map[string]FailedChunk
	results  []AnalysisResult
	total    int
	terminal int
	inflight int
}

func newPoolRun(sorted []Chunk) *poolRun {
	run := &poolRun{
		states: make(map[string]*chunkState, len(sorted)),
		queue:  sorted,
		failed: make(map[string]FailedChunk),
		total:  len(sorted),
	}

	for _, chunk := range sorted {
		run.states[chunk.ID] = &chunkState{chunk: chunk, phase: phasePending}
	}

	return run
}

// takeIdle pops an idle slot id, if any.
func (r *poolRun) takeIdle() (int, bool) {
	if len(r.idle) == 0 {
		return 0, false
	}

	id := r.idle[len(r.idle)-1]
	r.idle = r.idle[:len(r.idle)-1]

	return id, true
}

func (r *poolRun) markIdle(id int) {
	r.idle = append(r.idle, id)
}

// stopWorkers closes every mailbox and joins the drains.
func (r *poolRun) stopWorkers() {
	for _, w := range r.workers {
		w.stop()
	}

	r.workers = nil
}

// clearRegistries empties the coordinator-side state. Leak prevention is
// part of the run contract on success and abort alike.
func (r *poolRun) clearRegistries() {
	clear(r.states)
	clear(r.failed)
	r.queue = nil
	r.idle = nil
}

// RunParallel executes chunks across the pool and returns the results of
// the chunks that succeeded. Permanently failed chunks surface through
// the ChunkError hook, never through the returned error; subscribe
// before invoking for complete visibility.
//
// Chunks are dispatched in priority-descending order, cheapest first
// within a priority, so feedback and failure signals surface early. On
// context cancellation no further chunks are dispatched, in-flight
// chunks finish, and the partial results return together with ctx.Err().
//
// There is no per-chunk timeout: an unresponsive capability call holds
// its slot until it returns.
func (p *Pool) RunParallel(ctx context.Context, chunks []Chunk, analyze AnalyzeChunk) ([]AnalysisResult, error) {
	if analyze == nil {
		return nil, fmt.Errorf("%w: analyze capability is required", ErrInvalidConfig)
	}

	if len(chunks) == 0 {
		return nil, nil
	}

	sorted := sortForDispatch(chunks)

	run := newPoolRun(sorted)
	if len(run.states) != run.total {
		return nil, fmt.Errorf("%w: duplicate chunk ids in plan", ErrInvalidConfig)
	}

	defer func() {
		run.stopWorkers()
		run.clearRegistries()
	}()

	completions := make(chan workerDone, p.cfg.MaxWorkers)

	// Every slot starts before any dispatch; a single startup failure
	// aborts the whole run.
	for id := range p.cfg.MaxWorkers {
		w, err := p.spawn(ctx, id, run.total, analyze, completions)
		if err != nil {
			return nil, fmt.Errorf("%w: slot %d: %w", ErrWorkerStartup, id, err)
		}

		run.workers = append(run.workers, w)
		run.markIdle(id)
	}

	p.fillSlots(run)

	ctxDone := ctx.Done()
	canceled := false

	for run.terminal < run.total {
		if canceled && run.inflight == 0 {
			break
		}

		select {
		case <-ctxDone:
			// Stop dispatching, including retries; in-flight chunks run
			// to completion.
			canceled = true
			ctxDone = nil
			run.queue = nil

			p.logger.Warn("run canceled, draining in-flight chunks",
				slog.Int("inflight", run.inflight))

		case msg := <-completions:
			p.handleCompletion(run, msg, canceled)

			if !canceled {
				p.fillSlots(run)
			}
		}
	}

	if canceled {
		return run.results, ctx.Err()
	}

	return run.results, nil
}

// fillSlots assigns pending chunks to idle workers until either runs
// out. Dispatch is pull-based: freed slots immediately take the next
// chunk off the sorted queue.
func (p *Pool) fillSlots(run *poolRun) {
	for len(run.queue) > 0 {
		target, ok := run.takeIdle()
		if !ok {
			return
		}

		chunk := run.queue[0]
		run.queue = run.queue[1:]

		p.dispatch(run, run.states[chunk.ID], target, 0)
	}
}

// dispatch transitions a chunk to Running on the target slot and places
// the request in that slot's mailbox.
func (p *Pool) dispatch(run *poolRun, st *chunkState, target, attempt int) {
	st.phase = phaseRunning
	st.worker = target
	st.started = time.Now()
	run.inflight++

	p.logger.Debug("dispatching chunk",
		slog.String("chunk", st.chunk.ID),
		slog.Int("worker", target),
		slog.Int("attempt", attempt),
		slog.String("priority", st.chunk.Priority.String()))

	run.workers[target].mailbox <- workerRequest{chunk: st.chunk, attempt: attempt}
}

// handleCompletion applies one worker message to the registries. All
// state transitions happen here, on the coordinator goroutine.
func (p *Pool) handleCompletion(run *poolRun, msg workerDone, canceled bool) {
	st := run.states[msg.chunkID]
	run.inflight--

	if msg.err == nil {
		st.phase = phaseSucceeded
		run.results = append(run.results, msg.result)
		run.terminal++

		p.logger.Debug("chunk complete",
			slog.String("chunk", msg.chunkID),
			slog.Int("worker", msg.workerID),
			slog.Duration("took", msg.elapsed))

		p.hooks.emitComplete(msg.result)
		p.emitProgress(run, msg.chunkID)
		run.markIdle(msg.workerID)

		return
	}

	st.lastErr = fmt.Errorf("%w: chunk %s attempt %d: %w",
		ErrChunkProcessing, msg.chunkID, msg.attempt, msg.err)

	if !canceled && st.attempts < p.cfg.RetryAttempts {
		st.attempts++

		// The retry is placed before the failing slot rejoins the idle
		// set. With every other slot busy it lands in slot 0's mailbox
		// even if slot 0 is occupied, oversubscribing that slot rather
		// than queueing the retry.
		target, ok := run.takeIdle()
		if !ok {
			target = 0
		}

		p.logger.Warn("retrying chunk",
			slog.String("chunk", msg.chunkID),
			slog.Int("attempt", st.attempts),
			slog.Int("maxRetries", p.cfg.RetryAttempts),
			slog.Int("worker", target),
			slog.Any("error", msg.err))

		p.dispatch(run, st, target, st.attempts)
		run.markIdle(msg.workerID)

		return
	}

	st.phase = phaseFailed
	run.failed[msg.chunkID] = FailedChunk{
		Chunk:    st.chunk,
		Attempts: st.attempts,
		LastErr:  st.lastErr,
	}
	run.terminal++

	p.logger.Error("chunk permanently failed",
		slog.String("chunk", msg.chunkID),
		slog.Int("attempts", st.attempts),
		slog.Any("error", msg.err))

	p.hooks.emitError(msg.chunkID, st.lastErr)
	p.emitProgress(run, msg.chunkID)
	run.markIdle(msg.workerID)
}

// emitProgress reports the share of chunks in a terminal state.
func (p *Pool) emitProgress(run *poolRun, chunkID string) {
	percent := float64(run.terminal) / float64(run.total) * 100
	p.hooks.emitProgress(chunkID, percent)
}

// sortForDispatch orders chunks by priority weight descending, tie-broken
// by estimated complexity ascending. The input slice is not mutated.
func sortForDispatch(chunks []Chunk) []Chunk {
	sorted := slices.Clone(chunks)

	slices.SortStableFunc(sorted, func(a, b Chunk) int {
		if a.Priority != b.Priority {
			return cmp.Compare(b.Priority, a.Priority)
		}

		return cmp.Compare(a.EstimatedComplexity, b.EstimatedComplexity)
	})

	return sorted
}
