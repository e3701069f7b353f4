package engine

// EventHooks delivers scheduler notifications to external consumers. A
// CLI or logging layer subscribes for user-facing progress; the engine
// itself prints nothing. All fields are optional and nil hooks are
// skipped.
//
// Hooks run synchronously on the coordinator goroutine. They must return
// quickly and must not call back into the pool.
type EventHooks struct {
	// ChunkComplete fires once per successfully analyzed chunk.
	ChunkComplete func(result AnalysisResult)

	// ChunkError fires when a chunk exhausts its retry budget and is
	// marked permanently failed. Retries themselves are logged, not
	// emitted.
	ChunkError func(chunkID string, err error)

	// Progress fires after every terminal transition (success or
	// permanent failure) with the percentage of chunks finished.
	Progress func(chunkID string, percent float64)
}

func (h EventHooks) emitComplete(res AnalysisResult) {
	if h.ChunkComplete != nil {
		h.ChunkComplete(res)
	}
}

func (h EventHooks) emitError(chunkID string, err error) {
	if h.ChunkError != nil {
		h.ChunkError(chunkID, err)
	}
}

func (h EventHooks) emitProgress(chunkID string, percent float64) {
	if h.Progress != nil {
		h.Progress(chunkID, percent)
	}
}
