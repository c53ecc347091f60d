package flasher

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YEZZESDXHN/DoIP-Client-sub000/checksum"
	"github.com/YEZZESDXHN/DoIP-Client-sub000/uds"
)

// eventSource is the source tag on all executor log events.
const eventSource = "Flash"

// Executor states.
const (
	stateIdle int32 = iota
	stateRunning
	stateDone
)

// Executor drives one flash run: file loading, checksum computation, step
// execution, response validation, and progress reporting.
//
// An Executor is single-use: create one per run, call Run once, and
// consume Events until the channel closes. The executor owns its variable
// store and configuration snapshot for the run's duration; callers must
// not mutate the FlashConfig while Run is executing.
type Executor struct {
	transport uds.Transport
	cfg       *FlashConfig
	paths     map[string]string
	opts      execConfig

	store  *VarsStore
	events chan Event

	state    atomic.Int32
	stopFlag atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	progress int
	total    int
}

// New creates an Executor for one flash run.
//
// paths maps configured file names to their filesystem locations; files
// without an entry fall back to their configured default path.
//
// Example:
//
//	exec := flasher.New(transport, cfg,
//	    map[string]string{"app": "build/app.s19"},
//	    flasher.WithSecurityProvider(client),
//	)
//	go exec.Run(ctx)
//	for ev := range exec.Events() {
//	    // handle LogEvent / RangeEvent / ProgressEvent / FinishEvent
//	}
func New(transport uds.Transport, cfg *FlashConfig, paths map[string]string, opts ...Option) *Executor {
	oc := defaultExecConfig()
	for _, opt := range opts {
		opt(&oc)
	}
	if cfg != nil {
		cfg.applyDefaults()
	}
	return &Executor{
		transport: transport,
		cfg:       cfg,
		paths:     paths,
		opts:      oc,
		store:     NewVarsStore(),
		events:    make(chan Event, oc.eventBuffer),
		stopCh:    make(chan struct{}),
	}
}

// Events returns the executor's event stream. The channel is closed after
// the FinishEvent; consumers must drain it to avoid blocking the run.
func (e *Executor) Events() <-chan Event {
	return e.events
}

// Stop requests cooperative cancellation. The flag is checked at the
// file, step, and frame loop boundaries; an in-flight transport exchange
// is not interrupted (the transport's own timeout is the backstop).
func (e *Executor) Stop() {
	e.stopFlag.Store(true)
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// Run executes the flash script and returns the terminal outcome. The
// same outcome is emitted as a FinishEvent before the event channel
// closes. Run never panics across this boundary and never returns an
// error: all failures surface as log events plus OutcomeFailed.
//
// Run on an executor that is already running or already finished logs the
// problem and returns OutcomeFailed without touching the event stream.
func (e *Executor) Run(ctx context.Context) Outcome {
	if !e.state.CompareAndSwap(stateIdle, stateRunning) {
		e.logError("flash run rejected: executor is not idle")
		return OutcomeFailed
	}

	outcome := e.run(ctx)

	e.emit(FinishEvent{Outcome: outcome})
	close(e.events)
	e.state.Store(stateDone)
	return outcome
}

func (e *Executor) run(ctx context.Context) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			e.logf("flash aborted: %v", r)
			outcome = OutcomeFailed
		}
	}()

	if e.transport == nil {
		e.logf("flash failed: no transport configured")
		return OutcomeFailed
	}
	if e.cfg == nil {
		e.logf("flash failed: no flash configuration")
		return OutcomeFailed
	}
	if err := e.cfg.Validate(); err != nil {
		e.logf("invalid flash configuration: %v", err)
		return OutcomeFailed
	}

	e.logf("loading firmware files")
	if outcome, ok := e.loadFiles(ctx); !ok {
		return outcome
	}

	e.total = e.totalUnits()
	e.progress = 0
	e.emit(RangeEvent{Total: e.total})
	e.emit(ProgressEvent{Current: 0})

	e.logf("executing flash steps")
	for i := range e.cfg.Steps {
		step := &e.cfg.Steps[i]
		if e.stopped(ctx) {
			e.logf("flash stopped before step %s", step.StepName)
			return OutcomeStopped
		}

		if step.IsCall {
			e.logf("executing call %s", step.StepName)
			if err := e.runCall(ctx, step); err != nil {
				e.logf("call %s failed: %v", step.StepName, err)
				return OutcomeFailed
			}
		} else {
			e.logf("executing step %s", step.StepName)
			out, ok := e.runSend(ctx, step)
			if !ok {
				return out
			}
		}
		e.logf("%s completed", step.StepName)
	}

	// The estimate can undercount actual frames; pin the bar to full.
	e.progress = e.total
	e.emit(ProgressEvent{Current: e.progress})
	return OutcomeSuccess
}

// loadFiles populates the variable store per the configuration's file
// order: validate path, parse segments, compute checksums. Any failure
// aborts the run before step execution. The second return value is false
// when the run must end with the returned outcome.
func (e *Executor) loadFiles(ctx context.Context) (Outcome, bool) {
	names := make([]string, len(e.cfg.Files))
	for i, f := range e.cfg.Files {
		names[i] = f.Name
	}
	e.store.Reset(names)

	strategy, err := checksum.New(e.cfg.TransmissionParameters.ChecksumType)
	if err != nil {
		e.logf("file loading failed: %v", err)
		return OutcomeFailed, false
	}

	for _, fc := range e.cfg.Files {
		if e.stopped(ctx) {
			e.logf("flash stopped while loading files")
			return OutcomeStopped, false
		}

		path := e.paths[fc.Name]
		if path == "" {
			path = fc.DefaultPath
		}
		if path == "" {
			e.logf("%s: no file path configured", fc.Name)
			return OutcomeFailed, false
		}
		if _, err := os.Stat(path); err != nil {
			e.logf("%s: bad file path %s", fc.Name, path)
			return OutcomeFailed, false
		}

		segments, err := e.opts.loader(path)
		if err != nil {
			e.logf("%s: file loading failed: %v", fc.Name, err)
			return OutcomeFailed, false
		}

		for _, seg := range segments {
			sum, err := strategy.Calculate(seg.Data)
			if err != nil {
				e.logf("%s: checksum computation failed: %v", fc.Name, err)
				return OutcomeFailed, false
			}
			e.store.Append(fc.Name, SegmentVars{
				Data:     seg.Data,
				Addr:     seg.Address,
				Size:     len(seg.Data),
				Checksum: sum,
			})
		}
		e.logDebug("loaded file", "name", fc.Name, "segments", len(segments))
	}
	return OutcomeSuccess, true
}

// callAction is the closed set of local utilities a call step may invoke.
type callAction int

const (
	callWait callAction = iota
)

func parseCallAction(name string) (callAction, error) {
	switch name {
	case "Wait":
		return callWait, nil
	default:
		return 0, &UnknownCallError{Name: name}
	}
}

// runCall dispatches a call step to its local utility. The only defined
// action is Wait, whose duration in milliseconds comes from the step's
// first external-data entry.
func (e *Executor) runCall(ctx context.Context, step *Step) error {
	action, err := parseCallAction(step.StepName)
	if err != nil {
		return err
	}
	switch action {
	case callWait:
		if len(step.ExternalData) == 0 {
			return fmt.Errorf("wait step missing duration argument")
		}
		ms, err := strconv.Atoi(strings.TrimSpace(step.ExternalData[0]))
		if err != nil {
			return fmt.Errorf("invalid wait duration %q: %w", step.ExternalData[0], err)
		}
		return e.sleep(ctx, time.Duration(ms)*time.Millisecond)
	default:
		return &UnknownCallError{Name: step.StepName}
	}
}

// sleep waits for the duration but returns early on stop or context
// cancellation so Wait steps do not delay shutdown.
func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	case <-e.stopCh:
		return nil
	}
}

// runSend builds the step's frames and transmits them one at a time,
// synchronously waiting for each response before sending the next. The
// second return value is false when the run must end with the returned
// outcome.
func (e *Executor) runSend(ctx context.Context, step *Step) (Outcome, bool) {
	for _, payload := range e.buildSendPayloads(step) {
		if e.stopped(ctx) {
			e.logf("flash stopped during step %s", step.StepName)
			return OutcomeStopped, false
		}

		resp, err := e.transport.SendPayload(ctx, payload)
		if err != nil {
			// A stop or cancellation can surface here as a transport
			// error when it interrupts an in-flight exchange.
			if e.stopped(ctx) {
				e.logf("flash stopped during step %s", step.StepName)
				return OutcomeStopped, false
			}
			e.logf("%s failed: transport error: %v", step.StepName, err)
			return OutcomeFailed, false
		}
		if resp == nil {
			e.logf("%s failed: no response", step.StepName)
			return OutcomeFailed, false
		}
		if !resp.Positive() {
			nerr := &NegativeResponseError{Step: step.StepName, Code: resp.Code, CodeName: resp.CodeName}
			e.logf("%v", nerr)
			e.logf("data: %s", hexDump(resp.Payload))
			return OutcomeFailed, false
		}

		if len(step.ExpRespData) > 0 {
			if len(resp.Payload) < len(step.ExpRespData) {
				serr := &ResponseTooShortError{Step: step.StepName, Expected: len(step.ExpRespData), Got: len(resp.Payload)}
				e.logf("%v, exp data: %s, resp data: %s",
					serr, hexDump(step.ExpRespData), hexDump(resp.Payload))
				return OutcomeFailed, false
			}
			if !bytes.Equal(resp.Payload[:len(step.ExpRespData)], step.ExpRespData) {
				// Content mismatch is reported but does not abort the
				// run; only a too-short response is fatal.
				e.logf("%s response mismatch: exp data: %s, resp data: %s",
					step.StepName, hexDump(step.ExpRespData), hexDump(resp.Payload))
			}
		}

		e.progress++
		e.emit(ProgressEvent{Current: e.progress})
	}
	return OutcomeSuccess, true
}

// stopped reports whether the run should end now, either from Stop or
// from context cancellation.
func (e *Executor) stopped(ctx context.Context) bool {
	return e.stopFlag.Load() || ctx.Err() != nil
}

func (e *Executor) securityKey() []byte {
	if e.opts.security == nil {
		return nil
	}
	return e.opts.security.SecurityKey()
}

func (e *Executor) emit(ev Event) {
	e.events <- ev
}

// logf emits a user-visible log event and mirrors it to the configured
// logger.
func (e *Executor) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	e.emit(LogEvent{Source: eventSource, Message: msg})
	if e.opts.logger != nil {
		e.opts.logger.Info(msg)
	}
}

func (e *Executor) logDebug(msg string, keysAndValues ...interface{}) {
	if e.opts.logger != nil {
		e.opts.logger.Debug(msg, keysAndValues...)
	}
}

func (e *Executor) logError(msg string, keysAndValues ...interface{}) {
	if e.opts.logger != nil {
		e.opts.logger.Error(msg, keysAndValues...)
	}
}

func hexDump(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
