package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Update emitter: pushes an ordered list of process updates to one connection

const DefaultStepInterval = 1 * time.Second

// Sender writes one discrete text frame to the peer
type Sender interface {
	SendText(ctx context.Context, frame []byte) error
}

// Step is one gate of the process, sent after Delay
type Step struct {
	Name  string
	Delay time.Duration
}

// DefaultSteps returns the canned three-gate sequence
func DefaultSteps() []Step {
	return []Step{
		{Name: "complete gate 1", Delay: DefaultStepInterval},
		{Name: "complete gate 2", Delay: DefaultStepInterval},
		{Name: "complete gate 3", Delay: DefaultStepInterval},
	}
}

// StepsFromNames builds a step list with the same delay for every step
func StepsFromNames(names []string, delay time.Duration) []Step {
	steps := make([]Step, 0, len(names))
	for _, name := range names {
		steps = append(steps, Step{Name: name, Delay: delay})
	}
	return steps
}

// TransportError is returned when sending a step failed
type TransportError struct {
	Step string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to send %q: %v", e.Step, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RunState is the emitter state machine
type RunState string

const (
	StatePending   RunState = "pending"   // waiting for the next step
	StateDone      RunState = "done"      // all steps sent
	StateFailed    RunState = "failed"    // serialization or transport error
	StateCancelled RunState = "cancelled" // context done between steps
)

// RunReport summarizes one emitter run
type RunReport struct {
	RunID string
	State RunState
	Sent  int   // number of frames successfully sent
	Err   error // set when State is StateFailed
}

// Emitter sends process updates in order, stopping at the first failure
type Emitter struct {
	steps    []Step
	recorder ProgressRecorder // optional, best effort
	logger   *slog.Logger
}

type EmitterOption func(*Emitter)

// WithRecorder stores a progress snapshot after every transition
func WithRecorder(r ProgressRecorder) EmitterOption {
	return func(e *Emitter) { e.recorder = r }
}

func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) { e.logger = logger }
}

// NewEmitter: constructor, nil steps => DefaultSteps
func NewEmitter(steps []Step, opts ...EmitterOption) *Emitter {
	if steps == nil {
		steps = DefaultSteps()
	}
	e := &Emitter{
		steps:  append([]Step(nil), steps...), // private copy
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Steps returns a copy of the configured sequence
func (e *Emitter) Steps() []Step {
	return append([]Step(nil), e.steps...)
}

// Run sends every step over sender. it never reads or closes the connection.
// a send failure ends the run without retry; the error is reported, not returned as fatal.
func (e *Emitter) Run(ctx context.Context, sender Sender) RunReport {
	return e.RunWithID(ctx, uuid.NewString(), sender)
}

// RunWithID is Run with a caller-chosen run ID (used as the progress store key)
func (e *Emitter) RunWithID(ctx context.Context, runID string, sender Sender) RunReport {
	report := RunReport{
		RunID: runID,
		State: StatePending,
	}
	logger := e.logger.With("run_id", report.RunID)
	logger.Info("emitter_started", "steps", len(e.steps))
	e.record(ctx, &report)

	for i, step := range e.steps {
		if err := sleepCtx(ctx, step.Delay); err != nil {
			report.State = StateCancelled
			logger.Info("emitter_cancelled", "sent", report.Sent, "step", i)
			e.record(context.WithoutCancel(ctx), &report)
			return report
		}

		frame, err := Encode(NewProcessUpdate(step.Name))
		if err != nil {
			report.State = StateFailed
			report.Err = err
			logger.Error("emitter_serialization_failed", "step", i, "error", err)
			e.record(ctx, &report)
			return report
		}

		if err := sender.SendText(ctx, frame); err != nil {
			report.State = StateFailed
			report.Err = &TransportError{Step: step.Name, Err: err}
			logger.Warn("emitter_send_failed", "step", i, "update", step.Name, "error", err)
			e.record(context.WithoutCancel(ctx), &report)
			return report
		}

		report.Sent++
		logger.Debug("emitter_update_sent", "step", i, "update", step.Name)
		e.record(ctx, &report)
	}

	report.State = StateDone
	logger.Info("emitter_finished", "sent", report.Sent)
	e.record(ctx, &report)
	return report
}

// record pushes a snapshot to the recorder, errors are only logged
func (e *Emitter) record(ctx context.Context, report *RunReport) {
	if e.recorder == nil {
		return
	}
	progress := &RunProgress{
		RunID:     report.RunID,
		Sent:      report.Sent,
		Total:     len(e.steps),
		State:     report.State,
		UpdatedAt: time.Now().UTC(),
	}
	if report.Sent > 0 {
		progress.LastUpdate = e.steps[report.Sent-1].Name
	}
	if report.Err != nil {
		progress.Error = report.Err.Error()
	}
	if err := e.recorder.SaveProgress(ctx, progress); err != nil {
		e.logger.Warn("progress_save_failed",
			"run_id", report.RunID,
			"error", err,
		)
	}
}

// sleepCtx waits for d unless ctx is done first
func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsTransportError reports whether err came from the connection
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
