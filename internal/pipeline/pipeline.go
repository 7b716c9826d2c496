package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nao1215/brokersafety/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step reading and extending the
// scan produced by the previous ones.
type Step interface {
	// Do executes the pipeline step.
	// Non-critical errors should be recorded with scan.AddError and the step
	// should return nil. A returned error is recorded and, unless the
	// pipeline continues on error, stops the run.
	Do(ctx context.Context, scan *model.SafetyScan) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Finalizer is implemented by steps that must run even after the context
// is done. They work on what earlier steps collected, so a cancelled or
// timed out crawl still yields a record.
type Finalizer interface {
	Step

	// Final reports whether the step runs after cancellation.
	Final() bool
}

func isFinal(step Step) bool {
	f, ok := step.(Finalizer)
	return ok && f.Final()
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and their errors
// are recorded in the scan, but subsequent steps still execute.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:           make([]Step, 0),
		continueOnError: false,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
//
// The context is checked before each step. Once it is done the scan is
// marked TimedOut, ordinary steps are skipped and Finalizer steps still run
// on a context that is no longer cancelled. Execute then returns the
// context's error.
//
// Otherwise it returns the first step error if continueOnError is false,
// or nil if all steps complete (errors are recorded in the scan).
func (p *Pipeline) Execute(ctx context.Context, scan *model.SafetyScan) error {
	var cancelErr error
	for _, step := range p.steps {
		stepCtx := ctx
		if cancelErr == nil {
			select {
			case <-ctx.Done():
				cancelErr = ctx.Err()
				scan.TimedOut = true
				p.logger.Warn("pipeline cancelled",
					"step", step.Name(),
					"target", target(scan),
					"reason", cancelErr,
				)
			default:
			}
		}
		if cancelErr != nil {
			if !isFinal(step) {
				p.logger.Debug("step skipped", "step", step.Name(), "target", target(scan))
				continue
			}
			stepCtx = context.WithoutCancel(ctx)
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"target", target(scan),
		)

		if err := step.Do(stepCtx, scan); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"target", target(scan),
				"error", err,
			)

			scan.AddError(fmt.Errorf("%s: %w", step.Name(), err))

			if !p.continueOnError {
				return err
			}
		} else {
			p.logger.Debug("step completed",
				"step", step.Name(),
				"target", target(scan),
			)
		}

		scan.PerformedSteps = append(scan.PerformedSteps, step.Name())
	}

	return cancelErr
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

// target names the scan in log records.
func target(scan *model.SafetyScan) string {
	if scan.Request.Homepage != "" {
		return scan.Request.Homepage
	}
	if len(scan.Request.Seeds) > 0 {
		return scan.Request.Seeds[0]
	}
	return ""
}
