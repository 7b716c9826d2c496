package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/brokersafety/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	final     bool
	doFunc    func(ctx context.Context, scan *model.SafetyScan) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, scan *model.SafetyScan) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, scan)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

// Final implements Finalizer.Final.
func (m *mockStep) Final() bool {
	return m.final
}

func newScan() *model.SafetyScan {
	return model.NewSafetyScan(model.NewCrawlRequest("https://broker.example"))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()

		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))

		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		t.Parallel()

		p := New(WithLogger(nil))
		if p.logger == nil {
			t.Error("expected non-nil logger")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	if p.StepCount() != 3 {
		t.Errorf("expected 3 steps, got %d", p.StepCount())
	}
	expected := []string{"first", "second", "third"}
	if names := p.StepNames(); !slices.Equal(names, expected) {
		t.Errorf("expected %v, got %v", expected, names)
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(_ context.Context, _ *model.SafetyScan) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New()
		p.AddSteps(record("step-1"), record("step-2"), record("step-3"))

		scan := newScan()
		if err := p.Execute(context.Background(), scan); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := []string{"step-1", "step-2", "step-3"}
		if !slices.Equal(order, expected) {
			t.Errorf("expected order %v, got %v", expected, order)
		}
		if !slices.Equal(scan.PerformedSteps, expected) {
			t.Errorf("expected performed steps %v, got %v", expected, scan.PerformedSteps)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		last := &mockStep{name: "last"}

		p := New()
		p.AddSteps(
			&mockStep{name: "failing", doFunc: func(_ context.Context, _ *model.SafetyScan) error { return boom }},
			last,
		)

		scan := newScan()
		err := p.Execute(context.Background(), scan)
		if !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if last.callCount != 0 {
			t.Error("expected later step not to run")
		}
		errs := scan.Errors()
		if len(errs) != 1 || !errors.Is(errs[0], boom) {
			t.Errorf("expected recorded error, got %v", errs)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		last := &mockStep{name: "last"}

		p := New(WithContinueOnError(true))
		p.AddSteps(
			&mockStep{name: "failing", doFunc: func(_ context.Context, _ *model.SafetyScan) error {
				return errors.New("boom")
			}},
			last,
		)

		scan := newScan()
		if err := p.Execute(context.Background(), scan); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
		if last.callCount != 1 {
			t.Error("expected later step to run")
		}
		if len(scan.Errors()) != 1 {
			t.Errorf("expected 1 recorded error, got %d", len(scan.Errors()))
		}
	})

	t.Run("cancelled context runs only final steps", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		ordinary := &mockStep{name: "crawl"}
		var finalCtxErr error
		final := &mockStep{name: "normalize", final: true, doFunc: func(ctx context.Context, _ *model.SafetyScan) error {
			finalCtxErr = ctx.Err()
			return nil
		}}

		p := New()
		p.AddSteps(ordinary, final)

		scan := newScan()
		err := p.Execute(ctx, scan)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if ordinary.callCount != 0 {
			t.Error("expected ordinary step to be skipped")
		}
		if final.callCount != 1 {
			t.Error("expected final step to run")
		}
		if finalCtxErr != nil {
			t.Errorf("expected live context for final step, got %v", finalCtxErr)
		}
		if !scan.TimedOut {
			t.Error("expected scan to be marked timed out")
		}
		if !slices.Equal(scan.PerformedSteps, []string{"normalize"}) {
			t.Errorf("unexpected performed steps %v", scan.PerformedSteps)
		}
	})

	t.Run("cancellation during a step", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		final := &mockStep{name: "detect", final: true}
		skipped := &mockStep{name: "extra"}

		p := New()
		p.AddSteps(
			&mockStep{name: "crawl", doFunc: func(_ context.Context, _ *model.SafetyScan) error {
				cancel()
				return nil
			}},
			skipped,
			final,
		)

		scan := newScan()
		_ = p.Execute(ctx, scan) //nolint:errcheck // checked through the scan

		if skipped.callCount != 0 || final.callCount != 1 {
			t.Errorf("expected skipped=0 final=1, got %d %d", skipped.callCount, final.callCount)
		}
	})
}

// TestMockStep tests the mockStep helper.
func TestMockStep(t *testing.T) {
	t.Parallel()

	step := &mockStep{name: "my-step"}
	scan := newScan()

	_ = step.Do(context.Background(), scan) //nolint:errcheck // no doFunc
	_ = step.Do(context.Background(), scan) //nolint:errcheck // no doFunc

	if step.callCount != 2 {
		t.Errorf("expected call count 2, got %d", step.callCount)
	}
	if step.Name() != "my-step" {
		t.Errorf("expected name 'my-step', got %q", step.Name())
	}
	if isFinal(step) {
		t.Error("expected non-final step")
	}
}
