package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"oqt_service/internal/domain/model"
)

// State is the position of an indicator in its lifecycle.
type State int

const (
	StateCreated State = iota
	StatePreprocessed
	StateCalculated
	StateFigured
	// StateUndefined is absorbing: later steps are no-ops.
	StateUndefined
	// StateFailed is terminal: later steps are rejected.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePreprocessed:
		return "preprocessed"
	case StateCalculated:
		return "calculated"
	case StateFigured:
		return "figured"
	case StateUndefined:
		return "undefined"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lifecycle drives an indicator through preprocess, calculate and figure
// creation and enforces the result invariants between the steps.
type Lifecycle struct {
	indicator Indicator
	state     State
	logger    *slog.Logger
}

func NewLifecycle(ind Indicator, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		indicator: ind,
		state:     StateCreated,
		logger:    logger.With("indicator", ind.Name(), "layer", ind.Layer().Name),
	}
}

func (l *Lifecycle) State() State         { return l.state }
func (l *Lifecycle) Indicator() Indicator { return l.indicator }

func (l *Lifecycle) transitionError(step string) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidTransition, step, l.state)
}

// Preprocess runs the indicator's data fetching. A data gap leaves the result
// undefined and is not reported as an error.
func (l *Lifecycle) Preprocess(ctx context.Context) error {
	if l.state != StateCreated {
		return l.transitionError("preprocess")
	}
	err := l.indicator.Preprocess(ctx)
	switch {
	case err == nil:
		l.state = StatePreprocessed
		return nil
	case errors.Is(err, ErrDataGap):
		md := l.indicator.Metadata()
		l.indicator.Result().SetUndefined(md.LabelText(model.LabelUndefined))
		l.state = StateUndefined
		l.logger.Info("result undefined", "reason", err.Error())
		return nil
	default:
		l.state = StateFailed
		return fmt.Errorf("failed to preprocess %s: %w", l.indicator.Name(), err)
	}
}

// Calculate derives the result. It must leave a defined result behind.
func (l *Lifecycle) Calculate() error {
	switch l.state {
	case StateUndefined:
		return nil
	case StatePreprocessed:
	default:
		return l.transitionError("calculate")
	}
	if err := l.indicator.Calculate(); err != nil {
		l.state = StateFailed
		return fmt.Errorf("failed to calculate %s: %w", l.indicator.Name(), err)
	}
	if l.indicator.Result().Undefined() {
		l.state = StateFailed
		return fmt.Errorf("%w: %s left an undefined result after calculate", ErrInvariantViolation, l.indicator.Name())
	}
	l.state = StateCalculated
	return nil
}

// CreateFigure renders the figure. Value, label and class must not change.
func (l *Lifecycle) CreateFigure() error {
	switch l.state {
	case StateUndefined:
		l.indicator.Result().SVG = nil
		return nil
	case StateCalculated:
	default:
		return l.transitionError("create figure")
	}
	result := l.indicator.Result()
	value, class, label := *result.Value(), *result.Class(), result.Label()

	if err := l.indicator.CreateFigure(); err != nil {
		l.state = StateFailed
		return fmt.Errorf("failed to create figure for %s: %w", l.indicator.Name(), err)
	}
	if result.Undefined() || *result.Value() != value || *result.Class() != class || result.Label() != label {
		l.state = StateFailed
		return fmt.Errorf("%w: %s changed its result while creating the figure", ErrInvariantViolation, l.indicator.Name())
	}
	l.state = StateFigured
	return nil
}

// Run executes all steps in order.
func (l *Lifecycle) Run(ctx context.Context) error {
	if err := l.Preprocess(ctx); err != nil {
		return err
	}
	if err := l.Calculate(); err != nil {
		return err
	}
	if err := l.CreateFigure(); err != nil {
		return err
	}
	l.logger.Debug("indicator finished", "label", l.indicator.Result().Label(), "state", l.state.String())
	return nil
}
