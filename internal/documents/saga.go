package documents

import (
	"context"

	"go.uber.org/zap"
)

// sagaStep is a forward action paired with the action that undoes it. A nil
// compensate means the step has nothing to undo.
type sagaStep struct {
	name       string
	forward    func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs steps in order and, when one fails, compensates the completed
// steps in reverse order. It is not a transaction: compensations that fail are
// logged and the original error is returned.
type saga struct {
	steps  []sagaStep
	logger *zap.Logger
}

func newSaga(logger *zap.Logger, steps ...sagaStep) *saga {
	return &saga{steps: steps, logger: logger}
}

func (s *saga) run(ctx context.Context) error {
	completed := make([]sagaStep, 0, len(s.steps))
	for _, step := range s.steps {
		if err := step.forward(ctx); err != nil {
			s.logger.Warn("Saga step failed, compensating",
				zap.String("step", step.name),
				zap.Int("completed_steps", len(completed)),
				zap.Error(err))
			s.compensate(context.WithoutCancel(ctx), completed)
			return err
		}
		completed = append(completed, step)
	}
	return nil
}

func (s *saga) compensate(ctx context.Context, completed []sagaStep) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("step", step.name),
				zap.Error(err))
		}
	}
}
