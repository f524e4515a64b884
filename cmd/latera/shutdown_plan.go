package main

import (
	"context"
	"errors"
	"sync"

	"latera/internal/logging"
)

type shutdownPhase struct {
	name string
	stop func(context.Context) error
}

// shutdownPlan runs its phases once, in the order they were added. A failed
// phase is logged and does not stop later ones.
type shutdownPlan struct {
	logger *logging.Logger
	once   sync.Once
	phases []shutdownPhase
}

func newShutdownPlan(logger *logging.Logger) *shutdownPlan {
	if logger == nil {
		logger = logging.Discard()
	}
	return &shutdownPlan{logger: logger.For("shutdown")}
}

func (plan *shutdownPlan) Add(name string, stop func(context.Context) error) {
	if plan == nil || stop == nil {
		return
	}
	plan.phases = append(plan.phases, shutdownPhase{name: name, stop: stop})
}

func (plan *shutdownPlan) Run(ctx context.Context) error {
	if plan == nil {
		return nil
	}
	var runErr error
	plan.once.Do(func() {
		for _, phase := range plan.phases {
			plan.logger.Info("shutdown phase starting", map[string]string{"phase": phase.name})
			if err := phase.stop(ctx); err != nil {
				runErr = errors.Join(runErr, err)
				plan.logger.Warn("shutdown phase failed", map[string]string{
					"phase": phase.name,
					"error": err.Error(),
				})
			}
		}
	})
	return runErr
}
