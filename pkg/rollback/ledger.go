// Package rollback records undo actions while an installation makes progress
// and replays them in reverse when a later step fails.
package rollback

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/utils"
)

// Action undoes one side effect.
type Action struct {
	Step        string
	Description string
	Undo        func(ctx context.Context) error
}

// Ledger is an ordered list of undo actions. The zero value is not usable;
// call New.
type Ledger struct {
	mu      sync.Mutex
	actions []Action
	log     *zap.Logger
	done    bool
}

// New creates an empty ledger that logs to l.
func New(l *zap.Logger) *Ledger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Ledger{log: l}
}

// Record appends an undo action.
func (l *Ledger) Record(step, description string, undo func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.actions = append(l.actions, Action{Step: step, Description: description, Undo: undo})
	l.log.Debug("rollback action recorded", zap.String("step", step), zap.String("action", description))
}

// Len returns the number of recorded actions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.actions)
}

// Actions returns a copy of the recorded actions in recording order.
func (l *Ledger) Actions() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Action(nil), l.actions...)
}

// Rollback runs every action newest first. A failing or panicking action is
// logged and the rest still run. Rollback only runs once per ledger.
func (l *Ledger) Rollback(ctx context.Context) []error {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		return nil
	}
	l.done = true
	actions := append([]Action(nil), l.actions...)
	l.mu.Unlock()

	var errs utils.MultiError
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		err := run(ctx, a)
		if err != nil {
			l.log.Warn("rollback action failed",
				zap.String("step", a.Step),
				zap.String("action", a.Description),
				zap.Error(err))
			errs.Add(fmt.Errorf("%s: %w", a.Description, err))
			continue
		}
		l.log.Info("rollback action completed", zap.String("step", a.Step), zap.String("action", a.Description))
	}
	return errs.Errors
}

func run(ctx context.Context, a Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if a.Undo == nil {
		return nil
	}
	// Undo must still work after the run's context was cancelled.
	return a.Undo(context.WithoutCancel(ctx))
}

// RemoveAll returns an undo that deletes path and everything under it.
func RemoveAll(h host.Host, path string) func(context.Context) error {
	return func(ctx context.Context) error {
		return h.RemoveAll(ctx, path)
	}
}

// Remove returns an undo that deletes a single file or link.
func Remove(h host.Host, path string) func(context.Context) error {
	return func(ctx context.Context) error {
		return h.Remove(ctx, path)
	}
}

// Restore returns an undo that moves a backup over the original path.
func Restore(h host.Host, backup, original string) func(context.Context) error {
	return func(ctx context.Context) error {
		return h.Rename(ctx, backup, original)
	}
}

// Relink returns an undo that recreates link pointing at target.
func Relink(h host.Host, target, link string) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := h.Remove(ctx, link); err != nil {
			return err
		}
		return h.Symlink(ctx, target, link)
	}
}
