package installer

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/rollback"
)

// RunContext is what every step of one run shares. It replaces package
// level state: nothing outside a run can reach it.
type RunContext struct {
	ID      string
	Host    host.Host
	Ledger  *rollback.Ledger
	Out     *formatter.Output
	Log     *zap.Logger
	Started time.Time
}

// NewRunContext creates a RunContext. An empty id gets a fresh UUID. Output
// lines are mirrored to log.
func NewRunContext(h host.Host, out *formatter.Output, log *zap.Logger, id string) *RunContext {
	if id == "" {
		id = uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RunContext{
		ID:      id,
		Host:    h,
		Ledger:  rollback.New(log),
		Out:     out.WithLogger(log),
		Log:     log,
		Started: time.Now(),
	}
}
