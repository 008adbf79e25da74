package installer

import (
	"errors"
	"fmt"
)

// Step names, in run order. They appear in the run log, the history and
// the final summary.
const (
	StepPreflight   = "preflight"
	StepLock        = "lock"
	StepCollect     = "collect"
	StepStack       = "stack"
	StepFirewall    = "firewall"
	StepDatabase    = "database"
	StepMaterialize = "materialize"
	StepConfigure   = "configure"
	StepMigrate     = "migrate"
	StepPublish     = "publish"
	StepCertificate = "certificate"
	StepAdminPanel  = "admin_panel"
	StepPermissions = "permissions"
)

// StepError is a fatal failure of one step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FailedStep returns the step err aborted in, or "" if err is not a StepError.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
