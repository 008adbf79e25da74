package installer

import (
	"strings"
	"time"

	history "github.com/redentordev/laravel-vps/internal/state"
	"github.com/redentordev/laravel-vps/pkg/adminpanel"
	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/ssl"
)

// Report is the outcome of a run.
type Report struct {
	RunID string
	Host  string
	// Plan has its secrets masked.
	Plan       plan.Plan
	Status     history.RunStatus
	FailedStep string
	Err        error

	Directory   string
	Commit      string
	AppURL      string
	Certificate ssl.Result
	AdminURL    string
	AdminPanel  *adminpanel.Panel

	// Credentials are printed once in the summary and never logged.
	AdminPassword string
	DBPassword    string

	Warnings []string
	// RolledBack lists the undone actions in the order they ran.
	RolledBack     []string
	RollbackErrors []error
	Duration       time.Duration
}

// Succeeded reports whether the run finished without a fatal step.
func (r *Report) Succeeded() bool {
	return r.Status == history.StatusSuccess
}

// Print writes the final summary.
func (r *Report) Print(out *formatter.Output) {
	out.Section("Summary")
	out.KeyValue("Run", history.FormatRunID(r.RunID))
	out.KeyValue("Duration", history.FormatDuration(r.Duration))

	if !r.Succeeded() {
		out.Error("Installation failed at step %q", r.FailedStep)
		if r.Err != nil {
			out.KeyValue("Error", r.Err.Error())
		}
		switch {
		case r.Status == history.StatusRolledBack && len(r.RollbackErrors) == 0:
			out.KeyValue("Rollback", "completed")
		case r.Status == history.StatusRolledBack:
			out.KeyValue("Rollback", "completed with errors, check the run log")
		default:
			out.KeyValue("Rollback", "nothing to undo")
		}
		for _, a := range r.RolledBack {
			out.Verbose("  undone: %s", a)
		}
		return
	}

	out.Success("Laravel is installed")
	out.KeyValue("App URL", r.AppURL)
	out.KeyValue("Directory", r.Directory)
	out.KeyValue("Certificate", certificateLine(r.Certificate))
	if r.AdminURL != "" {
		out.KeyValue("phpMyAdmin", r.AdminURL)
		if r.Plan.Admin.HasBasicAuth() {
			out.KeyValue("Basic auth user", r.Plan.Admin.BasicAuthUser)
			out.KeyValue("Basic auth password", r.AdminPassword)
		}
		if len(r.Plan.Admin.AllowList) > 0 {
			out.KeyValue("Allowed from", strings.Join(r.Plan.Admin.AllowList, ", "))
		}
	}
	if r.Plan.Database.Enabled {
		out.KeyValue("Database", r.Plan.Database.Name+" (user "+r.Plan.Database.User+")")
		out.KeyValue("Database password", r.DBPassword)
	}
	if n := len(r.Warnings); n > 0 {
		out.Warning("Finished with %d warning(s)", n)
		for _, w := range r.Warnings {
			out.Plain("  - %s", w)
		}
	}
}

func certificateLine(res ssl.Result) string {
	switch res.Status {
	case ssl.StatusIssued:
		return "issued"
	case "":
		return "not requested"
	}
	if res.Reason == "" {
		return string(res.Status)
	}
	return string(res.Status) + " (" + res.Reason + ")"
}
