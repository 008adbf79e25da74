// Package installer runs the provisioning pipeline: one sequential list of
// named steps over a single host, with rollback of the run's own side
// effects when a fatal step fails.
package installer

import (
	"context"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	history "github.com/redentordev/laravel-vps/internal/state"
	"github.com/redentordev/laravel-vps/pkg/adminpanel"
	"github.com/redentordev/laravel-vps/pkg/config"
	"github.com/redentordev/laravel-vps/pkg/database"
	"github.com/redentordev/laravel-vps/pkg/formatter"
	"github.com/redentordev/laravel-vps/pkg/git"
	"github.com/redentordev/laravel-vps/pkg/host"
	"github.com/redentordev/laravel-vps/pkg/httputil"
	"github.com/redentordev/laravel-vps/pkg/laravel"
	"github.com/redentordev/laravel-vps/pkg/metrics"
	"github.com/redentordev/laravel-vps/pkg/nginx"
	"github.com/redentordev/laravel-vps/pkg/plan"
	"github.com/redentordev/laravel-vps/pkg/preflight"
	"github.com/redentordev/laravel-vps/pkg/project"
	"github.com/redentordev/laravel-vps/pkg/provisioner"
	"github.com/redentordev/laravel-vps/pkg/ssl"
	"github.com/redentordev/laravel-vps/pkg/state"
	"github.com/redentordev/laravel-vps/pkg/telemetry"
)

// Installer wires the components of one run together. Host, Config,
// Collector and Locker are required; the rest default from Config.
type Installer struct {
	Config    *config.Config
	Host      host.Host
	Collector plan.Collector
	Defaults  plan.Defaults
	Locker    state.Locker
	Out       *formatter.Output
	Log       *zap.Logger

	// RunID is generated when empty.
	RunID string

	DNS       *ssl.DNSChecker
	IPFetcher ssl.Fetcher
	// Database overrides the provisioner picked from the run mode.
	Database database.Provisioner
	// Checker overrides the precondition checker built from Config.
	Checker *preflight.Checker
}

// run holds what steps hand to later steps.
type run struct {
	*RunContext
	report  *Report
	metrics *metrics.Recorder
	os      preflight.OSInfo
	plan    plan.Plan
	dir     project.Directory
	site    nginx.Site

	stack  *provisioner.Stack
	server *nginx.Server
	config *laravel.Configurator
}

// Run executes the pipeline. On a fatal step it rolls back and returns a
// *StepError; the report is filled in either way.
func (i *Installer) Run(ctx context.Context) (*Report, error) {
	rc := NewRunContext(i.Host, i.Out, i.Log, i.RunID)
	r := &run{
		RunContext: rc,
		report:     &Report{RunID: rc.ID, Host: i.Host.Name()},
		metrics:    metrics.NewRecorder(),
	}
	rc.Log.Info("run started", zap.String("host", i.Host.Name()), zap.Bool("dry_run", i.Config.DryRun))

	err := i.step(ctx, r, StepPreflight, i.preflight)
	if err == nil {
		err = i.step(ctx, r, StepLock, func(ctx context.Context, _ *run) error {
			_, err := i.Locker.Acquire(ctx, "install")
			return err
		})
		if err == nil {
			defer func() {
				if err := i.Locker.Release(context.WithoutCancel(ctx)); err != nil {
					rc.Log.Warn("failed to release lock", zap.Error(err))
				}
			}()
		}
	}
	if err == nil {
		err = i.pipeline(ctx, r)
	}

	r.report.Duration = time.Since(rc.Started)
	if err != nil {
		i.abort(ctx, r, err)
	} else {
		r.report.Status = history.StatusSuccess
	}

	r.report.Print(rc.Out)
	i.record(ctx, r)
	return r.report, err
}

func (i *Installer) pipeline(ctx context.Context, r *run) error {
	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StepCollect, i.collect},
		{StepStack, i.ensureStack},
		{StepFirewall, i.firewall},
		{StepDatabase, i.database},
		{StepMaterialize, i.materialize},
		{StepConfigure, i.configure},
		{StepMigrate, i.migrate},
		{StepPublish, i.publish},
		{StepCertificate, i.certificate},
		{StepAdminPanel, i.adminPanel},
		{StepPermissions, i.permissions},
	}
	for _, s := range steps {
		if err := i.step(ctx, r, s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// step runs fn inside a span and turns its error into a *StepError.
func (i *Installer) step(ctx context.Context, r *run, name string, fn func(context.Context, *run) error) error {
	ctx, span := telemetry.TraceStep(ctx, r.ID, name)
	defer span.End()

	log := r.Log.With(zap.String("step", name))
	log.Debug("step started")
	start := time.Now()

	err := fn(ctx, r)
	elapsed := time.Since(start)
	r.metrics.ObserveStep(r.plan.ProjectName, name, elapsed)
	if err != nil {
		telemetry.RecordError(ctx, err)
		r.metrics.StepFailed(r.plan.ProjectName, name, true)
		log.Error("step failed", zap.Error(err), zap.Duration("duration", elapsed))
		return &StepError{Step: name, Err: err}
	}
	log.Info("step completed", zap.Duration("duration", elapsed))
	return nil
}

// warn reports a degraded step. The run carries on.
func (r *run) warn(step, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Out.Warning("%s", msg)
	r.report.Warnings = append(r.report.Warnings, step+": "+msg)
	r.metrics.StepFailed(r.plan.ProjectName, step, false)
}

func (i *Installer) abort(ctx context.Context, r *run, err error) {
	r.report.Err = err
	r.report.FailedStep = FailedStep(err)
	r.report.Status = history.StatusFailed
	r.Out.Error("Aborted at step %q: %v", r.report.FailedStep, err)

	actions := r.Ledger.Actions()
	n := len(actions)
	if n == 0 {
		return
	}
	for j := n - 1; j >= 0; j-- {
		r.report.RolledBack = append(r.report.RolledBack, actions[j].Description)
	}
	r.Out.Step("Rolling back %d action(s)", n)
	r.report.RollbackErrors = r.Ledger.Rollback(ctx)
	r.report.Status = history.StatusRolledBack
	r.metrics.Rollback(r.plan.ProjectName, n, len(r.report.RollbackErrors))
	for _, rerr := range r.report.RollbackErrors {
		r.Out.Warning("Rollback: %v", rerr)
	}
}

// record writes the run history entry and the metrics textfile. Neither
// changes the outcome of the run.
func (i *Installer) record(ctx context.Context, r *run) {
	ctx = context.WithoutCancel(ctx)
	rep := r.report
	p := r.plan

	r.metrics.Finish(p.ProjectName, rep.Status == history.StatusSuccess, rep.Duration, time.Now())
	if rep.Certificate.Status != "" {
		r.metrics.Certificate(p.ProjectName, p.Domain, rep.Certificate.Secure())
	}

	if i.Config.DryRun {
		return
	}

	rec := &history.RunRecord{
		ID:         r.ID,
		Timestamp:  r.Started,
		Project:    p.ProjectName,
		Domain:     p.Domain,
		PHPVersion: p.PHPVersion,
		Method:     string(p.Method),
		Branch:     r.dir.Branch,
		Commit:     rep.Commit,
		Status:     rep.Status,
		FailedStep: rep.FailedStep,
		Cert:       string(rep.Certificate.Status),
		AppURL:     rep.AppURL,
		User:       history.GetCurrentUser(),
		Host:       rep.Host,
		Duration:   rep.Duration,
	}
	if rep.Err != nil {
		rec.Error = rep.Err.Error()
	}
	if err := history.NewHistoryManager(r.Host, i.Config.Paths.StateDir).Save(ctx, rec); err != nil {
		r.Log.Warn("failed to save run history", zap.Error(err))
	}

	if i.Config.Paths.MetricsFile != "" {
		if err := r.metrics.WriteTextfile(ctx, r.Host, i.Config.Paths.MetricsFile); err != nil {
			r.Log.Warn("failed to write metrics", zap.Error(err))
		}
	}
}

func (i *Installer) preflight(ctx context.Context, r *run) error {
	c := i.Checker
	if c == nil {
		c = preflight.NewChecker(r.Host, i.Config.Network.ProbeTargets, i.Config.Timeouts.Probe, i.Config.SSH.Sudo)
	}
	if err := c.Check(ctx); err != nil {
		return err
	}
	r.os = c.OS()
	r.Out.Success("Preflight passed on %s (%s)", r.Host.Name(), r.os)
	return nil
}

func (i *Installer) collect(ctx context.Context, r *run) error {
	p, err := i.Collector.Collect(ctx, i.Defaults)
	if err != nil {
		return err
	}
	r.plan = p
	r.report.Plan = p.Redacted()
	r.report.AdminPassword = p.Admin.BasicAuthPassword
	r.report.DBPassword = p.Database.Password
	r.Log.Info("plan collected",
		zap.String("project", p.ProjectName),
		zap.String("domain", p.Domain),
		zap.String("php", p.PHPVersion),
		zap.String("method", string(p.Method)),
		zap.Bool("database", p.Database.Enabled),
		zap.Bool("admin_panel", p.Admin.Enabled),
	)
	return nil
}

func (i *Installer) ensureStack(ctx context.Context, r *run) error {
	t := i.Config.Timeouts
	r.stack = provisioner.NewStack(r.Host, provisioner.Distro{Ubuntu: r.os.IsUbuntu(), Codename: r.os.Codename}, r.Out, t.Packages, t.Composer)
	r.Out.Step("Installing PHP %s, nginx and the database server", r.plan.PHPVersion)
	if err := r.stack.Ensure(ctx, r.plan.PHPVersion); err != nil {
		return err
	}
	r.server = nginx.NewServer(r.Host)
	r.Out.Success("Stack ready (%s, php%s-fpm)", r.stack.DatabaseService, r.plan.PHPVersion)
	return nil
}

func (i *Installer) firewall(ctx context.Context, r *run) error {
	if !i.Config.Features.Firewall {
		r.Out.Verbose("Firewall configuration disabled")
		return nil
	}
	fw := provisioner.Firewall{Host: r.Host}
	if i.Config.Remote() {
		fw.SSHPort = i.Config.SSH.Port
	}
	if err := fw.Configure(ctx); err != nil {
		r.warn(StepFirewall, "Firewall not configured: %v", err)
	}
	return nil
}

func (i *Installer) database(ctx context.Context, r *run) error {
	db := r.plan.Database
	if !db.Enabled {
		return nil
	}
	if !database.IsLocal(db.Host) {
		r.Out.Info("Database server %s is not on this host, skipping database creation", db.Host)
		return nil
	}

	prov, closeFn, err := i.databaseProvisioner(ctx, r)
	if err != nil {
		return err
	}
	defer closeFn()

	r.Out.Step("Creating database %s and user %s", db.Name, db.User)
	return prov.Provision(ctx, db)
}

// databaseProvisioner talks to MySQL directly when running on the server
// and goes through the mysql client otherwise.
func (i *Installer) databaseProvisioner(ctx context.Context, r *run) (database.Provisioner, func(), error) {
	if i.Database != nil {
		return i.Database, func() {}, nil
	}
	if i.Config.Remote() || i.Config.DryRun {
		return database.NewCLI(r.Host, i.Config.Paths.StateDir, i.Config.Timeouts.Default), func() {}, nil
	}
	conn, err := database.Connect(ctx, i.Config.Paths.MySQLSocket, i.Config.Timeouts.Probe)
	if err != nil {
		return nil, nil, err
	}
	return database.SQL{DB: conn}, func() { _ = conn.Close() }, nil
}

func (i *Installer) materialize(ctx context.Context, r *run) error {
	gc := git.NewClient(r.Host, i.Config.Timeouts.Composer)
	m := &project.Materializer{
		Host:            r.Host,
		Git:             gc,
		Ledger:          r.Ledger,
		Out:             r.Out,
		WebRoot:         i.Config.Paths.WebRoot,
		ComposerTimeout: i.Config.Timeouts.Composer,
	}
	dir, err := m.Materialize(ctx, r.plan)
	if err != nil {
		return err
	}
	r.dir = dir
	r.report.Directory = dir.Path
	if r.plan.Method == plan.MethodClone {
		if info, err := gc.GetCommitInfo(ctx, dir.Path); err == nil {
			r.report.Commit = info.ShortHash
			r.Log.Info("cloned", zap.String("branch", dir.Branch), zap.String("commit", info.ShortHash), zap.String("message", info.Message))
		}
	}
	r.Out.Success("Project ready in %s", dir.Path)
	return nil
}

func (i *Installer) configure(ctx context.Context, r *run) error {
	artisan := laravel.NewArtisan(r.Host, r.plan.PHPVersion, i.Config.Timeouts.Default)
	r.config = &laravel.Configurator{Host: r.Host, Artisan: artisan, Out: r.Out}
	if err := r.config.Configure(ctx, r.dir.Path, r.plan); err != nil {
		return err
	}
	if err := artisan.StorageLink(ctx, r.dir.Path); err != nil {
		r.warn(StepConfigure, "storage:link failed: %v", err)
	}
	return nil
}

func (i *Installer) migrate(ctx context.Context, r *run) error {
	if !r.plan.Database.Enabled {
		r.Out.Verbose("No database configured, skipping migrations")
		return nil
	}
	artisan := r.config.Artisan
	r.Out.Step("Running migrations")
	if err := artisan.Migrate(ctx, r.dir.Path); err != nil {
		return err
	}
	if r.plan.RunSeeders {
		if err := artisan.Seed(ctx, r.dir.Path); err != nil {
			r.warn(StepMigrate, "Seeding failed: %v", err)
		}
	}
	return nil
}

func (i *Installer) publish(ctx context.Context, r *run) error {
	paths := i.Config.Paths
	p := &nginx.Publisher{
		Host:           r.Host,
		Server:         r.server,
		Ledger:         r.Ledger,
		Out:            r.Out,
		SitesAvailable: paths.SitesAvailable,
		SitesEnabled:   paths.SitesEnabled,
		SnippetsRoot:   paths.Snippets,
		DefaultSite:    paths.DefaultSite,
	}
	site, err := p.Publish(ctx, r.plan, r.dir)
	if err != nil {
		return err
	}
	r.site = site
	r.report.AppURL = r.plan.AppURL(false)
	return nil
}

func (i *Installer) certificate(ctx context.Context, r *run) error {
	dns := i.DNS
	if dns == nil {
		dns = ssl.NewDNSChecker(i.Config.Network.Resolvers, i.Config.Timeouts.Probe)
	}
	fetcher := i.IPFetcher
	if fetcher == nil {
		if i.Config.Remote() {
			fetcher = ssl.HostFetcher{Host: r.Host, Timeout: i.Config.Timeouts.Probe}
		} else {
			fetcher = ssl.HTTPFetcher{Client: httputil.NewClientWithTimeout(i.Config.Timeouts.Probe)}
		}
	}
	prov := &ssl.Provisioner{
		Host:    r.Host,
		DNS:     dns,
		IP:      ssl.NewPublicIP(i.Config.Network.IPServices, fetcher),
		Email:   r.plan.CertEmail,
		Timeout: i.Config.Timeouts.Certbot,
		Out:     r.Out,
	}

	res := prov.Provision(ctx, r.plan.Domain)
	r.report.Certificate = res
	switch res.Status {
	case ssl.StatusIssued:
		url := r.plan.AppURL(true)
		if err := r.config.SetURL(ctx, r.dir.Path, url); err != nil {
			r.warn(StepCertificate, "Certificate issued but APP_URL was not updated: %v", err)
		}
		r.report.AppURL = url
	case ssl.StatusIssueFailed:
		r.metrics.StepFailed(r.plan.ProjectName, StepCertificate, false)
		r.report.Warnings = append(r.report.Warnings, StepCertificate+": "+res.Reason)
	}
	return nil
}

func (i *Installer) adminPanel(ctx context.Context, r *run) error {
	if !r.plan.Admin.Enabled {
		return nil
	}
	inst := &adminpanel.Installer{
		Host:        r.Host,
		Server:      r.server,
		Ledger:      r.Ledger,
		Out:         r.Out,
		BaseDir:     i.Config.Paths.PhpMyAdmin,
		DownloadURL: i.Config.Defaults.PhpMyAdminURL,
		WebUser:     i.Config.Paths.WebUser,
		Timeout:     i.Config.Timeouts.Composer,
	}
	panel, err := inst.Install(ctx, r.plan, r.site)
	if err != nil {
		return err
	}
	r.report.AdminPanel = &panel
	r.report.AdminURL = r.plan.AdminURL(r.report.Certificate.Secure())
	r.Out.Success("phpMyAdmin available at %s", r.report.AdminURL)
	return nil
}

// permissions hands the project over to the web server user.
func (i *Installer) permissions(ctx context.Context, r *run) error {
	owner := i.Config.Paths.WebUser + ":" + i.Config.Paths.WebUser
	cmds := []host.Command{
		host.Cmd("chown", "-R", owner, r.dir.Path),
		host.Cmd("chmod", "-R", "ug+rwx",
			path.Join(r.dir.Path, "storage"),
			path.Join(r.dir.Path, "bootstrap", "cache")),
	}
	for _, c := range cmds {
		if _, err := r.Host.Exec(ctx, c); err != nil {
			r.warn(StepPermissions, "Permission hand-off incomplete: %v", err)
			return nil
		}
	}
	r.Out.Verbose("%s now owns %s", owner, r.dir.Path)
	return nil
}
