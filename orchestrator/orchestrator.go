package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/halvar/credkeeper/config"
	"github.com/halvar/credkeeper/db"
	"github.com/halvar/credkeeper/notify"
	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/pkg/pool"
	"github.com/halvar/credkeeper/policy"
	"github.com/halvar/credkeeper/strategy"
	"github.com/rs/zerolog/log"
)

// escalationThreshold is the consecutive-failure count at which a failure
// message starts carrying the streak, so an operator can tell a one-off
// hiccup from a broken login flow.
const escalationThreshold = 3

// StatusRecord is one row of a read-only status sweep.
type StatusRecord struct {
	Service         string
	Account         string
	Status          policy.Status
	LastRefreshedAt *time.Time
	DaysRemaining   float64
	Reason          string
	Priority        int
}

// Report aggregates one refresh sweep. Individual failures never abort a
// sweep; they are counted and carried in Results.
type Report struct {
	Succeeded int
	Failed    int
	Skipped   int
	Results   []strategy.Result
	// SkippedTargets holds the status rows of targets left untouched
	// because their session was still valid.
	SkippedTargets []StatusRecord
}

// Orchestrator wires configuration, the auth state store, the strategies,
// the refresh journal, and the notifier into the three sweep operations.
type Orchestrator struct {
	cfg      *config.Config
	store    strategy.StateStore
	deps     strategy.Deps
	history  db.HistoryRepository
	notifier notify.Notifier

	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// New builds an orchestrator. history and notifier may be nil, in which case
// journaling and notification are skipped.
func New(cfg *config.Config, st strategy.StateStore, sessions strategy.SessionFactory, history db.HistoryRepository, notifier notify.Notifier) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		store:    st,
		history:  history,
		notifier: notifier,
	}
	o.deps = strategy.Deps{
		Store:         st,
		Sessions:      sessions,
		ScreenshotDir: cfg.ScreenshotDir,
		Now:           func() time.Time { return o.now() },
	}
	return o
}

// WithNotifier returns a copy of the orchestrator delivering events through a
// different notifier. Used to attach per-invocation sinks such as a progress
// display.
func (o *Orchestrator) WithNotifier(n notify.Notifier) *Orchestrator {
	c := *o
	c.notifier = n
	return &c
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// evaluate computes the expiration status of one target. Read-only.
func (o *Orchestrator) evaluate(service, account string, cfg config.ServiceConfig) (StatusRecord, error) {
	state, err := o.store.Load(service, account)
	if err != nil {
		return StatusRecord{}, err
	}

	var last *time.Time
	if state != nil && !state.LastRefreshedAt.IsZero() {
		t := state.LastRefreshedAt
		last = &t
	}

	eval := policy.Evaluate(last, cfg.ExpirationDays, cfg.WarningDays, cfg.CriticalDays, o.now())
	return StatusRecord{
		Service:         service,
		Account:         account,
		Status:          eval.Status,
		LastRefreshedAt: last,
		DaysRemaining:   eval.DaysRemaining,
		Reason:          eval.Reason,
		Priority:        cfg.Priority,
	}, nil
}

// CheckAll computes the expiration status of every enabled service and
// account without mutating anything. Records are sorted most-urgent first,
// then by configured priority. Warning-or-worse statuses are notified.
func (o *Orchestrator) CheckAll(ctx context.Context) ([]StatusRecord, error) {
	var records []StatusRecord
	for _, service := range o.cfg.EnabledServices() {
		svc := o.cfg.Services[service]
		for _, account := range svc.AccountList() {
			if err := ctx.Err(); err != nil {
				return records, err
			}
			rec, err := o.evaluate(service, account, svc)
			if err != nil {
				return records, clierr.New(clierr.Storage,
					fmt.Sprintf("failed to evaluate %s/%s", service, account), err)
			}
			records = append(records, rec)
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Status != records[j].Status {
			return records[i].Status > records[j].Status
		}
		return records[i].Priority < records[j].Priority
	})

	for _, rec := range records {
		if rec.Status == policy.Warning || rec.Status == policy.Critical || rec.Status == policy.Expired {
			o.notifyStatus(rec)
		}
	}
	return records, nil
}

// RefreshNeeded sweeps every enabled service and account in priority order
// and refreshes the ones whose session is no longer valid. force refreshes
// valid sessions too. A failure on one target never stops the sweep.
//
// Services run in parallel bounded by the configured concurrency; accounts
// of the same service always run sequentially so they cannot contend for
// the same login flow.
func (o *Orchestrator) RefreshNeeded(ctx context.Context, force bool) Report {
	services := o.cfg.EnabledServices()

	perService, _ := pool.Map(ctx, services, o.cfg.Concurrency, func(ctx context.Context, service string) serviceOutcome {
		return o.refreshService(ctx, service, force)
	})

	var report Report
	for _, out := range perService {
		report.Results = append(report.Results, out.results...)
		report.SkippedTargets = append(report.SkippedTargets, out.skipped...)
	}
	for _, res := range report.Results {
		if res.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	report.Skipped = len(report.SkippedTargets)

	log.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("Refresh sweep finished")
	return report
}

type serviceOutcome struct {
	results []strategy.Result
	skipped []StatusRecord
}

func (o *Orchestrator) refreshService(ctx context.Context, service string, force bool) serviceOutcome {
	svc := o.cfg.Services[service]
	var out serviceOutcome
	for _, account := range svc.AccountList() {
		if ctx.Err() != nil {
			return out
		}

		rec, err := o.evaluate(service, account, svc)
		if err != nil {
			res := strategy.Result{
				Service:        service,
				Account:        account,
				Message:        fmt.Sprintf("failed to evaluate status: %v", err),
				Classification: clierr.Storage,
			}
			out.results = append(out.results, o.record(ctx, res))
			continue
		}
		if !force && !policy.NeedsRefresh(rec.Status) {
			out.skipped = append(out.skipped, rec)
			continue
		}

		out.results = append(out.results, o.record(ctx, o.refreshTarget(ctx, service, account, svc)))
	}
	return out
}

// RefreshOne refreshes a single target with the same skip and isolation
// semantics as a sweep.
func (o *Orchestrator) RefreshOne(ctx context.Context, service, account string, force bool) strategy.Result {
	svc, ok := o.cfg.Services[service]
	if !ok {
		return strategy.Result{
			Service:        service,
			Account:        account,
			Message:        fmt.Sprintf("service %q is not configured", service),
			Classification: clierr.Configuration,
		}
	}
	if !svc.Enabled {
		return strategy.Result{
			Service:        service,
			Account:        account,
			Message:        fmt.Sprintf("service %q is disabled", service),
			Classification: clierr.Configuration,
		}
	}
	if !accountConfigured(svc, account) {
		return strategy.Result{
			Service:        service,
			Account:        account,
			Message:        fmt.Sprintf("account %q is not configured for service %q", account, service),
			Classification: clierr.Configuration,
		}
	}

	if !force {
		rec, err := o.evaluate(service, account, svc)
		if err == nil && !policy.NeedsRefresh(rec.Status) {
			return strategy.Result{
				Service: service,
				Account: account,
				Success: true,
				Message: fmt.Sprintf("skipped: session still valid (%s)", rec.Reason),
			}
		}
	}

	return o.record(ctx, o.refreshTarget(ctx, service, account, svc))
}

// refreshTarget builds the strategy and runs one refresh, converting any
// residual panic into a classified failure so a faulty strategy cannot take
// down a sweep.
func (o *Orchestrator) refreshTarget(ctx context.Context, service, account string, svc config.ServiceConfig) (res strategy.Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("service", service).Str("account", account).Msg("Refresh panicked")
			res = strategy.Result{
				Service:        service,
				Account:        account,
				Message:        fmt.Sprintf("refresh panicked: %v", r),
				Classification: clierr.Unexpected,
			}
		}
	}()

	strat, err := strategy.Build(service, svc, o.deps)
	if err != nil {
		return strategy.Result{
			Service:        service,
			Account:        account,
			Message:        err.Error(),
			Classification: clierr.TypeOf(err),
		}
	}
	return strat.Refresh(ctx, account)
}

// record journals and notifies one refresh result, annotating repeated
// failures with the current streak.
func (o *Orchestrator) record(ctx context.Context, res strategy.Result) strategy.Result {
	if o.history != nil {
		if err := o.history.Record(ctx, db.RefreshEvent{
			Service:        res.Service,
			Account:        res.Account,
			Success:        res.Success,
			Message:        res.Message,
			Classification: string(res.Classification),
			AttemptedAt:    o.now(),
		}); err != nil {
			log.Warn().Err(err).Str("service", res.Service).Msg("Failed to journal refresh result")
		}

		if !res.Success {
			if n, err := o.history.ConsecutiveFailures(ctx, res.Service, res.Account); err == nil && n >= escalationThreshold {
				res.Message = fmt.Sprintf("%s (%d consecutive failures)", res.Message, n)
			}
		}
	}

	if o.notifier != nil {
		_ = o.notifier.Notify(notify.Event{
			Service:   res.Service,
			Account:   res.Account,
			Kind:      notify.KindResult,
			Severity:  notify.SeverityForResult(res.Success),
			Message:   res.Message,
			Timestamp: o.now(),
		})
	}
	return res
}

func (o *Orchestrator) notifyStatus(rec StatusRecord) {
	if o.notifier == nil {
		return
	}
	_ = o.notifier.Notify(notify.Event{
		Service:   rec.Service,
		Account:   rec.Account,
		Kind:      notify.KindStatus,
		Severity:  notify.SeverityForStatus(rec.Status),
		Message:   fmt.Sprintf("status %s: %s", rec.Status, rec.Reason),
		Timestamp: o.now(),
	})
}

func accountConfigured(svc config.ServiceConfig, account string) bool {
	for _, a := range svc.AccountList() {
		if a == account {
			return true
		}
	}
	return false
}
