package orchestrator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/halvar/credkeeper/config"
	"github.com/halvar/credkeeper/db"
	"github.com/halvar/credkeeper/notify"
	"github.com/halvar/credkeeper/orchestrator"
	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/policy"
	"github.com/halvar/credkeeper/store"
	"github.com/halvar/credkeeper/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory StateStore that counts backups so tests can prove
// read-only operations stay read-only.
type memStore struct {
	mu      sync.Mutex
	states  map[string]*store.AuthState
	backups int
}

func newMemStore() *memStore { return &memStore{states: map[string]*store.AuthState{}} }

func (m *memStore) key(service, account string) string { return service + "/" + account }

func (m *memStore) Load(service, account string) (*store.AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[m.key(service, account)], nil
}

func (m *memStore) Save(service, account string, state *store.AuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[m.key(service, account)] = state
	return nil
}

func (m *memStore) Backup(service, account string) (*store.BackupHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups++
	return nil, nil
}

func (m *memStore) setRefreshed(service, account string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[m.key(service, account)] = &store.AuthState{
		Cookies:         []store.Cookie{{Name: "sid", Value: "x"}},
		LastRefreshedAt: at,
	}
}

// scripted drives per-target outcomes for the fake strategy.
type scripted struct {
	mu        sync.Mutex
	fail      map[string]bool
	panics    map[string]bool
	attempted []string
}

func (s *scripted) outcome(service string, cfg config.ServiceConfig, deps strategy.Deps) strategy.Strategy {
	return &scriptedStrategy{script: s, service: service}
}

type scriptedStrategy struct {
	script  *scripted
	service string
}

func (s *scriptedStrategy) Service() string { return s.service }

func (s *scriptedStrategy) Refresh(ctx context.Context, account string) strategy.Result {
	s.script.mu.Lock()
	s.script.attempted = append(s.script.attempted, s.service)
	panics := s.script.panics[s.service]
	fails := s.script.fail[s.service]
	s.script.mu.Unlock()

	if panics {
		panic("strategy exploded")
	}
	if fails {
		return strategy.Result{
			Service:        s.service,
			Account:        account,
			Message:        "login did not complete in time",
			Classification: clierr.NavigationTimeout,
		}
	}
	return strategy.Result{
		Service:     s.service,
		Account:     account,
		Success:     true,
		Message:     "session refreshed",
		RefreshedAt: fixedNow,
	}
}

func (s *scriptedStrategy) Validate(ctx context.Context, sess strategy.BrowserSession) bool {
	return true
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) all() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func sweepConfig(services ...string) *config.Config {
	cfg := &config.Config{
		Concurrency: 1,
		Services:    map[string]config.ServiceConfig{},
	}
	for i, name := range services {
		cfg.Services[name] = config.ServiceConfig{
			Enabled:        true,
			Strategy:       "scripted",
			ExpirationDays: 30,
			WarningDays:    7,
			CriticalDays:   3,
			Priority:       i + 1,
			AuthURL:        "https://" + name + ".example.com/login",
		}
	}
	return cfg
}

func newOrchestrator(cfg *config.Config, st strategy.StateStore, script *scripted, notifier notify.Notifier, history db.HistoryRepository) *orchestrator.Orchestrator {
	strategy.Register("scripted", script.outcome)
	o := orchestrator.New(cfg, st, nil, history, notifier)
	o.Now = func() time.Time { return fixedNow }
	return o
}

func TestRefreshNeeded_FailureIsolation(t *testing.T) {
	script := &scripted{fail: map[string]bool{"beacon": true}, panics: map[string]bool{}}
	st := newMemStore()
	o := newOrchestrator(sweepConfig("anchor", "beacon", "compass"), st, script, nil, nil)

	report := o.RefreshNeeded(context.Background(), false)

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.ElementsMatch(t, []string{"anchor", "beacon", "compass"}, script.attempted,
		"a failure on one service must not stop the sweep")
}

func TestRefreshNeeded_PanicIsIsolated(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{"beacon": true}}
	st := newMemStore()
	o := newOrchestrator(sweepConfig("anchor", "beacon", "compass"), st, script, nil, nil)

	report := o.RefreshNeeded(context.Background(), false)

	assert.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	var failed strategy.Result
	for _, res := range report.Results {
		if !res.Success {
			failed = res
		}
	}
	assert.Equal(t, "beacon", failed.Service)
	assert.Equal(t, clierr.Unexpected, failed.Classification)
	assert.Contains(t, failed.Message, "panicked")
}

func TestRefreshNeeded_SkipsValidSessions(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	st := newMemStore()
	st.setRefreshed("anchor", "", fixedNow.Add(-24*time.Hour))
	o := newOrchestrator(sweepConfig("anchor", "beacon"), st, script, nil, nil)

	report := o.RefreshNeeded(context.Background(), false)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, []string{"beacon"}, script.attempted)
	require.Len(t, report.SkippedTargets, 1)
	assert.Equal(t, "anchor", report.SkippedTargets[0].Service)
	assert.Equal(t, policy.Valid, report.SkippedTargets[0].Status)
}

func TestRefreshNeeded_ForceRefreshesValidSessions(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	st := newMemStore()
	st.setRefreshed("anchor", "", fixedNow.Add(-24*time.Hour))
	o := newOrchestrator(sweepConfig("anchor"), st, script, nil, nil)

	report := o.RefreshNeeded(context.Background(), true)

	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 1, report.Succeeded)
}

func TestRefreshNeeded_NotifiesEveryResult(t *testing.T) {
	script := &scripted{fail: map[string]bool{"beacon": true}, panics: map[string]bool{}}
	notifier := &recordingNotifier{}
	o := newOrchestrator(sweepConfig("anchor", "beacon"), newMemStore(), script, notifier, nil)

	o.RefreshNeeded(context.Background(), false)

	events := notifier.all()
	require.Len(t, events, 2)
	bySeverity := map[notify.Severity]int{}
	for _, ev := range events {
		assert.Equal(t, notify.KindResult, ev.Kind)
		bySeverity[ev.Severity]++
	}
	assert.Equal(t, 1, bySeverity[notify.Info])
	assert.Equal(t, 1, bySeverity[notify.Alert], "a failed refresh must escalate to an alert")
}

func TestCheckAll_IsReadOnly(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	st := newMemStore()
	st.setRefreshed("anchor", "", fixedNow.Add(-24*time.Hour))
	o := newOrchestrator(sweepConfig("anchor", "beacon"), st, script, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := o.CheckAll(context.Background())
		require.NoError(t, err)
	}

	assert.Equal(t, 0, st.backups, "a status sweep must never create backups")
	assert.Empty(t, script.attempted, "a status sweep must never invoke a strategy")
}

func TestCheckAll_SortsMostUrgentFirst(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	st := newMemStore()
	// anchor fresh, beacon expired, compass never refreshed.
	st.setRefreshed("anchor", "", fixedNow.Add(-24*time.Hour))
	st.setRefreshed("beacon", "", fixedNow.Add(-60*24*time.Hour))
	o := newOrchestrator(sweepConfig("anchor", "beacon", "compass"), st, script, nil, nil)

	records, err := o.CheckAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "beacon", records[0].Service)
	assert.Equal(t, policy.Expired, records[0].Status)
	assert.Equal(t, "anchor", records[1].Service)
	assert.Equal(t, policy.Valid, records[1].Status)
	assert.Equal(t, "compass", records[2].Service)
	assert.Equal(t, policy.Unknown, records[2].Status)
}

func TestCheckAll_NotifiesWarningAndWorse(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	st := newMemStore()
	st.setRefreshed("anchor", "", fixedNow.Add(-24*time.Hour))              // valid
	st.setRefreshed("beacon", "", fixedNow.Add(-60*24*time.Hour))           // expired
	notifier := &recordingNotifier{}
	o := newOrchestrator(sweepConfig("anchor", "beacon"), st, script, notifier, nil)

	_, err := o.CheckAll(context.Background())
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 1, "valid sessions are not worth an event")
	assert.Equal(t, "beacon", events[0].Service)
	assert.Equal(t, notify.KindStatus, events[0].Kind)
	assert.Equal(t, notify.Alert, events[0].Severity)
}

func TestRefreshOne_UnknownService(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	o := newOrchestrator(sweepConfig("anchor"), newMemStore(), script, nil, nil)

	res := o.RefreshOne(context.Background(), "ghost", "", false)

	assert.False(t, res.Success)
	assert.Equal(t, clierr.Configuration, res.Classification)
}

func TestRefreshOne_UnknownAccount(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	cfg := sweepConfig("anchor")
	svc := cfg.Services["anchor"]
	svc.Accounts = []string{"ops", "treasury"}
	cfg.Services["anchor"] = svc
	o := newOrchestrator(cfg, newMemStore(), script, nil, nil)

	res := o.RefreshOne(context.Background(), "anchor", "ghost", false)

	assert.False(t, res.Success)
	assert.Equal(t, clierr.Configuration, res.Classification)
}

func TestRefreshOne_SkipsValidUnlessForced(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	st := newMemStore()
	st.setRefreshed("anchor", "", fixedNow.Add(-24*time.Hour))
	o := newOrchestrator(sweepConfig("anchor"), st, script, nil, nil)

	res := o.RefreshOne(context.Background(), "anchor", "", false)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "skipped")
	assert.Empty(t, script.attempted)

	res = o.RefreshOne(context.Background(), "anchor", "", true)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"anchor"}, script.attempted)
}

func TestRefreshNeeded_MultiAccountIsolation(t *testing.T) {
	script := &scripted{fail: map[string]bool{}, panics: map[string]bool{}}
	cfg := sweepConfig("harbor")
	svc := cfg.Services["harbor"]
	svc.Accounts = []string{"ops", "treasury"}
	cfg.Services["harbor"] = svc
	st := newMemStore()
	o := newOrchestrator(cfg, st, script, nil, nil)

	report := o.RefreshNeeded(context.Background(), false)

	assert.Equal(t, 2, report.Succeeded)
	accounts := []string{report.Results[0].Account, report.Results[1].Account}
	assert.ElementsMatch(t, []string{"ops", "treasury"}, accounts)
}

func TestRefreshNeeded_JournalsAttempts(t *testing.T) {
	script := &scripted{fail: map[string]bool{"anchor": true}, panics: map[string]bool{}}
	history := &fakeHistory{}
	o := newOrchestrator(sweepConfig("anchor"), newMemStore(), script, nil, history)

	o.RefreshNeeded(context.Background(), false)

	require.Len(t, history.recorded, 1)
	assert.Equal(t, "anchor", history.recorded[0].Service)
	assert.False(t, history.recorded[0].Success)
	assert.Equal(t, string(clierr.NavigationTimeout), history.recorded[0].Classification)
}

func TestRecord_EscalatesRepeatedFailures(t *testing.T) {
	script := &scripted{fail: map[string]bool{"anchor": true}, panics: map[string]bool{}}
	history := &fakeHistory{failStreak: 4}
	notifier := &recordingNotifier{}
	o := newOrchestrator(sweepConfig("anchor"), newMemStore(), script, notifier, history)

	report := o.RefreshNeeded(context.Background(), false)

	require.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[0].Message, "4 consecutive failures")
	events := notifier.all()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "4 consecutive failures")
}

type fakeHistory struct {
	mu         sync.Mutex
	recorded   []db.RefreshEvent
	failStreak int
}

func (f *fakeHistory) Record(ctx context.Context, event db.RefreshEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, event)
	return nil
}

func (f *fakeHistory) Recent(ctx context.Context, service, account string, limit int) ([]db.RefreshEvent, error) {
	return nil, nil
}

func (f *fakeHistory) ConsecutiveFailures(ctx context.Context, service, account string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failStreak, nil
}
