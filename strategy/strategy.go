package strategy

import (
	"context"
	"time"

	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/store"
)

// BrowserSession is the browser-automation capability a strategy drives.
// The concrete implementation lives in the browser package; strategies only
// depend on this contract so the protocol can be tested without a browser.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	WaitForURL(ctx context.Context, substr string, timeout time.Duration) (string, error)
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	SubmitLogin(ctx context.Context, userSel, passSel, submitSel, username, password string, timeout time.Duration) error
	InjectState(ctx context.Context, state *store.AuthState) error
	ExtractState(ctx context.Context, origins []string) (*store.AuthState, error)
	Screenshot(ctx context.Context, path string) error
	Close()
}

// SessionFactory acquires a browser session. The session is a scoped
// resource: whoever acquires it must release it on every exit path.
type SessionFactory func(ctx context.Context, headless bool) (BrowserSession, error)

// StateStore is the slice of the auth state store a strategy needs.
type StateStore interface {
	Load(service, account string) (*store.AuthState, error)
	Save(service, account string, state *store.AuthState) error
	Backup(service, account string) (*store.BackupHandle, error)
}

// Deps carries the collaborators injected into every strategy.
type Deps struct {
	Store         StateStore
	Sessions      SessionFactory
	ScreenshotDir string
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Result is the outcome of one refresh attempt. Strategy failures are always
// expressed as a Result, never as an error escaping into the orchestrator.
type Result struct {
	Service        string
	Account        string
	Success        bool
	Message        string
	CookiesSaved   bool
	SnapshotSaved  bool
	Classification clierr.Type // empty on success
	RefreshedAt    time.Time   // zero on failure
}

// Strategy is the per-service implementation of the refresh protocol.
type Strategy interface {
	// Service returns the configured service name this strategy refreshes.
	Service() string
	// Refresh performs the full re-authentication protocol for one account
	// and persists the resulting envelope on success.
	Refresh(ctx context.Context, account string) Result
	// Validate proves the session is actually authenticated by probing a
	// service-specific indicator. It must not assume login succeeded just
	// because no error was raised.
	Validate(ctx context.Context, sess BrowserSession) bool
}
