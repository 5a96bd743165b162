package strategy

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/halvar/credkeeper/config"
	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Flow describes the service-specific pieces of the shared refresh protocol.
// Everything else (backup, session scoping, silent reuse, extraction,
// persistence, diagnostics) is implemented once in Base.
type Flow struct {
	Service string
	Cfg     config.ServiceConfig

	// Login performs automated credential submission. Nil means the login is
	// completed manually by a human in the visible browser window.
	Login func(ctx context.Context, sess BrowserSession, account string) error

	// SuccessURL is a substring marking arrival at a known post-login page.
	SuccessURL string

	// SecondFactorURL marks the second-factor page, consulted only when the
	// service is configured with requires_second_factor.
	SecondFactorURL string

	// Origins are navigated after login to capture their local storage.
	Origins []string

	// Validate probes an authenticated-only indicator.
	Validate func(ctx context.Context, sess BrowserSession) bool

	// PostExtract inspects the captured state before it is persisted. It may
	// return an annotation appended to the result message.
	PostExtract func(state *store.AuthState) (string, error)
}

// Base implements the shared protocol:
//
//  1. Backup the existing auth state before any mutation.
//  2. Acquire the browser session as a scoped resource.
//  3. Pre-load a prior state and validate (silent refresh).
//  4. Otherwise drive the login flow, with independent bounded waits for the
//     primary login and the second factor.
//  5. Validate again after login; never persist on a failed validation.
//  6. Extract the full cookie list and storage snapshot.
//  7. Persist through the store and report success.
//  8. On any failure capture a screenshot, release the session, and return a
//     classified failure result.
type Base struct {
	flow Flow
	deps Deps
}

// NewBase builds a strategy from a flow description.
func NewBase(flow Flow, deps Deps) *Base {
	return &Base{flow: flow, deps: deps}
}

func (b *Base) Service() string { return b.flow.Service }

func (b *Base) Validate(ctx context.Context, sess BrowserSession) bool {
	if b.flow.Validate == nil {
		return false
	}
	return b.flow.Validate(ctx, sess)
}

func (b *Base) Refresh(ctx context.Context, account string) Result {
	logger := log.With().Str("service", b.flow.Service).Str("account", account).Logger()

	if _, err := b.deps.Store.Backup(b.flow.Service, account); err != nil {
		return b.failure(account, clierr.Storage, "pre-refresh backup failed", err)
	}

	prior, err := b.deps.Store.Load(b.flow.Service, account)
	if err != nil {
		return b.failure(account, clierr.Storage, "failed to load existing auth state", err)
	}

	sess, err := b.deps.Sessions(ctx, b.flow.Cfg.Headless)
	if err != nil {
		return b.failure(account, clierr.Unexpected, "failed to acquire browser session", err)
	}
	defer sess.Close()

	authenticated := false
	if prior != nil {
		authenticated = b.trySilentReuse(ctx, sess, prior, logger)
	}

	if !authenticated {
		if err := b.login(ctx, sess, account); err != nil {
			b.screenshot(ctx, sess, account)
			return b.failure(account, clierr.TypeOf(err), err.Error(), err)
		}
		if !b.Validate(ctx, sess) {
			b.screenshot(ctx, sess, account)
			return b.failure(account, clierr.Validation, "post-login validation failed: authenticated indicator not found", nil)
		}
	}

	state, err := sess.ExtractState(ctx, b.flow.Origins)
	if err != nil {
		b.screenshot(ctx, sess, account)
		return b.failure(account, clierr.TypeOf(err), "failed to extract session artifacts", err)
	}
	state.LastRefreshedAt = b.deps.now()

	message := "session refreshed"
	if b.flow.PostExtract != nil {
		note, err := b.flow.PostExtract(state)
		if err != nil {
			b.screenshot(ctx, sess, account)
			return b.failure(account, clierr.TypeOf(err), err.Error(), err)
		}
		if note != "" {
			message += "; " + note
		}
	}

	// A successful login whose artifacts cannot be persisted is not a
	// successful refresh.
	if err := b.deps.Store.Save(b.flow.Service, account, state); err != nil {
		return b.failure(account, clierr.Storage, "login succeeded but artifacts could not be persisted", err)
	}

	logger.Info().Time("refreshed_at", state.LastRefreshedAt).Msg("Session refreshed successfully")
	return Result{
		Service:       b.flow.Service,
		Account:       account,
		Success:       true,
		Message:       message,
		CookiesSaved:  true,
		SnapshotSaved: state.Snapshot != nil,
		RefreshedAt:   state.LastRefreshedAt,
	}
}

// trySilentReuse seeds the session with the prior envelope and checks whether
// it still authenticates, skipping the login flow entirely when it does.
func (b *Base) trySilentReuse(ctx context.Context, sess BrowserSession, prior *store.AuthState, logger zerolog.Logger) bool {
	if err := sess.InjectState(ctx, prior); err != nil {
		logger.Debug().Err(err).Msg("Failed to inject prior state, falling back to login")
		return false
	}
	if err := sess.Navigate(ctx, b.flow.Cfg.AuthURL); err != nil {
		logger.Debug().Err(err).Msg("Navigation with prior state failed, falling back to login")
		return false
	}
	if !b.Validate(ctx, sess) {
		logger.Debug().Msg("Prior session no longer valid, falling back to login")
		return false
	}
	logger.Info().Msg("Prior session still valid, refreshing silently")
	return true
}

func (b *Base) login(ctx context.Context, sess BrowserSession, account string) error {
	cfg := b.flow.Cfg
	if err := sess.Navigate(ctx, cfg.AuthURL); err != nil {
		return clierr.New(clierr.NavigationTimeout, "failed to open login page", err)
	}

	if b.flow.Login != nil {
		if err := b.flow.Login(ctx, sess, account); err != nil {
			return err
		}
	}
	manual := b.flow.Login == nil

	if cfg.RequiresSecondFactor {
		// The second-factor page must appear within the primary login budget;
		// completing the factor gets its own, typically shorter budget so a
		// stuck factor cannot absorb the login's allowance.
		if _, err := sess.WaitForURL(ctx, b.flow.SecondFactorURL, cfg.LoginTimeout()); err != nil {
			return classifyWait(err, manual, "second-factor page never appeared")
		}
		if _, err := sess.WaitForURL(ctx, b.flow.SuccessURL, cfg.SecondFactorTimeout()); err != nil {
			return clierr.New(clierr.ManualTimeout, "second factor not completed in time", err)
		}
		return nil
	}

	if _, err := sess.WaitForURL(ctx, b.flow.SuccessURL, cfg.LoginTimeout()); err != nil {
		return classifyWait(err, manual, "login did not complete in time")
	}
	return nil
}

// classifyWait distinguishes a human not finishing a manual login from an
// automated navigation that never arrived.
func classifyWait(err error, manual bool, msg string) error {
	if manual {
		return clierr.New(clierr.ManualTimeout, msg, err)
	}
	return clierr.New(clierr.NavigationTimeout, msg, err)
}

func (b *Base) screenshot(ctx context.Context, sess BrowserSession, account string) {
	if b.deps.ScreenshotDir == "" {
		return
	}
	name := fmt.Sprintf("%s-%s-%s.png", b.flow.Service, accountLabel(account), b.deps.now().Format("20060102-150405"))
	path := filepath.Join(b.deps.ScreenshotDir, name)
	if err := sess.Screenshot(ctx, path); err != nil {
		log.Warn().Err(err).Str("service", b.flow.Service).Msg("Failed to capture diagnostic screenshot")
	}
}

func (b *Base) failure(account string, t clierr.Type, msg string, err error) Result {
	if err != nil {
		log.Error().Err(err).Str("service", b.flow.Service).Str("account", account).Str("classification", string(t)).Msg(msg)
	} else {
		log.Error().Str("service", b.flow.Service).Str("account", account).Str("classification", string(t)).Msg(msg)
	}
	return Result{
		Service:        b.flow.Service,
		Account:        account,
		Message:        msg,
		Classification: t,
	}
}

func accountLabel(account string) string {
	if account == "" {
		return "default"
	}
	return account
}

// originOf derives the scheme://host origin from a URL, falling back to the
// input when it does not parse.
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
