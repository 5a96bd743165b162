package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/store"
	"github.com/rs/zerolog/log"
)

// Options controls how a browser session is created.
type Options struct {
	// Headless hides the browser window. Manual login flows need a visible
	// window, so strategies that wait on a human pass false.
	Headless bool
	// UserAgent overrides the browser's user agent when non-empty.
	UserAgent string
}

// Session is a scoped browser-automation resource. It is exclusively owned
// by the single in-flight refresh that opened it and must be released with
// Close on every exit path; Close is safe to call more than once.
type Session struct {
	ctx       context.Context
	closeOnce sync.Once
	cancels   []context.CancelFunc
}

// Open launches a browser and returns the session wrapping it. It looks for
// a Chrome or Chromium executable on the PATH.
func Open(parent context.Context, opts Options) (*Session, error) {
	execPath, err := findChrome()
	if err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.ExecPath(execPath))
	if !opts.Headless {
		allocOpts = append(allocOpts,
			chromedp.Flag("headless", false),
			chromedp.Flag("hide-scrollbars", false),
			chromedp.Flag("mute-audio", false),
		)
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		log.Debug().Msgf(format, args...)
	}))

	s := &Session{
		ctx:     ctx,
		cancels: []context.CancelFunc{cancelCtx, cancelAlloc},
	}

	// Start the browser now so acquisition failures surface here rather than
	// on the first navigation.
	if err := chromedp.Run(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return s, nil
}

func findChrome() (string, error) {
	for _, name := range []string{"google-chrome", "chromium", "chrome"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no Chrome or Chromium executable found in PATH")
}

// Close releases the browser. Safe to call multiple times; only the first
// call does anything.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

// Navigate loads a URL.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(s.run(ctx), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// WaitForURL polls the current location until it contains substr or the
// timeout elapses. It returns the final URL on success. The caller decides
// whether a timeout is a navigation failure or a manual-intervention one.
func (s *Session) WaitForURL(ctx context.Context, substr string, timeout time.Duration) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(s.run(ctx), timeout)
	defer cancel()

	var finalURL string
	err := chromedp.Run(timeoutCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for {
			var currentURL string
			if err := chromedp.Location(&currentURL).Do(ctx); err != nil {
				return err
			}
			if strings.Contains(currentURL, substr) {
				finalURL = currentURL
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
	}))
	if err != nil {
		return "", fmt.Errorf("waiting for URL containing %q: %w", substr, err)
	}
	return finalURL, nil
}

// WaitVisible waits for an element matching sel to become visible.
func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(s.run(ctx), timeout)
	defer cancel()

	if err := chromedp.Run(timeoutCtx, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("waiting for element %q: %w", sel, err)
	}
	return nil
}

// SubmitLogin fills a username/password form and submits it.
func (s *Session) SubmitLogin(ctx context.Context, userSel, passSel, submitSel, username, password string, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(s.run(ctx), timeout)
	defer cancel()

	err := chromedp.Run(timeoutCtx,
		chromedp.WaitVisible(userSel, chromedp.ByQuery),
		chromedp.SendKeys(userSel, username, chromedp.ByQuery),
		chromedp.SendKeys(passSel, password, chromedp.ByQuery),
		chromedp.Click(submitSel, chromedp.ByQuery),
	)
	if err != nil {
		return clierr.New(clierr.NavigationTimeout, "login form submission failed", err)
	}
	return nil
}

// InjectState seeds the browser with a previously persisted envelope:
// cookies via CDP, then local storage per origin. Used for the silent-reuse
// attempt before falling back to a full login.
func (s *Session) InjectState(ctx context.Context, state *store.AuthState) error {
	if state == nil {
		return nil
	}

	cookies := state.Cookies
	if state.Snapshot != nil && len(state.Snapshot.Cookies) > 0 {
		cookies = state.Snapshot.Cookies
	}
	if len(cookies) > 0 {
		params := toCookieParams(cookies)
		err := chromedp.Run(s.run(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(params).Do(ctx)
		}))
		if err != nil {
			return fmt.Errorf("failed to inject cookies: %w", err)
		}
	}

	if state.Snapshot == nil {
		return nil
	}
	for _, origin := range state.Snapshot.Origins {
		if len(origin.LocalStorage) == 0 {
			continue
		}
		if err := s.Navigate(ctx, origin.Origin); err != nil {
			return err
		}
		entries, err := json.Marshal(origin.LocalStorage)
		if err != nil {
			return fmt.Errorf("failed to encode local storage entries: %w", err)
		}
		js := fmt.Sprintf(`(() => { for (const e of %s) { localStorage.setItem(e.name, e.value); } return true; })()`, entries)
		var ok bool
		if err := chromedp.Run(s.run(ctx), chromedp.Evaluate(js, &ok)); err != nil {
			return fmt.Errorf("failed to seed local storage for %s: %w", origin.Origin, err)
		}
	}
	return nil
}

// ExtractState captures the full cookie list plus the local storage of each
// given origin. Tokens that only live in local storage (bearer/JWT values
// some services never set as cookies) are recovered here.
func (s *Session) ExtractState(ctx context.Context, origins []string) (*store.AuthState, error) {
	var netCookies []*network.Cookie
	err := chromedp.Run(s.run(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		netCookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies from browser: %w", err)
	}

	state := &store.AuthState{
		Cookies:  fromNetworkCookies(netCookies),
		Snapshot: &store.StorageSnapshot{Cookies: fromNetworkCookies(netCookies)},
	}

	const dumpJS = `(() => {
		const out = [];
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			out.push({name: k, value: localStorage.getItem(k)});
		}
		return out;
	})()`

	for _, origin := range origins {
		if err := s.Navigate(ctx, origin); err != nil {
			return nil, err
		}
		var entries []store.KV
		if err := chromedp.Run(s.run(ctx), chromedp.Evaluate(dumpJS, &entries)); err != nil {
			return nil, fmt.Errorf("failed to read local storage for %s: %w", origin, err)
		}
		state.Snapshot.Origins = append(state.Snapshot.Origins, store.OriginState{
			Origin:       origin,
			LocalStorage: entries,
		})
	}

	return state, nil
}

// Screenshot captures the current page as a PNG for failure diagnostics.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	err := chromedp.Run(s.run(ctx), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	log.Debug().Str("path", path).Msg("Diagnostic screenshot captured")
	return nil
}

// run ties the browser's internal context to the caller's cancellation so an
// orchestrator-level abort interrupts in-flight CDP work.
func (s *Session) run(ctx context.Context) context.Context {
	if ctx == nil {
		return s.ctx
	}
	merged, cancel := context.WithCancel(s.ctx)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged
}
