package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/halvar/credkeeper/config"
	"github.com/halvar/credkeeper/pkg/clierr"
	"github.com/halvar/credkeeper/store"
)

// atlaspayTokenKey is the local storage entry holding Atlaspay's bearer
// token. Atlaspay never sets the token as a cookie.
const atlaspayTokenKey = "ap_access_token"

// NewAtlaspay builds the strategy for Atlaspay. The login is manual, and the
// session's real lifetime is governed by a JWT that lives exclusively in
// local storage: the JWT expires much sooner than the cookies the browser
// reports. The configured expiration window stays authoritative, but the
// token's exp claim is cross-checked so the envelope is rejected when the
// token would die before the window says to worry.
func NewAtlaspay(service string, cfg config.ServiceConfig, deps Deps) Strategy {
	flow := Flow{
		Service:    service,
		Cfg:        cfg,
		SuccessURL: "/payments",
		Origins:    []string{originOf(cfg.AuthURL)},
		Validate: func(ctx context.Context, sess BrowserSession) bool {
			return sess.WaitVisible(ctx, "#merchant-switcher", 10*time.Second) == nil
		},
		PostExtract: func(state *store.AuthState) (string, error) {
			return checkAtlaspayToken(state, cfg, deps.now())
		},
	}
	return NewBase(flow, deps)
}

// checkAtlaspayToken verifies the captured envelope actually contains the
// bearer token and compares its exp claim against the configured window.
// The signature is not verified; only the lifetime matters here.
func checkAtlaspayToken(state *store.AuthState, cfg config.ServiceConfig, now time.Time) (string, error) {
	raw := state.Snapshot.LocalStorageValue(atlaspayTokenKey)
	if raw == "" {
		return "", clierr.New(clierr.Validation,
			fmt.Sprintf("bearer token %q not found in local storage; login may have silently failed", atlaspayTokenKey), nil)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", clierr.New(clierr.Validation, "bearer token is not a parseable JWT", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", clierr.New(clierr.Validation, "bearer token carries no exp claim", err)
	}
	if !exp.After(now) {
		return "", clierr.New(clierr.Validation, "bearer token is already expired", nil)
	}

	tokenDays := exp.Sub(now).Hours() / 24
	if tokenDays < float64(cfg.ExpirationDays) {
		// The token dies before the configured window elapses. The window
		// stays authoritative for status computation, but the shortfall is
		// worth surfacing so the configuration can be tightened.
		return fmt.Sprintf("token exp claim allows only %.1f days, less than the configured %d-day window", tokenDays, cfg.ExpirationDays), nil
	}
	return fmt.Sprintf("token valid for %.1f days", tokenDays), nil
}
