package strategy

import (
	"context"
	"time"

	"github.com/halvar/credkeeper/config"
)

// NewMeridian builds the strategy for Meridian. Meridian always challenges
// with a one-time code after the password step, so the flow declares the
// second-factor page; the human completes both steps in the visible window,
// each under its own timeout.
func NewMeridian(service string, cfg config.ServiceConfig, deps Deps) Strategy {
	flow := Flow{
		Service:         service,
		Cfg:             cfg,
		SuccessURL:      "/home",
		SecondFactorURL: "/mfa/verify",
		Origins:         []string{originOf(cfg.AuthURL)},
		Validate: func(ctx context.Context, sess BrowserSession) bool {
			return sess.WaitVisible(ctx, "[data-testid=workspace-switcher]", 10*time.Second) == nil
		},
	}
	return NewBase(flow, deps)
}
