package strategy

import (
	"context"
	"time"

	"github.com/halvar/credkeeper/config"
)

// NewCrestfund builds the strategy for the Crestfund portal. Crestfund's
// login page uses a CAPTCHA, so the login itself is completed by a human in
// the visible browser window; the strategy waits for arrival at the
// portfolio page within the configured budget.
func NewCrestfund(service string, cfg config.ServiceConfig, deps Deps) Strategy {
	flow := Flow{
		Service:    service,
		Cfg:        cfg,
		SuccessURL: "/portfolio",
		Origins:    []string{originOf(cfg.AuthURL)},
		Validate: func(ctx context.Context, sess BrowserSession) bool {
			return sess.WaitVisible(ctx, "nav .user-badge", 10*time.Second) == nil
		},
	}
	return NewBase(flow, deps)
}
