package strategy

import (
	"context"
	"time"

	"github.com/halvar/credkeeper/config"
)

// NewNorthline builds the strategy for the Northline portal. Northline
// supports fully automated login: credentials are supplied through the
// environment and submitted directly to the login form.
func NewNorthline(service string, cfg config.ServiceConfig, deps Deps) Strategy {
	flow := Flow{
		Service:    service,
		Cfg:        cfg,
		SuccessURL: "/dashboard",
		Origins:    []string{originOf(cfg.AuthURL)},
		Login: func(ctx context.Context, sess BrowserSession, account string) error {
			username, password, err := config.Credentials(service, account)
			if err != nil {
				return err
			}
			return sess.SubmitLogin(ctx, "#email", "#password", "button[type=submit]", username, password, 30*time.Second)
		},
		Validate: func(ctx context.Context, sess BrowserSession) bool {
			// The account menu only renders for an authenticated user.
			return sess.WaitVisible(ctx, "#account-menu", 10*time.Second) == nil
		},
	}
	return NewBase(flow, deps)
}
