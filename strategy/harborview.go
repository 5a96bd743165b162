package strategy

import (
	"context"
	"time"

	"github.com/halvar/credkeeper/config"
)

// NewHarborview builds the strategy for Harborview, a multi-account service:
// two independently authenticated profiles live on the same platform. The
// orchestrator iterates the protocol per account; credentials are resolved
// per account and each account's envelope and backups stay fully isolated.
func NewHarborview(service string, cfg config.ServiceConfig, deps Deps) Strategy {
	flow := Flow{
		Service:    service,
		Cfg:        cfg,
		SuccessURL: "/overview",
		Origins:    []string{originOf(cfg.AuthURL)},
		Login: func(ctx context.Context, sess BrowserSession, account string) error {
			username, password, err := config.Credentials(service, account)
			if err != nil {
				return err
			}
			return sess.SubmitLogin(ctx, "input[name=login]", "input[name=passwd]", "#sign-in", username, password, 30*time.Second)
		},
		Validate: func(ctx context.Context, sess BrowserSession) bool {
			return sess.WaitVisible(ctx, ".profile-avatar", 10*time.Second) == nil
		},
	}
	return NewBase(flow, deps)
}
