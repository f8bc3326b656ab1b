package main

import (
	"log/slog"
	"net/http"

	"typex-bridge/internal/adapter/host"
	"typex-bridge/internal/adapter/typex"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/accounts"
	"typex-bridge/internal/usecase/inbound"
)

// newClient builds the provider session for one account.
func newClient(cfg *config.Config, acct accounts.ResolvedAccount, log *slog.Logger) *typex.Client {
	return typex.NewClient(acct.BaseURL(cfg.API.BaseURL), log,
		typex.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		typex.WithToken(acct.Token),
		typex.WithSendRate(cfg.API.SendRatePerSec, cfg.API.SendBurst),
		typex.WithBreaker(cfg.API.Breaker),
	)
}

// newLoginClient builds a client with no session, for the QR handshake.
func newLoginClient(cfg *config.Config, acct accounts.ResolvedAccount, log *slog.Logger) *typex.Client {
	return typex.NewClient(acct.BaseURL(cfg.API.BaseURL), log,
		typex.WithHTTPClient(&http.Client{Timeout: cfg.API.Timeout}),
		typex.WithBreaker(cfg.API.Breaker),
	)
}

// newDispatcher returns nil when no dispatch endpoint is configured.
func newDispatcher(cfg *config.Config, log *slog.Logger) inbound.Dispatcher {
	if cfg.Host.DispatchURL == "" {
		return nil
	}
	return host.NewWebhookDispatcher(cfg.Host.DispatchURL, cfg.Host.Timeout, log)
}
