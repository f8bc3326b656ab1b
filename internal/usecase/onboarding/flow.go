package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/infra/tracer"
	"typex-bridge/internal/usecase/accounts"
)

// Defaults for the handshake poll: about two minutes in total.
const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 2 * time.Second
)

// ConfirmationMessage is sent to the newly linked account.
const ConfirmationMessage = "typex-bridge linked"

// LoginClient is the part of the provider session used during login.
type LoginClient interface {
	StartLogin(ctx context.Context) (domain.Handshake, error)
	CheckLogin(ctx context.Context, handshakeID string) (bool, error)
	Token() string
	UserID() string
	Send(ctx context.Context, content any, msgType domain.MessageType) (domain.SendResult, error)
}

// QRRenderer shows the handshake payload as a scannable code.
type QRRenderer interface {
	Render(payload string) error
}

// Prompter is the user-facing surface of the flow.
type Prompter interface {
	Note(message, title string)
	// Progress is called once per unsuccessful poll.
	Progress()
}

// Result describes a completed login.
type Result struct {
	AccountID string
	UserID    string
}

// Option configures a Flow.
type Option func(*Flow)

// WithMaxAttempts sets how many times the handshake is polled.
func WithMaxAttempts(n int) Option {
	return func(f *Flow) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithInterval sets the delay before each poll.
func WithInterval(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.interval = d
		}
	}
}

// Flow links a provider account by QR login.
type Flow struct {
	client      LoginClient
	renderer    QRRenderer
	prompter    Prompter
	logger      *slog.Logger
	maxAttempts int
	interval    time.Duration
}

// NewFlow creates a Flow.
func NewFlow(client LoginClient, renderer QRRenderer, prompter Prompter, logger *slog.Logger, opts ...Option) *Flow {
	f := &Flow{
		client:      client,
		renderer:    renderer,
		prompter:    prompter,
		logger:      logger,
		maxAttempts: DefaultMaxAttempts,
		interval:    DefaultInterval,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Run performs the login and, on success, records the account in cfg under
// channels.typex.accounts and makes it the default account. cfg is not
// touched on failure. Failures are also reported through the prompter.
func (f *Flow) Run(ctx context.Context, cfg *config.Config) (Result, error) {
	const op = "Flow.Run"

	ctx, span := tracer.StartSpan(ctx, tracer.SpanLogin)
	defer span.End()

	f.prompter.Note("Initializing TypeX ...\nPlease scan the QR code shortly.", "TypeX Setup")

	hs, err := f.client.StartLogin(ctx)
	if err != nil {
		return f.fail(span, domain.WrapOp(op, err))
	}
	if err := f.renderer.Render(hs.Payload); err != nil {
		return f.fail(span, domain.WrapOp(op, fmt.Errorf("render qr code: %w", err)))
	}
	f.prompter.Note("Waiting for scan...", "Status")

	linked, err := f.poll(ctx, hs.ID)
	if err != nil {
		return f.fail(span, domain.WrapOp(op, err))
	}
	if !linked {
		return f.fail(span, domain.NewDomainError(op, domain.ErrLoginTimeout, "please try again"))
	}

	userID := strings.TrimSpace(f.client.UserID())
	key := userID
	if key == "" {
		key = domain.DefaultAccountID
	}
	saveAccount(cfg, key, f.client.Token())

	f.logger.Info("account linked", "account_id", accounts.NormalizeID(key), "user_id", userID)
	f.prompter.Note("Success! TypeX linked.", "Done")

	if _, err := f.client.Send(ctx, ConfirmationMessage, domain.MessageTypeText); err != nil {
		f.logger.Warn("confirmation message not sent", "error", err)
	}

	tracer.SetOK(span)
	return Result{AccountID: accounts.NormalizeID(key), UserID: userID}, nil
}

// poll checks the handshake up to maxAttempts times, waiting interval
// before each check. A failed check counts as an attempt.
func (f *Flow) poll(ctx context.Context, handshakeID string) (bool, error) {
	timer := time.NewTimer(f.interval)
	defer timer.Stop()

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		timer.Reset(f.interval)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}

		ok, err := f.client.CheckLogin(ctx, handshakeID)
		if err != nil {
			f.logger.Debug("login check failed", "attempt", attempt, "error", err)
		}
		if ok && f.client.Token() != "" {
			return true, nil
		}
		f.prompter.Progress()
	}
	return false, nil
}

func (f *Flow) fail(span trace.Span, err error) (Result, error) {
	tracer.RecordError(span, err)
	f.logger.Error("login failed", "error", err)
	f.prompter.Note(fmt.Sprintf("Setup Failed: %v", err), "Error")
	return Result{}, err
}

// saveAccount stores token for key, keeping any other settings already
// configured for that account.
func saveAccount(cfg *config.Config, key, token string) {
	ch := &cfg.Channels.TypeX
	if ch.Accounts == nil {
		ch.Accounts = make(map[string]config.AccountConfig)
	}
	acct := ch.Accounts[key]
	acct.Token = token
	ch.Accounts[key] = acct
	ch.DefaultAccount = key
}
