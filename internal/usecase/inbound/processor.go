package inbound

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/infra/tracer"
)

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRouter sets the routing collaborator. Without one no session lane is stamped.
func WithRouter(r RouteResolver) ProcessorOption {
	return func(p *Processor) { p.router = r }
}

// WithChunker splits reply text before it is sent.
func WithChunker(fn func(text string) []string) ProcessorOption {
	return func(p *Processor) { p.chunk = fn }
}

// WithClock overrides the time source used for entries without a create time.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// Processor normalizes inbound entries and hands them to the host.
type Processor struct {
	dispatcher Dispatcher
	router     RouteResolver
	hostCfg    *config.Config
	chunk      func(string) []string
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor creates a Processor. dispatcher may be nil, in which case
// every Process call fails with ErrConfigurationMissing.
func NewProcessor(dispatcher Dispatcher, hostCfg *config.Config, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		dispatcher: dispatcher,
		hostCfg:    hostCfg,
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ready reports whether a dispatch boundary is available.
func (p *Processor) Ready() bool {
	return p.dispatcher != nil
}

// Process dispatches one entry for accountID and delivers the host's replies
// through sender. Entries without a chat id are logged and dropped.
func (p *Processor) Process(ctx context.Context, sender Sender, entry domain.InboundEntry, accountID string) error {
	const op = "Processor.Process"

	if p.dispatcher == nil {
		p.logger.Error("dispatch boundary unavailable", "account_id", accountID)
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "no dispatcher")
	}
	if !entry.Valid() {
		p.logger.Warn("dropping inbound entry",
			"error", domain.ErrInvalidPayload,
			"message_id", entry.MessageID,
		)
		return nil
	}

	ctx, span := tracer.StartSpan(ctx, tracer.SpanDispatch)
	defer span.End()
	span.SetAttributes(tracer.AccountAttr(accountID), tracer.StringAttr("typex.chat_id", entry.ChatID))

	msg := domain.NewMsgContext(entry, accountID, p.now())
	logger := p.logger.With("chat_id", entry.ChatID, "message_id", entry.MessageID)

	route := p.resolveRoute(ctx, entry.ChatID, accountID, logger)
	if route != nil {
		msg.SessionKey = route.SessionKey
	}

	req := DispatchRequest{
		Context:    msg,
		HostConfig: p.hostCfg,
		Route:      route,
		Options: DispatchOptions{
			Channel:   domain.ChannelID,
			AccountID: accountID,
			Deliver: func(ctx context.Context, payload domain.ReplyPayload) error {
				return p.deliver(ctx, sender, payload)
			},
			OnError: func(err error) {
				logger.Error("reply dispatch failed", "error", err)
			},
		},
		Reply: ReplyOptions{DisableBlockStreaming: true, Embedded: false},
	}

	if err := p.dispatcher.DispatchBuffered(ctx, req); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp(op, err)
	}
	tracer.SetOK(span)
	return nil
}

func (p *Processor) resolveRoute(ctx context.Context, chatID, accountID string, logger *slog.Logger) *Route {
	if p.router == nil {
		return nil
	}
	route, err := p.router.ResolveAgentRoute(ctx, RouteQuery{
		HostConfig: p.hostCfg,
		Channel:    domain.ChannelID,
		AccountID:  accountID,
		Peer:       Peer{Kind: domain.ChatTypeDirect, ID: chatID},
	})
	if err != nil {
		logger.Warn("route resolution failed", "error", err)
		return nil
	}
	return route
}

// deliver sends the reply text first and then each media URL in order.
func (p *Processor) deliver(ctx context.Context, sender Sender, payload domain.ReplyPayload) error {
	if payload.Text != "" {
		chunks := []string{payload.Text}
		if p.chunk != nil {
			chunks = p.chunk(payload.Text)
		}
		for _, c := range chunks {
			if _, err := sender.Send(ctx, c, domain.MessageTypeText); err != nil {
				return err
			}
		}
	}
	for _, u := range payload.MediaList() {
		if strings.TrimSpace(u) == "" {
			continue
		}
		if _, err := sender.Send(ctx, u, domain.MessageTypeText); err != nil {
			return err
		}
	}
	return nil
}
