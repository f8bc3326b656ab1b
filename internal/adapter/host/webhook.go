package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/usecase/inbound"
)

const maxReplyBytes = 2 * 1024 * 1024

// WebhookDispatcher forwards each inbound message to an HTTP endpoint and
// delivers the replies it returns.
//
// Request body:
//
//	{"channel": "typex", "account_id": "...", "context": {...},
//	 "route": {"agent_id": "...", "session_key": "...", "matched_by": "..."},
//	 "reply": {"disable_block_streaming": true, "embedded": false}}
//
// route is omitted when no route was resolved.
//
// Response body:
//
//	{"replies": [{"text": "...", "media_url": "...", "media_urls": ["..."]}]}
type WebhookDispatcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookDispatcher creates a dispatcher posting to url.
func NewWebhookDispatcher(url string, timeout time.Duration, logger *slog.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &WebhookDispatcher{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type webhookRequest struct {
	Channel   string            `json:"channel"`
	AccountID string            `json:"account_id"`
	Context   domain.MsgContext `json:"context"`
	Route     *webhookRoute     `json:"route,omitempty"`
	Reply     webhookReplyOpts  `json:"reply"`
}

type webhookRoute struct {
	AgentID    string `json:"agent_id"`
	SessionKey string `json:"session_key,omitempty"`
	MatchedBy  string `json:"matched_by,omitempty"`
}

type webhookReplyOpts struct {
	DisableBlockStreaming bool `json:"disable_block_streaming"`
	Embedded              bool `json:"embedded"`
}

type webhookResponse struct {
	Replies []domain.ReplyPayload `json:"replies"`
}

// DispatchBuffered implements inbound.Dispatcher. Replies are delivered in
// order; a failed delivery is reported through OnError and does not stop the
// remaining replies.
func (d *WebhookDispatcher) DispatchBuffered(ctx context.Context, req inbound.DispatchRequest) error {
	const op = "WebhookDispatcher.DispatchBuffered"

	var route *webhookRoute
	if req.Route != nil {
		route = &webhookRoute{
			AgentID:    req.Route.AgentID,
			SessionKey: req.Route.SessionKey,
			MatchedBy:  req.Route.MatchedBy,
		}
	}

	body, err := json.Marshal(webhookRequest{
		Channel:   req.Options.Channel,
		AccountID: req.Options.AccountID,
		Context:   req.Context,
		Route:     route,
		Reply: webhookReplyOpts{
			DisableBlockStreaming: req.Reply.DisableBlockStreaming,
			Embedded:              req.Reply.Embedded,
		},
	})
	if err != nil {
		return domain.WrapOp(op, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return domain.WrapOp(op, fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return domain.WrapOp(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return domain.WrapOp(op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.WrapOp(op, fmt.Errorf("dispatch status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}

	var out webhookResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return domain.WrapOp(op, fmt.Errorf("decode response: %w", err))
		}
	}

	d.logger.Debug("dispatch complete", "message_id", req.Context.MessageSid, "replies", len(out.Replies))
	for _, reply := range out.Replies {
		if req.Options.Deliver == nil {
			break
		}
		if err := req.Options.Deliver(ctx, reply); err != nil {
			if req.Options.OnError != nil {
				req.Options.OnError(err)
			}
		}
	}
	return nil
}
