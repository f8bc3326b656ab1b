package typex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/infra/tracer"
)

// Provider API paths.
const (
	pathLoginStart = "/user/qrcode?login_type=open"
	pathLoginCheck = "/open/qrcode/check_auth"
	pathSend       = "/open/claw/send_message"
	pathFetch      = "/open/claw/message"
)

// CodeLoginPending is the check_auth code for "not scanned yet".
const CodeLoginPending = 10001

const maxResponseBytes = 2 * 1024 * 1024

var sessionCookieRe = regexp.MustCompile(`(sessionid=[^;]+)`)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken seeds the session token, e.g. one saved by onboarding.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithSendRate paces outbound sends. A non-positive rate disables pacing.
func WithSendRate(perSec float64, burst int) Option {
	return func(c *Client) {
		if perSec <= 0 {
			c.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
}

// WithBreaker configures the circuit breaker guarding sends.
func WithBreaker(cfg config.BreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// Client talks to the provider API for one account. It holds the session
// token and the user id learned at login.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger

	limiter    *rate.Limiter
	breakerCfg config.BreakerConfig
	breaker    *gobreaker.CircuitBreaker[domain.SendResult]

	mu     sync.RWMutex
	token  string
	userID string

	now func() time.Time
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.breaker = newSendBreaker(c.baseURL, c.breakerCfg, logger)
	return c
}

// Token returns the current session token ("" when unauthenticated).
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// UserID returns the provider user id learned by CheckLogin.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// BreakerState reports the send circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// envelope is the provider's response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

// StartLogin requests a new QR login handshake.
func (c *Client) StartLogin(ctx context.Context) (domain.Handshake, error) {
	const op = "Client.StartLogin"

	resp, env, err := c.post(ctx, pathLoginStart, struct{}{}, false)
	if err != nil {
		return domain.Handshake{}, domain.NewDomainError(op, domain.ErrProviderUnavailable, err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Handshake{}, domain.NewDomainError(op, domain.ErrProviderUnavailable, "status "+resp.Status)
	}
	if env.Code != 0 {
		return domain.Handshake{}, domain.NewDomainError(op, domain.ErrProviderUnavailable,
			fmt.Sprintf("code %d: %s", env.Code, env.text()))
	}

	var payload string
	if err := json.Unmarshal(env.Data, &payload); err != nil || strings.TrimSpace(payload) == "" {
		return domain.Handshake{}, domain.NewDomainError(op, domain.ErrProviderUnavailable, "empty handshake data")
	}

	id := handshakeID(payload)
	if id == "" {
		return domain.Handshake{}, domain.NewDomainError(op, domain.ErrProviderUnavailable, "handshake data has no qr_code_id")
	}
	return domain.Handshake{Payload: payload, ID: id}, nil
}

// handshakeID extracts qr_code_id from a query string or URL.
func handshakeID(payload string) string {
	q := payload
	if i := strings.IndexByte(q, '?'); i >= 0 {
		q = q[i+1:]
	}
	values, err := url.ParseQuery(q)
	if err != nil {
		return ""
	}
	return values.Get("qr_code_id")
}

// CheckLogin polls a handshake. It returns true once the user has scanned
// and confirmed; any non-zero provider code is reported as false.
func (c *Client) CheckLogin(ctx context.Context, handshakeID string) (bool, error) {
	const op = "Client.CheckLogin"

	resp, env, err := c.post(ctx, pathLoginCheck, map[string]string{"qr_code_id": handshakeID}, false)
	if err != nil {
		return false, domain.NewDomainError(op, domain.ErrProviderUnavailable, err.Error())
	}

	for _, h := range resp.Header.Values("Set-Cookie") {
		if m := sessionCookieRe.FindStringSubmatch(h); m != nil {
			c.mu.Lock()
			c.token = m[1]
			c.mu.Unlock()
			break
		}
	}

	if env.Code != 0 {
		if env.Code != CodeLoginPending {
			c.logger.Debug("login check not successful", "code", env.Code, "message", env.text())
		}
		return false, nil
	}

	var data struct {
		UserID flexString `json:"user_id"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return false, domain.NewDomainError(op, domain.ErrProviderUnavailable, "decode user: "+err.Error())
		}
	}

	c.mu.Lock()
	c.userID = string(data.UserID)
	c.mu.Unlock()
	return true, nil
}

// Send posts one message. content is sent as-is when it is a string and
// JSON-encoded otherwise.
func (c *Client) Send(ctx context.Context, content any, msgType domain.MessageType) (domain.SendResult, error) {
	const op = "Client.Send"

	token := c.Token()
	if token == "" {
		return domain.SendResult{}, domain.NewDomainError(op, domain.ErrUnauthenticated, "")
	}

	ctx, span := tracer.StartSpan(ctx, tracer.SpanSend)
	defer span.End()

	text := stringify(content)
	body := map[string]any{
		"content":  map[string]string{"text": text},
		"msg_type": msgType,
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			tracer.RecordError(span, err)
			return domain.SendResult{}, domain.WrapOp(op, err)
		}
	}

	res, err := c.breaker.Execute(func() (domain.SendResult, error) {
		return c.send(ctx, body)
	})
	if err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.SendResult{}, domain.NewDomainError(op, domain.ErrProviderUnavailable, "circuit open")
		}
		return domain.SendResult{}, domain.WrapOp(op, err)
	}

	tracer.SetOK(span)
	c.logger.Debug("message sent", "message_id", res.MessageID, "length", len(text))
	return res, nil
}

func (c *Client) send(ctx context.Context, body any) (domain.SendResult, error) {
	_, env, err := c.post(ctx, pathSend, body, true)
	if err != nil {
		return domain.SendResult{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	if env.Code != 0 {
		return domain.SendResult{}, &domain.SendRejectedError{Code: env.Code, Message: env.text()}
	}

	var data struct {
		MessageID flexString `json:"message_id"`
	}
	if len(env.Data) > 0 {
		_ = json.Unmarshal(env.Data, &data)
	}
	id := string(data.MessageID)
	if id == "" {
		id = c.fallbackMessageID()
	}
	return domain.SendResult{MessageID: id}, nil
}

func (c *Client) fallbackMessageID() string {
	t := c.now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return "msg_" + ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// stringify renders send content as text. Values that cannot be
// JSON-encoded fall back to fmt formatting.
func stringify(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case nil:
		return ""
	}
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprint(content)
	}
	return string(b)
}

// post sends a JSON POST and decodes the envelope. A decode failure is
// returned as an error.
func (c *Client) post(ctx context.Context, path string, body any, auth bool) (*http.Response, envelope, error) {
	var env envelope

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, env, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, env, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if auth {
		req.Header.Set("Cookie", c.Token())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, env, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp, env, fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp, env, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	return resp, env, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
