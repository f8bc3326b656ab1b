package inbound

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"typex-bridge/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pos(n int64) *int64 { return &n }

func entry(id, chat string, p int64) domain.InboundEntry {
	return domain.InboundEntry{
		MessageID: id,
		ChatID:    chat,
		SenderID:  "u-" + chat,
		Content:   domain.EntryContent{Text: "hello " + id},
		Position:  pos(p),
	}
}

type sentMessage struct {
	Content string
	Type    domain.MessageType
}

// fakeSession serves scripted fetch results, one per call. Once the script
// runs out it returns empty batches.
type fakeSession struct {
	mu      sync.Mutex
	token   string
	script  []domain.FetchResult
	fetches []int64
	sent    []sentMessage
	sendErr error
	// onFetch runs after every fetch with the 1-based call count.
	onFetch func(n int)
}

func (s *fakeSession) Token() string { return s.token }

func (s *fakeSession) Fetch(_ context.Context, p int64) domain.FetchResult {
	s.mu.Lock()
	s.fetches = append(s.fetches, p)
	n := len(s.fetches)
	res := domain.FetchResult{Entries: []domain.InboundEntry{}, Status: domain.FetchEmpty}
	if n <= len(s.script) {
		res = s.script[n-1]
	}
	hook := s.onFetch
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return res
}

func (s *fakeSession) Send(_ context.Context, content any, msgType domain.MessageType) (domain.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return domain.SendResult{}, s.sendErr
	}
	s.sent = append(s.sent, sentMessage{Content: content.(string), Type: msgType})
	return domain.SendResult{MessageID: "m"}, nil
}

func (s *fakeSession) fetchPositions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.fetches...)
}

// fakeDispatcher records requests and replies with the configured payloads.
type fakeDispatcher struct {
	mu       sync.Mutex
	requests []DispatchRequest
	replies  []domain.ReplyPayload
	// fail returns an error for the given message id.
	fail  map[string]error
	panic string
}

func (d *fakeDispatcher) DispatchBuffered(ctx context.Context, req DispatchRequest) error {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	if d.panic != "" && req.Context.MessageSid == d.panic {
		panic("dispatcher exploded")
	}
	if err := d.fail[req.Context.MessageSid]; err != nil {
		return err
	}
	for _, r := range d.replies {
		if err := req.Options.Deliver(ctx, r); err != nil {
			req.Options.OnError(err)
		}
	}
	return nil
}

func (d *fakeDispatcher) dispatchedIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.requests))
	for _, r := range d.requests {
		ids = append(ids, r.Context.MessageSid)
	}
	return ids
}

type fakeRouter struct {
	route *Route
	err   error
	got   []RouteQuery
}

func (r *fakeRouter) ResolveAgentRoute(_ context.Context, q RouteQuery) (*Route, error) {
	r.got = append(r.got, q)
	return r.route, r.err
}

// memCursor is an in-memory CursorStore.
type memCursor struct {
	mu      sync.Mutex
	values  map[string]int64
	saves   []int64
	loadErr error
	saveErr error
}

func newMemCursor() *memCursor { return &memCursor{values: map[string]int64{}} }

func (c *memCursor) Load(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return 0, c.loadErr
	}
	return c.values[key], nil
}

func (c *memCursor) Save(_ context.Context, key string, p int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.values[key] = p
	c.saves = append(c.saves, p)
	return nil
}

func (c *memCursor) get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *memCursor) saved() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.saves...)
}

var errDispatch = errors.New("host failed")
