package inbound

import (
	"context"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
)

// DeliverFunc delivers one reply payload produced by the host.
type DeliverFunc func(ctx context.Context, payload domain.ReplyPayload) error

// DispatchOptions tells the host where replies go.
type DispatchOptions struct {
	Channel   string
	AccountID string
	Deliver   DeliverFunc
	OnError   func(err error)
}

// ReplyOptions controls how the host produces replies.
type ReplyOptions struct {
	// DisableBlockStreaming is always set: the provider has no incremental send.
	DisableBlockStreaming bool
	Embedded              bool
}

// DispatchRequest is one normalized message handed to the host. Route is
// nil when no route was resolved.
type DispatchRequest struct {
	Context    domain.MsgContext
	HostConfig *config.Config
	Route      *Route
	Options    DispatchOptions
	Reply      ReplyOptions
}

// Dispatcher is the host's buffered dispatch boundary. Deliver may be
// called zero or more times before DispatchBuffered returns.
type Dispatcher interface {
	DispatchBuffered(ctx context.Context, req DispatchRequest) error
}

// Peer identifies the remote side of a conversation.
type Peer struct {
	Kind string
	ID   string
}

// RouteQuery asks the host which agent handles a peer.
type RouteQuery struct {
	HostConfig *config.Config
	Channel    string
	AccountID  string
	Peer       Peer
}

// Route is the host's routing answer.
type Route struct {
	AgentID    string
	SessionKey string
	MatchedBy  string
}

// RouteResolver is the host's routing collaborator. A nil route means no
// session lane is stamped.
type RouteResolver interface {
	ResolveAgentRoute(ctx context.Context, q RouteQuery) (*Route, error)
}

// Sender sends one message on the account's session.
type Sender interface {
	Send(ctx context.Context, content any, msgType domain.MessageType) (domain.SendResult, error)
}

// Session is the provider session a monitor polls with.
type Session interface {
	Sender
	Token() string
	Fetch(ctx context.Context, pos int64) domain.FetchResult
}

// CursorStore persists the last processed position per key.
type CursorStore interface {
	Load(ctx context.Context, key string) (int64, error)
	Save(ctx context.Context, key string, pos int64) error
}
