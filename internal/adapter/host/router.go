package host

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/inbound"
)

// Values reported in Route.MatchedBy.
const (
	MatchedByRule    = "rule"
	MatchedByDefault = "default"
)

// RuleRouter resolves agent routes from host.routing_rules. The first rule
// whose account and peer match wins; "*" or an empty field matches anything.
// Rules are read from the host config carried by each query.
type RuleRouter struct {
	fallback config.HostConfig
	logger   *slog.Logger
}

// NewRuleRouter creates a router. fallback is used for queries that carry
// no host config.
func NewRuleRouter(fallback config.HostConfig, logger *slog.Logger) *RuleRouter {
	return &RuleRouter{fallback: fallback, logger: logger}
}

// ResolveAgentRoute implements inbound.RouteResolver.
func (r *RuleRouter) ResolveAgentRoute(_ context.Context, q inbound.RouteQuery) (*inbound.Route, error) {
	hc := r.fallback
	if q.HostConfig != nil {
		hc = q.HostConfig.Host
	}
	if strings.TrimSpace(q.Peer.ID) == "" {
		return nil, fmt.Errorf("route: empty peer id")
	}

	agentID, matchedBy := hc.DefaultAgent, MatchedByDefault
	for _, rule := range hc.RoutingRules {
		if matches(rule.AccountID, q.AccountID) && matches(rule.PeerID, q.Peer.ID) {
			agentID, matchedBy = rule.AgentID, MatchedByRule
			break
		}
	}
	if agentID == "" {
		return nil, fmt.Errorf("route: no agent for account %q", q.AccountID)
	}

	r.logger.Debug("route resolved", "account_id", q.AccountID, "peer_id", q.Peer.ID, "agent_id", agentID, "matched_by", matchedBy)
	return &inbound.Route{
		AgentID:    agentID,
		SessionKey: SessionKey(agentID, q.AccountID, q.Peer),
		MatchedBy:  matchedBy,
	}, nil
}

// SessionKey builds the session lane for a direct conversation.
func SessionKey(agentID, accountID string, peer inbound.Peer) string {
	kind := peer.Kind
	if kind == "" {
		kind = domain.ChatTypeDirect
	}
	return strings.Join([]string{"agent", agentID, domain.ChannelID, accountID, kind, peer.ID}, ":")
}

func matches(pattern, value string) bool {
	return pattern == "" || pattern == "*" || strings.EqualFold(pattern, value)
}
