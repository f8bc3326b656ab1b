package typex

import (
	"context"
	"encoding/json"
	"fmt"

	"typex-bridge/internal/domain"
)

// Fetch returns the messages after pos. It never fails: every failure mode
// yields an empty batch and a degraded status.
func (c *Client) Fetch(ctx context.Context, pos int64) domain.FetchResult {
	if c.Token() == "" {
		return domain.FetchResult{Entries: []domain.InboundEntry{}, Status: domain.FetchUnauthenticated}
	}

	resp, env, err := c.post(ctx, pathFetch, map[string]int64{"pos": pos}, true)
	if err != nil {
		status := domain.FetchTransport
		if resp != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			status = domain.FetchMalformed
		}
		return degraded(status, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return degraded(domain.FetchTransport, fmt.Errorf("status %s", resp.Status))
	}
	if env.Code != 0 {
		return degraded(domain.FetchRejected, fmt.Errorf("code %d: %s", env.Code, env.text()))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(env.Data, &items); err != nil || items == nil {
		return degraded(domain.FetchMalformed, fmt.Errorf("data is not an array"))
	}

	res := domain.FetchResult{Entries: make([]domain.InboundEntry, 0, len(items)), Status: domain.FetchOK}
	for _, raw := range items {
		var e domain.InboundEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			res.Skipped++
			c.logger.Debug("skipping undecodable entry", "error", err)
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	if len(res.Entries) == 0 {
		res.Status = domain.FetchEmpty
	}
	return res
}

// FetchMessages returns Fetch(ctx, pos).Entries.
func (c *Client) FetchMessages(ctx context.Context, pos int64) []domain.InboundEntry {
	return c.Fetch(ctx, pos).Entries
}

func degraded(status domain.FetchStatus, err error) domain.FetchResult {
	return domain.FetchResult{Entries: []domain.InboundEntry{}, Status: status, Err: err}
}
