package accounts

import (
	"maps"

	"typex-bridge/internal/infra/config"
)

// Hardcoded fallbacks, used when no tier sets a field.
const (
	DefaultDMPolicy       = "pairing"
	DefaultGroupPolicy    = "open"
	DefaultHistoryLimit   = 10
	DefaultDMHistoryLimit = 20
	DefaultTextChunkLimit = 2000
	DefaultChunkMode      = "length"
	DefaultMediaMaxMB     = 30
)

// Settings is the effective per-account configuration. Every field is
// concrete; presence was decided during resolution.
type Settings struct {
	Enabled        bool
	DMPolicy       string
	GroupPolicy    string
	AllowFrom      []string
	GroupAllowFrom []string
	HistoryLimit   int
	DMHistoryLimit int
	TextChunkLimit int
	ChunkMode      string
	BlockStreaming bool
	Streaming      bool
	MediaMaxMB     int
	ResponsePrefix string
	Groups         map[string]config.GroupConfig
}

// ResolveSettings computes the effective settings for accountID. Each field
// takes the first tier that defines it: account, channel, channels.defaults,
// then the hardcoded fallback. Explicit false and 0 count as defined.
// An empty accountID resolves without an account tier.
func ResolveSettings(channels config.ChannelsConfig, accountID string) Settings {
	ch := channels.TypeX.Settings
	def := channels.Defaults

	var acct config.Settings
	if accountID != "" {
		if a, ok := lookupAccount(channels.TypeX.Accounts, NormalizeID(accountID)); ok {
			acct = a.Settings
		}
	}

	groups := make(map[string]config.GroupConfig, len(ch.Groups)+len(acct.Groups))
	maps.Copy(groups, ch.Groups)
	maps.Copy(groups, acct.Groups)

	return Settings{
		Enabled:        firstDefined(true, acct.Enabled, ch.Enabled, def.Enabled),
		DMPolicy:       firstDefined(DefaultDMPolicy, acct.DMPolicy, ch.DMPolicy, def.DMPolicy),
		GroupPolicy:    firstDefined(DefaultGroupPolicy, acct.GroupPolicy, ch.GroupPolicy, def.GroupPolicy),
		AllowFrom:      firstList(acct.AllowFrom, ch.AllowFrom, def.AllowFrom),
		GroupAllowFrom: firstList(acct.GroupAllowFrom, ch.GroupAllowFrom, def.GroupAllowFrom),
		HistoryLimit:   firstDefined(DefaultHistoryLimit, acct.HistoryLimit, ch.HistoryLimit, def.HistoryLimit),
		DMHistoryLimit: firstDefined(DefaultDMHistoryLimit, acct.DMHistoryLimit, ch.DMHistoryLimit, def.DMHistoryLimit),
		TextChunkLimit: firstDefined(DefaultTextChunkLimit, acct.TextChunkLimit, ch.TextChunkLimit, def.TextChunkLimit),
		ChunkMode:      firstDefined(DefaultChunkMode, acct.ChunkMode, ch.ChunkMode, def.ChunkMode),
		BlockStreaming: firstDefined(true, acct.BlockStreaming, ch.BlockStreaming, def.BlockStreaming),
		Streaming:      firstDefined(true, acct.Streaming, ch.Streaming, def.Streaming),
		MediaMaxMB:     firstDefined(DefaultMediaMaxMB, acct.MediaMaxMB, ch.MediaMaxMB, def.MediaMaxMB),
		ResponsePrefix: firstDefined("", acct.ResponsePrefix, ch.ResponsePrefix, def.ResponsePrefix),
		Groups:         groups,
	}
}

// firstDefined returns the first non-nil tier value, or fallback.
func firstDefined[T any](fallback T, tiers ...*T) T {
	for _, v := range tiers {
		if v != nil {
			return *v
		}
	}
	return fallback
}

// firstList returns a copy of the first non-nil list, or an empty list.
func firstList(tiers ...[]string) []string {
	for _, v := range tiers {
		if v != nil {
			return append([]string{}, v...)
		}
	}
	return []string{}
}
