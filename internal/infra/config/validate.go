package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateRuntime(cfg, ve)
	validateAPI(cfg, ve)
	validateHost(cfg, ve)
	validateSettings("channels.defaults", cfg.Channels.Defaults, ve)
	validateTypeX(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var (
	validLogLevels   = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats  = map[string]bool{"text": true, "json": true}
	validExporters   = map[string]bool{"noop": true, "stdout": true}
	validDMPolicies  = map[string]bool{"pairing": true, "allowlist": true, "open": true, "disabled": true}
	validGroupPolicy = map[string]bool{"open": true, "allowlist": true, "disabled": true}
	validChunkModes  = map[string]bool{"length": true, "newline": true}

	validCursorBackends = map[string]bool{CursorBackendFile: true, CursorBackendSQLite: true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (valid: debug, info, warn, error)", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (valid: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (valid: noop, stdout)", cfg.Tracer.Exporter)
	}
}

func validateRuntime(cfg *Config, ve *ValidationError) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		ve.Add("data_dir must not be empty")
	}
	if cfg.Poll.Interval <= 0 {
		ve.Add("poll.interval must be > 0")
	}
	if !validCursorBackends[cfg.Cursor.Backend] {
		ve.Add("cursor.backend %q is invalid (valid: file, sqlite)", cfg.Cursor.Backend)
	}
	if cfg.Onboarding.MaxAttempts <= 0 {
		ve.Add("onboarding.max_attempts must be > 0")
	}
	if cfg.Onboarding.Interval <= 0 {
		ve.Add("onboarding.interval must be > 0")
	}
}

func validateAPI(cfg *Config, ve *ValidationError) {
	if !validHTTPURL(cfg.API.BaseURL) {
		ve.Add("api.base_url %q must be an http(s) URL", cfg.API.BaseURL)
	}
	if cfg.API.Timeout <= 0 {
		ve.Add("api.timeout must be > 0")
	}
	if cfg.API.SendRatePerSec < 0 {
		ve.Add("api.send_rate_per_sec must be >= 0")
	}
	if cfg.API.SendRatePerSec > 0 && cfg.API.SendBurst <= 0 {
		ve.Add("api.send_burst must be > 0 when send_rate_per_sec is set")
	}
}

func validateHost(cfg *Config, ve *ValidationError) {
	if cfg.Host.DispatchURL != "" && !validHTTPURL(cfg.Host.DispatchURL) {
		ve.Add("host.dispatch_url %q must be an http(s) URL", cfg.Host.DispatchURL)
	}
	if strings.TrimSpace(cfg.Host.DefaultAgent) == "" {
		ve.Add("host.default_agent must not be empty")
	}
	for i, r := range cfg.Host.RoutingRules {
		if strings.TrimSpace(r.AgentID) == "" {
			ve.Add("host.routing_rules[%d].agent_id must not be empty", i)
		}
	}
}

func validateTypeX(cfg *Config, ve *ValidationError) {
	ch := cfg.Channels.TypeX
	validateAccount("channels.typex", ch.AccountConfig, ve)
	for id, acct := range ch.Accounts {
		if strings.TrimSpace(id) == "" {
			ve.Add("channels.typex.accounts has an empty account id")
			continue
		}
		validateAccount("channels.typex.accounts."+id, acct, ve)
	}
}

func validateAccount(prefix string, acct AccountConfig, ve *ValidationError) {
	if acct.Domain != "" && strings.Contains(acct.Domain, "://") && !validHTTPURL(acct.Domain) {
		ve.Add("%s.domain %q must be a host name or http(s) URL", prefix, acct.Domain)
	}
	validateSettings(prefix, acct.Settings, ve)
}

func validateSettings(prefix string, s Settings, ve *ValidationError) {
	if s.DMPolicy != nil && !validDMPolicies[*s.DMPolicy] {
		ve.Add("%s.dm_policy %q is invalid (valid: pairing, allowlist, open, disabled)", prefix, *s.DMPolicy)
	}
	if s.GroupPolicy != nil && !validGroupPolicy[*s.GroupPolicy] {
		ve.Add("%s.group_policy %q is invalid (valid: open, allowlist, disabled)", prefix, *s.GroupPolicy)
	}
	if s.ChunkMode != nil && !validChunkModes[*s.ChunkMode] {
		ve.Add("%s.chunk_mode %q is invalid (valid: length, newline)", prefix, *s.ChunkMode)
	}
	nonNegative := map[string]*int{
		"history_limit":    s.HistoryLimit,
		"dm_history_limit": s.DMHistoryLimit,
		"text_chunk_limit": s.TextChunkLimit,
		"media_max_mb":     s.MediaMaxMB,
	}
	for name, v := range nonNegative {
		if v != nil && *v < 0 {
			ve.Add("%s.%s must be >= 0", prefix, name)
		}
	}
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
