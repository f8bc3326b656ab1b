package accounts

import (
	"os"
	"sort"
	"strings"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
)

// Fallback credentials for the default account only.
const (
	EnvAppID     = "TYPEX_APP_ID"
	EnvAppSecret = "TYPEX_APP_SECRET"
)

const maxIDLength = 64

// ResolvedAccount is one account's identity and merged configuration.
// It is recomputed on every call and never cached.
type ResolvedAccount struct {
	AccountID  string
	Name       string
	Enabled    bool
	Credential domain.Credential
	Token      string
	Email      string
	// Config is the channel block overlaid with the account block, with the
	// resolved AppID/AppSecret written back.
	Config config.AccountConfig
}

// Configured reports whether the account can talk to the provider: either
// a session token is held or an app credential resolved.
func (a ResolvedAccount) Configured() bool {
	return a.Token != "" || a.Credential.Configured()
}

// CursorKey names the account's poll cursor: the email when known, else the id.
func (a ResolvedAccount) CursorKey() string {
	if a.Email != "" {
		return a.Email
	}
	return a.AccountID
}

// BaseURL returns the API base URL for the account. The account's domain wins
// over fallback; a bare host gets an https scheme.
func (a ResolvedAccount) BaseURL(fallback string) string {
	d := strings.TrimSpace(a.Config.Domain)
	if d == "" {
		return strings.TrimRight(fallback, "/")
	}
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	return strings.TrimRight(d, "/")
}

// NormalizeID canonicalizes an account id: lowercase, runs of characters
// outside [a-z0-9_-] collapse to "-", no leading or trailing dashes, at most
// 64 characters. Empty input yields domain.DefaultAccountID.
func NormalizeID(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return domain.DefaultAccountID
	}

	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}

	out := strings.Trim(b.String(), "-")
	if len(out) > maxIDLength {
		out = strings.TrimRight(out[:maxIDLength], "-")
	}
	if out == "" {
		return domain.DefaultAccountID
	}
	return out
}

// ListIDs returns the candidate account ids: the default id when channel-level
// or environment credentials exist, then every configured account id,
// normalized and sorted.
func ListIDs(ch *config.TypeXConfig) []string {
	var ids []string
	seen := map[string]bool{}
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if ch == nil {
		if envConfigured() {
			add(domain.DefaultAccountID)
		}
		return ids
	}

	if baseConfigured(ch) || envConfigured() {
		add(domain.DefaultAccountID)
	}

	keys := make([]string, 0, len(ch.Accounts))
	for id := range ch.Accounts {
		keys = append(keys, NormalizeID(id))
	}
	sort.Strings(keys)
	for _, id := range keys {
		add(id)
	}
	return ids
}

// DefaultID returns the account used when none is requested. An explicit
// default_account naming a candidate wins; then the canonical default id when
// it is a candidate; then the first candidate; then the canonical default.
func DefaultID(ch *config.TypeXConfig) string {
	ids := ListIDs(ch)
	if ch != nil && strings.TrimSpace(ch.DefaultAccount) != "" {
		want := NormalizeID(ch.DefaultAccount)
		for _, id := range ids {
			if id == want {
				return id
			}
		}
	}
	for _, id := range ids {
		if id == domain.DefaultAccountID {
			return id
		}
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return domain.DefaultAccountID
}

// Resolve builds the ResolvedAccount for accountID (empty means default).
func Resolve(ch *config.TypeXConfig, accountID string) ResolvedAccount {
	id := NormalizeID(accountID)
	if ch == nil {
		ch = &config.TypeXConfig{}
	}

	merged := ch.AccountConfig
	if acct, ok := lookupAccount(ch.Accounts, id); ok {
		merged = mergeAccount(merged, acct)
	}

	baseEnabled := ch.Enabled == nil || *ch.Enabled
	accountEnabled := merged.Enabled == nil || *merged.Enabled

	cred := resolveCredential(merged, id == domain.DefaultAccountID)
	merged.AppID = cred.AppID
	merged.AppSecret = cred.AppSecret

	name := strings.TrimSpace(merged.Name)
	if name == "" {
		name = strings.TrimSpace(merged.BotName)
	}

	return ResolvedAccount{
		AccountID:  id,
		Name:       name,
		Enabled:    baseEnabled && accountEnabled,
		Credential: cred,
		Token:      strings.TrimSpace(merged.Token),
		Email:      strings.TrimSpace(merged.Email),
		Config:     merged,
	}
}

// resolveCredential applies inline secret, then secret file, then (default
// account only) environment. Source is none unless both halves are set.
func resolveCredential(acct config.AccountConfig, allowEnv bool) domain.Credential {
	var envID, envSecret string
	if allowEnv {
		envID = strings.TrimSpace(os.Getenv(EnvAppID))
		envSecret = strings.TrimSpace(os.Getenv(EnvAppSecret))
	}

	appID := strings.TrimSpace(acct.AppID)
	if appID == "" {
		appID = envID
	}

	cred := domain.Credential{AppID: appID, Source: domain.TokenSourceNone}
	switch {
	case strings.TrimSpace(acct.AppSecret) != "":
		cred.AppSecret, cred.Source = strings.TrimSpace(acct.AppSecret), domain.TokenSourceConfig
	case readSecretFile(acct.AppSecretFile) != "":
		cred.AppSecret, cred.Source = readSecretFile(acct.AppSecretFile), domain.TokenSourceFile
	case envSecret != "":
		cred.AppSecret, cred.Source = envSecret, domain.TokenSourceEnv
	}

	if cred.AppID == "" || cred.AppSecret == "" {
		cred.Source = domain.TokenSourceNone
	}
	return cred
}

// readSecretFile returns the trimmed file contents, or "" on any failure.
func readSecretFile(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func baseConfigured(ch *config.TypeXConfig) bool {
	if strings.TrimSpace(ch.Token) != "" {
		return true
	}
	return strings.TrimSpace(ch.AppID) != "" &&
		(strings.TrimSpace(ch.AppSecret) != "" || ch.AppSecretFile != "")
}

func envConfigured() bool {
	return strings.TrimSpace(os.Getenv(EnvAppID)) != "" && strings.TrimSpace(os.Getenv(EnvAppSecret)) != ""
}

// lookupAccount finds id in accounts, first by exact key then by normalized key.
func lookupAccount(accounts map[string]config.AccountConfig, id string) (config.AccountConfig, bool) {
	if len(accounts) == 0 {
		return config.AccountConfig{}, false
	}
	if acct, ok := accounts[id]; ok {
		return acct, true
	}
	keys := make([]string, 0, len(accounts))
	for k := range accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if NormalizeID(k) == id {
			return accounts[k], true
		}
	}
	return config.AccountConfig{}, false
}

// mergeAccount overlays every field set in over onto base. Maps and slices
// are replaced, not merged.
func mergeAccount(base, over config.AccountConfig) config.AccountConfig {
	out := base
	overlayString(&out.Name, over.Name)
	overlayString(&out.Email, over.Email)
	overlayString(&out.Token, over.Token)
	overlayString(&out.AppID, over.AppID)
	overlayString(&out.AppSecret, over.AppSecret)
	overlayString(&out.AppSecretFile, over.AppSecretFile)
	overlayString(&out.Domain, over.Domain)
	overlayString(&out.BotName, over.BotName)

	s, o := &out.Settings, over.Settings
	overlay(&s.Enabled, o.Enabled)
	overlay(&s.DMPolicy, o.DMPolicy)
	overlay(&s.GroupPolicy, o.GroupPolicy)
	overlay(&s.HistoryLimit, o.HistoryLimit)
	overlay(&s.DMHistoryLimit, o.DMHistoryLimit)
	overlay(&s.TextChunkLimit, o.TextChunkLimit)
	overlay(&s.ChunkMode, o.ChunkMode)
	overlay(&s.BlockStreaming, o.BlockStreaming)
	overlay(&s.Streaming, o.Streaming)
	overlay(&s.MediaMaxMB, o.MediaMaxMB)
	overlay(&s.ResponsePrefix, o.ResponsePrefix)
	if o.AllowFrom != nil {
		s.AllowFrom = o.AllowFrom
	}
	if o.GroupAllowFrom != nil {
		s.GroupAllowFrom = o.GroupAllowFrom
	}
	if o.Groups != nil {
		s.Groups = o.Groups
	}
	return out
}

func overlayString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func overlay[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}
