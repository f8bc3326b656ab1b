package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"

	"typex-bridge/internal/domain"
)

// Environment variables read by ApplyEnvOverrides and Load.
const (
	EnvLoggerLevel     = "TYPEX_BRIDGE_LOGGER_LEVEL"
	EnvLoggerFormat    = "TYPEX_BRIDGE_LOGGER_FORMAT"
	EnvDataDir         = "TYPEX_BRIDGE_DATA_DIR"
	EnvPollInterval    = "TYPEX_BRIDGE_POLL_INTERVAL"
	EnvTracerEnabled   = "TYPEX_BRIDGE_TRACER_ENABLED"
	EnvTracerExporter  = "TYPEX_BRIDGE_TRACER_EXPORTER"
	EnvAPIBaseURL      = "TYPEX_BRIDGE_API_BASE_URL"
	EnvHostDispatchURL = "TYPEX_BRIDGE_HOST_DISPATCH_URL"
	EnvConfigKey       = "TYPEX_BRIDGE_CONFIG_KEY"
)

// DefaultAPIBaseURL is the provider endpoint used when neither the api block
// nor the account's domain overrides it.
const DefaultAPIBaseURL = "https://api-coco.typex.im"

// Config is the top-level application configuration. It is also the "full
// host configuration" handed to routing and dispatch.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	DataDir    string           `yaml:"data_dir"`
	Poll       PollConfig       `yaml:"poll"`
	Cursor     CursorConfig     `yaml:"cursor"`
	Reports    ReportsConfig    `yaml:"reports"`
	API        APIConfig        `yaml:"api"`
	Host       HostConfig       `yaml:"host"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Includes   []string         `yaml:"includes,omitempty"`
}

// PollConfig holds inbound polling settings.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Cursor backends.
const (
	CursorBackendFile   = "file"
	CursorBackendSQLite = "sqlite"
)

// CursorConfig selects where poll positions are persisted. Path is only used
// by the sqlite backend and defaults to <data_dir>/cursors.db.
type CursorConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path,omitempty"`
}

// ReportsConfig holds periodic maintenance schedules. A schedule is a cron
// expression or a Go duration; empty disables the report.
type ReportsConfig struct {
	StatusSchedule string `yaml:"status_schedule,omitempty"`
}

// APIConfig holds provider HTTP client settings.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	SendRatePerSec float64       `yaml:"send_rate_per_sec"`
	SendBurst      int           `yaml:"send_burst"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the circuit breaker around outbound sends.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// HostConfig describes the dispatch boundary used when the bridge runs
// standalone.
type HostConfig struct {
	DispatchURL  string              `yaml:"dispatch_url"`
	Timeout      time.Duration       `yaml:"timeout"`
	DefaultAgent string              `yaml:"default_agent"`
	RoutingRules []RoutingRuleConfig `yaml:"routing_rules,omitempty"`
}

// RoutingRuleConfig maps an (account, peer) pair to an agent. "*" or empty
// matches anything.
type RoutingRuleConfig struct {
	AccountID string `yaml:"account_id,omitempty"`
	PeerID    string `yaml:"peer_id,omitempty"`
	AgentID   string `yaml:"agent_id"`
}

// OnboardingConfig holds QR login settings.
type OnboardingConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}

// ChannelsConfig holds the layered channel configuration: provider-wide
// defaults, then the typex channel block with its per-account overrides.
type ChannelsConfig struct {
	Defaults Settings    `yaml:"defaults"`
	TypeX    TypeXConfig `yaml:"typex"`
}

// Settings are the behavioural options that may be set at any tier.
// A nil pointer or nil slice means "not set at this tier".
type Settings struct {
	Enabled        *bool                  `yaml:"enabled,omitempty"`
	DMPolicy       *string                `yaml:"dm_policy,omitempty"`
	GroupPolicy    *string                `yaml:"group_policy,omitempty"`
	AllowFrom      []string               `yaml:"allow_from,omitempty"`
	GroupAllowFrom []string               `yaml:"group_allow_from,omitempty"`
	HistoryLimit   *int                   `yaml:"history_limit,omitempty"`
	DMHistoryLimit *int                   `yaml:"dm_history_limit,omitempty"`
	TextChunkLimit *int                   `yaml:"text_chunk_limit,omitempty"`
	ChunkMode      *string                `yaml:"chunk_mode,omitempty"`
	BlockStreaming *bool                  `yaml:"block_streaming,omitempty"`
	Streaming      *bool                  `yaml:"streaming,omitempty"`
	MediaMaxMB     *int                   `yaml:"media_max_mb,omitempty"`
	ResponsePrefix *string                `yaml:"response_prefix,omitempty"`
	Groups         map[string]GroupConfig `yaml:"groups,omitempty"`
}

// GroupConfig holds per-group overrides.
type GroupConfig struct {
	Enabled        *bool    `yaml:"enabled,omitempty"`
	RequireMention *bool    `yaml:"require_mention,omitempty"`
	Skills         []string `yaml:"skills,omitempty"`
	AllowFrom      []string `yaml:"allow_from,omitempty"`
	SystemPrompt   string   `yaml:"system_prompt,omitempty"`
}

// AccountConfig is one account's configuration. The same shape is used at
// the channel level, where it acts as the base for every account.
type AccountConfig struct {
	Name          string `yaml:"name,omitempty"`
	Email         string `yaml:"email,omitempty"`
	Token         string `yaml:"token,omitempty"`
	AppID         string `yaml:"app_id,omitempty"`
	AppSecret     string `yaml:"app_secret,omitempty"`
	AppSecretFile string `yaml:"app_secret_file,omitempty"`
	Domain        string `yaml:"domain,omitempty"`
	BotName       string `yaml:"bot_name,omitempty"`

	Settings `yaml:",inline"`
}

// TypeXConfig is the channel-level block.
type TypeXConfig struct {
	AccountConfig `yaml:",inline"`

	DefaultAccount string                   `yaml:"default_account,omitempty"`
	Accounts       map[string]AccountConfig `yaml:"accounts,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// defaultDataDir returns the persistent data directory under $HOME/.typex-bridge/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".typex-bridge", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		DataDir: defaultDataDir(),
		Poll: PollConfig{
			Interval: 3 * time.Second,
		},
		Cursor: CursorConfig{
			Backend: CursorBackendFile,
		},
		API: APIConfig{
			BaseURL:        DefaultAPIBaseURL,
			Timeout:        30 * time.Second,
			SendRatePerSec: 5,
			SendBurst:      5,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Host: HostConfig{
			Timeout:      120 * time.Second,
			DefaultAgent: "main",
		},
		Onboarding: OnboardingConfig{
			MaxAttempts: 60,
			Interval:    2 * time.Second,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal main config so it takes precedence over includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(EnvConfigKey); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, domain.NewDomainError("config.Load", domain.ErrDecryption, "decrypt secrets: "+err.Error())
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save validates cfg and writes it to path as YAML with 0600 permissions.
func Save(cfg *Config, path string) error {
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnvOverrides applies TYPEX_BRIDGE_* environment variables to cfg.
// Credential fallbacks (TYPEX_APP_ID / TYPEX_APP_SECRET) are not applied here;
// they are resolved per account.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvLoggerLevel); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(EnvLoggerFormat); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvPollInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Poll.Interval = d
		}
	}
	if v := os.Getenv(EnvTracerEnabled); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracer.Enabled = b
		}
	}
	if v := os.Getenv(EnvTracerExporter); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		cfg.API.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv(EnvHostDispatchURL); v != "" {
		cfg.Host.DispatchURL = v
	}
}

// decryptSecrets finds "enc:..." values in channel and account secrets and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	decrypt := func(label string, fp *string) error {
		if !strings.HasPrefix(*fp, "enc:") {
			return nil
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		*fp = decrypted
		return nil
	}

	ch := &cfg.Channels.TypeX
	if err := decrypt("channel app_secret", &ch.AppSecret); err != nil {
		return err
	}
	if err := decrypt("channel token", &ch.Token); err != nil {
		return err
	}
	for id, acct := range ch.Accounts {
		if err := decrypt("account "+id+" app_secret", &acct.AppSecret); err != nil {
			return err
		}
		if err := decrypt("account "+id+" token", &acct.Token); err != nil {
			return err
		}
		ch.Accounts[id] = acct
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts an AES-256-GCM encrypted value.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}

	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}

	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

// Bool returns a pointer to b. Helper for building layered settings in code.
func Bool(b bool) *bool { return &b }

// Int returns a pointer to n.
func Int(n int) *int { return &n }

// String returns a pointer to s.
func String(s string) *string { return &s }
