package domain

// ChannelID is the channel identifier used in routing, dispatch and context
// records.
const ChannelID = "typex"

// DefaultAccountID is the canonical id used when no account is requested.
const DefaultAccountID = "default"

// TokenSource identifies which tier supplied an account's app secret.
type TokenSource string

const (
	TokenSourceConfig TokenSource = "config"
	TokenSourceFile   TokenSource = "file"
	TokenSourceEnv    TokenSource = "env"
	TokenSourceNone   TokenSource = "none"
)

// Credential is the app credential resolved for an account.
// Source is TokenSourceNone iff AppID or AppSecret is empty.
type Credential struct {
	AppID     string
	AppSecret string
	Source    TokenSource
}

// Configured reports whether both halves of the credential resolved.
func (c Credential) Configured() bool {
	return c.Source != TokenSourceNone && c.AppID != "" && c.AppSecret != ""
}

// Handshake is the start of a QR login.
type Handshake struct {
	// Payload is the raw query-string data to encode into the QR code.
	Payload string
	// ID is the qr_code_id used to poll for completion.
	ID string
}
