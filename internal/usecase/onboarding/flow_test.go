package onboarding

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLogin struct {
	startErr  error
	payload   string
	succeedAt int // 1-based check that succeeds; 0 never
	checkErr  error
	userID    string
	sendErr   error

	checks []string
	token  string
	sent   []any
}

func (f *fakeLogin) StartLogin(context.Context) (domain.Handshake, error) {
	if f.startErr != nil {
		return domain.Handshake{}, f.startErr
	}
	return domain.Handshake{Payload: f.payload, ID: "qr-1"}, nil
}

func (f *fakeLogin) CheckLogin(_ context.Context, id string) (bool, error) {
	f.checks = append(f.checks, id)
	if f.checkErr != nil {
		return false, f.checkErr
	}
	if f.succeedAt > 0 && len(f.checks) == f.succeedAt {
		f.token = "sessionid=abc"
		return true, nil
	}
	return false, nil
}

func (f *fakeLogin) Token() string  { return f.token }
func (f *fakeLogin) UserID() string { return f.userID }

func (f *fakeLogin) Send(_ context.Context, content any, _ domain.MessageType) (domain.SendResult, error) {
	f.sent = append(f.sent, content)
	return domain.SendResult{MessageID: "m"}, f.sendErr
}

type fakeRenderer struct {
	payloads []string
	err      error
}

func (r *fakeRenderer) Render(payload string) error {
	r.payloads = append(r.payloads, payload)
	return r.err
}

type note struct{ title, message string }

type fakePrompter struct {
	notes    []note
	progress int
}

func (p *fakePrompter) Note(message, title string) { p.notes = append(p.notes, note{title, message}) }
func (p *fakePrompter) Progress()                  { p.progress++ }

func (p *fakePrompter) titles() []string {
	out := make([]string, 0, len(p.notes))
	for _, n := range p.notes {
		out = append(out, n.title)
	}
	return out
}

func newFlow(c *fakeLogin, r *fakeRenderer, p *fakePrompter, attempts int) *Flow {
	return NewFlow(c, r, p, discardLogger(), WithMaxAttempts(attempts), WithInterval(time.Millisecond))
}

func TestRunLinksAccount(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1&ts=1", succeedAt: 3, userID: "u42"}
	r := &fakeRenderer{}
	p := &fakePrompter{}
	cfg := config.Defaults()

	res, err := newFlow(c, r, p, 5).Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, Result{AccountID: "u42", UserID: "u42"}, res)
	assert.Equal(t, []string{"qr_code_id=qr-1&ts=1"}, r.payloads)
	assert.Equal(t, []string{"qr-1", "qr-1", "qr-1"}, c.checks)
	assert.Equal(t, 2, p.progress)
	assert.Equal(t, []string{"TypeX Setup", "Status", "Done"}, p.titles())

	assert.Equal(t, "sessionid=abc", cfg.Channels.TypeX.Accounts["u42"].Token)
	assert.Equal(t, "u42", cfg.Channels.TypeX.DefaultAccount)
	assert.Equal(t, []any{ConfirmationMessage}, c.sent)
}

func TestRunKeepsExistingAccountSettings(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1", succeedAt: 1, userID: "u42"}
	cfg := config.Defaults()
	cfg.Channels.TypeX.Accounts = map[string]config.AccountConfig{
		"u42": {Name: "Ops", Token: "sessionid=old"},
	}

	_, err := newFlow(c, &fakeRenderer{}, &fakePrompter{}, 1).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "Ops", cfg.Channels.TypeX.Accounts["u42"].Name)
	assert.Equal(t, "sessionid=abc", cfg.Channels.TypeX.Accounts["u42"].Token)
}

func TestRunWithoutUserIDUsesDefault(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1", succeedAt: 1}
	cfg := config.Defaults()

	res, err := newFlow(c, &fakeRenderer{}, &fakePrompter{}, 1).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultAccountID, res.AccountID)
	assert.Contains(t, cfg.Channels.TypeX.Accounts, domain.DefaultAccountID)
}

func TestRunTimeout(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1"}
	p := &fakePrompter{}
	cfg := config.Defaults()

	_, err := newFlow(c, &fakeRenderer{}, p, 4).Run(context.Background(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoginTimeout)
	assert.Len(t, c.checks, 4)
	assert.Equal(t, 4, p.progress)
	assert.Equal(t, "Error", p.notes[len(p.notes)-1].title)
	assert.Empty(t, cfg.Channels.TypeX.Accounts)
	assert.Empty(t, cfg.Channels.TypeX.DefaultAccount)
	assert.Empty(t, c.sent)
}

func TestRunCheckErrorsCountAsAttempts(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1", checkErr: domain.ErrProviderUnavailable}

	_, err := newFlow(c, &fakeRenderer{}, &fakePrompter{}, 3).Run(context.Background(), config.Defaults())
	assert.ErrorIs(t, err, domain.ErrLoginTimeout)
	assert.Len(t, c.checks, 3)
}

func TestRunStartFailure(t *testing.T) {
	c := &fakeLogin{startErr: domain.NewDomainError("Client.StartLogin", domain.ErrProviderUnavailable, "status 500")}
	r := &fakeRenderer{}
	p := &fakePrompter{}
	cfg := config.Defaults()

	_, err := newFlow(c, r, p, 3).Run(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Empty(t, r.payloads)
	assert.Equal(t, []string{"TypeX Setup", "Error"}, p.titles())
	assert.Contains(t, p.notes[1].message, "Setup Failed")
	assert.Empty(t, cfg.Channels.TypeX.Accounts)
}

func TestRunRenderFailure(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1"}
	_, err := newFlow(c, &fakeRenderer{err: errors.New("tty gone")}, &fakePrompter{}, 3).Run(context.Background(), config.Defaults())
	require.Error(t, err)
	assert.Empty(t, c.checks)
}

func TestRunConfirmationFailureIsNotFatal(t *testing.T) {
	c := &fakeLogin{payload: "qr_code_id=qr-1", succeedAt: 1, userID: "u1", sendErr: domain.ErrSendRejected}
	cfg := config.Defaults()

	_, err := newFlow(c, &fakeRenderer{}, &fakePrompter{}, 2).Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sessionid=abc", cfg.Channels.TypeX.Accounts["u1"].Token)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeLogin{payload: "qr_code_id=qr-1", succeedAt: 1}
	cfg := config.Defaults()

	_, err := NewFlow(c, &fakeRenderer{}, &fakePrompter{}, discardLogger(), WithInterval(time.Hour)).Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, cfg.Channels.TypeX.Accounts)
}

func TestNewFlowDefaults(t *testing.T) {
	f := NewFlow(&fakeLogin{}, &fakeRenderer{}, &fakePrompter{}, discardLogger(), WithMaxAttempts(0), WithInterval(-1))
	assert.Equal(t, DefaultMaxAttempts, f.maxAttempts)
	assert.Equal(t, DefaultInterval, f.interval)
}

func TestCheckStatus(t *testing.T) {
	cfg := config.Defaults()
	st := CheckStatus(cfg)
	assert.False(t, st.Configured)
	assert.Equal(t, "default", st.AccountID)
	assert.Equal(t, []string{"TypeX (default): not configured"}, st.Lines)
	assert.Zero(t, st.QuickstartScore)

	cfg.Channels.TypeX.Accounts = map[string]config.AccountConfig{"u42": {Token: "sessionid=abc"}}
	cfg.Channels.TypeX.DefaultAccount = "u42"
	st = CheckStatus(cfg)
	assert.True(t, st.Configured)
	assert.Equal(t, "u42", st.AccountID)
	assert.Equal(t, "configured", st.Hint)
	assert.Equal(t, 5, st.QuickstartScore)
}
