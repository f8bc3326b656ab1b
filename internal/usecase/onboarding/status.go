package onboarding

import (
	"fmt"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/accounts"
)

// Status is the onboarding state of the default account.
type Status struct {
	Channel         string
	AccountID       string
	Configured      bool
	Lines           []string
	Hint            string
	QuickstartScore int
}

// CheckStatus reports whether the default account holds a session token.
func CheckStatus(cfg *config.Config) Status {
	ch := &cfg.Channels.TypeX
	id := accounts.DefaultID(ch)
	configured := accounts.Resolve(ch, id).Token != ""

	st := Status{
		Channel:    domain.ChannelID,
		AccountID:  id,
		Configured: configured,
		Hint:       "setup needed",
	}
	state := "not configured"
	if configured {
		state = "configured"
		st.Hint = "configured"
		st.QuickstartScore = 5
	}
	st.Lines = []string{fmt.Sprintf("TypeX (%s): %s", id, state)}
	return st
}
