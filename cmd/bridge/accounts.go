package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"typex-bridge/internal/adapter/cursor"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/accounts"
	"typex-bridge/internal/usecase/onboarding"
)

// accountRow is one line of the accounts listing.
type accountRow struct {
	ID          string `json:"id"`
	Default     bool   `json:"default"`
	Name        string `json:"name,omitempty"`
	Enabled     bool   `json:"enabled"`
	Configured  bool   `json:"configured"`
	HasToken    bool   `json:"has_token"`
	TokenSource string `json:"token_source"`
	BaseURL     string `json:"base_url"`
}

func accountsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printAccounts(cmd.OutOrStdout(), listAccounts(cfg), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func listAccounts(cfg *config.Config) []accountRow {
	ch := &cfg.Channels.TypeX
	def := accounts.DefaultID(ch)

	ids := accounts.ListIDs(ch)
	rows := make([]accountRow, 0, len(ids))
	for _, id := range ids {
		acct := accounts.Resolve(ch, id)
		rows = append(rows, accountRow{
			ID:          acct.AccountID,
			Default:     acct.AccountID == def,
			Name:        acct.Name,
			Enabled:     acct.Enabled,
			Configured:  acct.Configured(),
			HasToken:    acct.Token != "",
			TokenSource: string(acct.Credential.Source),
			BaseURL:     acct.BaseURL(cfg.API.BaseURL),
		})
	}
	return rows
}

func printAccounts(w io.Writer, rows []accountRow, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No accounts configured. Run 'typex-bridge login'.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEFAULT\tENABLED\tTOKEN\tSECRET SOURCE\tNAME")
	for _, r := range rows {
		mark := ""
		if r.Default {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\t%s\n", r.ID, mark, r.Enabled, r.HasToken, r.TokenSource, r.Name)
	}
	return tw.Flush()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show login status and poll cursors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printStatus(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

func printStatus(ctx context.Context, w io.Writer, cfg *config.Config) error {
	st := onboarding.CheckStatus(cfg)
	for _, line := range st.Lines {
		fmt.Fprintln(w, line)
	}
	if !st.Configured {
		fmt.Fprintln(w, "Hint:", st.Hint, "(run 'typex-bridge login')")
	}

	store, err := cursor.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ch := &cfg.Channels.TypeX
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nACCOUNT\tPOSITION\tCURSOR")
	for _, id := range accounts.ListIDs(ch) {
		acct := accounts.Resolve(ch, id)
		key := acct.CursorKey()
		pos, err := store.Load(ctx, key)
		position := fmt.Sprint(pos)
		if err != nil {
			position = "unreadable"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", acct.AccountID, position, store.Location(key))
	}
	return tw.Flush()
}
