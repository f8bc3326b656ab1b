package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"typex-bridge/internal/adapter/typex"
	"typex-bridge/internal/domain"
	"typex-bridge/internal/usecase/accounts"
)

type sendOptions struct {
	accountID string
	to        string
	mediaURL  string
}

func sendCmd() *cobra.Command {
	var opts sendOptions
	cmd := &cobra.Command{
		Use:   "send [text...]",
		Short: "Send a message from an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.accountID, "account", "", "send from this account (default account when empty)")
	cmd.Flags().StringVar(&opts.to, "to", "", "target chat, e.g. typex:chat:<id>")
	cmd.Flags().StringVar(&opts.mediaURL, "media", "", "media URL sent after the text")
	return cmd
}

func runSend(ctx context.Context, w io.Writer, opts sendOptions, text string) error {
	const op = "send"

	if strings.TrimSpace(text) == "" && strings.TrimSpace(opts.mediaURL) == "" {
		return domain.NewDomainError(op, domain.ErrInvalidPayload, "nothing to send")
	}

	cfg, log, closeLog, err := loadRuntime()
	defer closeLog()
	if err != nil {
		return err
	}

	ch := &cfg.Channels.TypeX
	id := opts.accountID
	if id == "" {
		id = accounts.DefaultID(ch)
	}
	acct := accounts.Resolve(ch, id)
	settings := accounts.ResolveSettings(cfg.Channels, acct.AccountID)

	out := typex.NewOutbound(newClient(cfg, acct, log), settings.TextChunkLimit, settings.ChunkMode)
	res, err := out.SendMedia(ctx, opts.to, text, opts.mediaURL)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
