package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"typex-bridge/internal/adapter/terminal"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/accounts"
	"typex-bridge/internal/usecase/onboarding"
)

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Link a TypeX account by scanning a QR code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context())
		},
	}
}

func runLogin(ctx context.Context) error {
	cfg, log, closeLog, err := loadRuntime()
	defer closeLog()
	if err != nil {
		return err
	}

	ch := &cfg.Channels.TypeX
	acct := accounts.Resolve(ch, accounts.DefaultID(ch))

	flow := onboarding.NewFlow(
		newLoginClient(cfg, acct, log),
		terminal.NewQRRenderer(os.Stdout),
		terminal.NewPrompter(os.Stdout),
		log,
		onboarding.WithMaxAttempts(cfg.Onboarding.MaxAttempts),
		onboarding.WithInterval(cfg.Onboarding.Interval),
	)

	res, err := flow.Run(ctx, cfg)
	if err != nil {
		return err
	}
	if err := config.Save(cfg, configPath); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(os.Stdout, "Account %s saved to %s\n", res.AccountID, configPath)
	return nil
}
