package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/infra/logger"
)

var (
	version    = "0.1.0"
	configPath string
)

// envConfigPath overrides the default --config value.
const envConfigPath = "TYPEX_BRIDGE_CONFIG"

func main() {
	root := &cobra.Command{
		Use:           "typex-bridge",
		Short:         "Bridge TypeX chats to an agent host",
		Long:          "typex-bridge polls TypeX accounts, hands each message to an agent host and sends the replies back.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to config.yaml")

	root.AddCommand(runCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(accountsCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(doctorCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if p := os.Getenv(envConfigPath); p != "" {
		return p
	}
	return "config.yaml"
}

// loadConfig loads the --config file. Failures carry domain.ErrConfigLoad
// unless a more specific sentinel is already in the chain.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrConfigLoad, err)
	}
	return cfg, nil
}

// loadRuntime loads the config and builds the process logger. The returned
// closer is always safe to call.
func loadRuntime() (*config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, func() {}, err
	}
	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, func() {}, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, func() { _ = closeLog() }, nil
}
