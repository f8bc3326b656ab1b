package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/accounts"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout())
		},
	}
}

// runDoctor executes all health checks and reports results.
func runDoctor(w io.Writer) error {
	cfg, cfgErr := config.Load(configPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(configPath, cfgErr)},
		{Name: "Account session", Fn: checkAccounts},
		{Name: "Dispatch endpoint", Fn: checkDispatch},
		{Name: "Data directory", Fn: checkDataDir},
		{Name: "Provider API", Fn: checkProvider},
	}

	fmt.Fprintln(w, "typex-bridge doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

var noConfigResult = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

// checkConfigFile returns a check that verifies the config file loads.
// A missing file is only a warning: defaults and env overrides still apply.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax and permissions (0600)",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Run 'typex-bridge login' to create one",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAccounts verifies that at least one enabled account holds a session token.
func checkAccounts(cfg *config.Config) CheckResult {
	if cfg == nil {
		return noConfigResult
	}

	ch := &cfg.Channels.TypeX
	var ready, missing []string
	for _, id := range accounts.ListIDs(ch) {
		acct := accounts.Resolve(ch, id)
		if !acct.Enabled {
			continue
		}
		if acct.Token != "" {
			ready = append(ready, acct.AccountID)
		} else {
			missing = append(missing, acct.AccountID)
		}
	}

	switch {
	case len(ready) == 0:
		return CheckResult{
			Status:  StatusFail,
			Message: "no enabled account has a session token",
			Fix:     "Run 'typex-bridge login'",
		}
	case len(missing) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("ready: [%s]; no token: [%s]", strings.Join(ready, ", "), strings.Join(missing, ", ")),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("ready: %s", strings.Join(ready, ", ")),
	}
}

// checkDispatch verifies the host dispatch boundary is configured.
func checkDispatch(cfg *config.Config) CheckResult {
	if cfg == nil {
		return noConfigResult
	}
	if cfg.Host.DispatchURL == "" {
		return CheckResult{
			Status:  StatusFail,
			Message: "host.dispatch_url is not set",
			Fix:     fmt.Sprintf("Set host.dispatch_url in config.yaml or %s", config.EnvHostDispatchURL),
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("dispatching to %s (default agent %q)", cfg.Host.DispatchURL, cfg.Host.DefaultAgent),
	}
}

// checkDataDir verifies the cursor directory exists and is writable.
func checkDataDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return noConfigResult
	}

	absDir, _ := filepath.Abs(cfg.DataDir)
	if err := os.MkdirAll(absDir, 0o700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s cannot be created: %v", absDir, err),
			Fix:     fmt.Sprintf("Create the directory: mkdir -p %s", absDir),
		}
	}

	testFile := filepath.Join(absDir, ".doctor-check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s is not writable: %v", absDir, err),
			Fix:     fmt.Sprintf("Fix permissions: chmod 700 %s", absDir),
		}
	}
	os.Remove(testFile)

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("data directory %s writable", absDir),
	}
}

// checkProvider tests that the default account's API host is reachable.
func checkProvider(cfg *config.Config) CheckResult {
	if cfg == nil {
		return noConfigResult
	}

	ch := &cfg.Channels.TypeX
	endpoint := accounts.Resolve(ch, accounts.DefaultID(ch)).BaseURL(cfg.API.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your internet connection and api.base_url",
		}
	}
	resp.Body.Close()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", endpoint, latency.Milliseconds()),
	}
}
