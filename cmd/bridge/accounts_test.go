package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"typex-bridge/internal/adapter/cursor"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/usecase/accounts"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(accounts.EnvAppID, "")
	t.Setenv(accounts.EnvAppSecret, "")

	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Channels.TypeX.DefaultAccount = "ops"
	cfg.Channels.TypeX.Accounts = map[string]config.AccountConfig{
		"ops":   {Name: "Ops", Token: "sessionid=1", Email: "ops@example.com"},
		"sales": {Domain: "sales.example.com", Settings: config.Settings{Enabled: config.Bool(false)}},
	}
	return cfg
}

func TestListAccounts(t *testing.T) {
	rows := listAccounts(testConfig(t))
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	ops, sales := rows[0], rows[1]
	if ops.ID != "ops" || !ops.Default || !ops.HasToken || !ops.Enabled {
		t.Errorf("unexpected ops row: %+v", ops)
	}
	if ops.BaseURL != config.DefaultAPIBaseURL {
		t.Errorf("ops base url = %q", ops.BaseURL)
	}
	if sales.Default || sales.Enabled || sales.HasToken {
		t.Errorf("unexpected sales row: %+v", sales)
	}
	if sales.BaseURL != "https://sales.example.com" {
		t.Errorf("sales base url = %q", sales.BaseURL)
	}
}

func TestPrintAccountsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := printAccounts(&buf, listAccounts(testConfig(t)), false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "ID") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "ops") || !strings.Contains(out, "sales") {
		t.Errorf("missing accounts:\n%s", out)
	}
}

func TestPrintAccountsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printAccounts(&buf, listAccounts(testConfig(t)), true); err != nil {
		t.Fatal(err)
	}
	var rows []accountRow
	if err := json.Unmarshal(buf.Bytes(), &rows); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "ops" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestPrintAccountsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := printAccounts(&buf, nil, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "typex-bridge login") {
		t.Errorf("expected login hint, got %q", buf.String())
	}
}

func TestPrintStatusShowsCursor(t *testing.T) {
	cfg := testConfig(t)
	store := cursor.NewFileStore(cfg.DataDir)
	if err := store.Save(context.Background(), "ops@example.com", 42); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printStatus(context.Background(), &buf, cfg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "TypeX (ops): configured") {
		t.Errorf("missing status line:\n%s", out)
	}
	if !strings.Contains(out, "42") {
		t.Errorf("missing cursor position:\n%s", out)
	}
	if !strings.Contains(out, store.Path("ops@example.com")) {
		t.Errorf("missing cursor file:\n%s", out)
	}
}
