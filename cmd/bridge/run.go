package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"typex-bridge/internal/adapter/cursor"
	"typex-bridge/internal/adapter/host"
	"typex-bridge/internal/adapter/typex"
	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/tracer"
	"typex-bridge/internal/usecase/accounts"
	"typex-bridge/internal/usecase/gateway"
	"typex-bridge/internal/usecase/inbound"
	"typex-bridge/internal/usecase/scheduling"
)

func runCmd() *cobra.Command {
	var accountID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll accounts and dispatch their messages until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBridge(cmd.Context(), accountID)
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "run only this account")
	return cmd
}

func runBridge(ctx context.Context, accountID string) error {
	const op = "run"

	cfg, log, closeLog, err := loadRuntime()
	defer closeLog()
	if err != nil {
		return err
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	dispatcher := newDispatcher(cfg, log)
	if dispatcher == nil {
		log.Error("host.dispatch_url is not set")
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "host.dispatch_url")
	}

	store, err := cursor.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := gateway.NewManager(gateway.Deps{
		Config:     cfg,
		Dispatcher: dispatcher,
		Router:     host.NewRuleRouter(cfg.Host, log),
		Cursor:     store,
		NewSession: func(acct accounts.ResolvedAccount, l *slog.Logger) inbound.Session {
			return newClient(cfg, acct, l)
		},
		Chunk:  typex.ChunkText,
		Logger: log,
	})

	sched := scheduling.NewScheduler(log)
	sched.RegisterAction(scheduling.ActionStatusReport, mgr.ReportStatus)
	if spec := cfg.Reports.StatusSchedule; spec != "" {
		if err := sched.AddTask(scheduling.Task{Name: "status", Schedule: spec, Action: scheduling.ActionStatusReport}); err != nil {
			return err
		}
	}

	if accountID != "" {
		if err := mgr.StartAccount(ctx, accountID); err != nil {
			return err
		}
	} else if mgr.StartAll(ctx) == 0 {
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "no account could be started; run 'typex-bridge login'")
	}

	sched.Start(ctx)

	log.Info("bridge running", "version", version, "data_dir", cfg.DataDir, "cursor_backend", cfg.Cursor.Backend)
	<-ctx.Done()

	log.Info("shutting down")
	sched.Stop()
	mgr.Stop()
	for _, s := range mgr.Snapshots() {
		log.Info("account stopped", "account_id", s.AccountID, "position", s.Position, "last_error", s.LastError)
	}
	return nil
}
