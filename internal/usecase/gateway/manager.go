package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/config"
	"typex-bridge/internal/infra/logger"
	"typex-bridge/internal/usecase/accounts"
	"typex-bridge/internal/usecase/inbound"
)

// SessionFactory builds the provider session for one resolved account.
type SessionFactory func(acct accounts.ResolvedAccount, log *slog.Logger) inbound.Session

// ChunkFunc splits reply text by limit and mode.
type ChunkFunc func(text string, limit int, mode string) []string

// Deps are the collaborators shared by every account. Nothing in here is
// mutated by a running monitor.
type Deps struct {
	Config     *config.Config
	Dispatcher inbound.Dispatcher
	Router     inbound.RouteResolver
	Cursor     inbound.CursorStore
	NewSession SessionFactory
	Chunk      ChunkFunc
	Logger     *slog.Logger
}

// Snapshot is the observable state of one account.
type Snapshot struct {
	AccountID     string             `json:"account_id"`
	Name          string             `json:"name,omitempty"`
	Enabled       bool               `json:"enabled"`
	Configured    bool               `json:"configured"`
	TokenSource   domain.TokenSource `json:"token_source"`
	Running       bool               `json:"running"`
	LastStartAt   time.Time          `json:"last_start_at,omitzero"`
	LastStopAt    time.Time          `json:"last_stop_at,omitzero"`
	LastError     string             `json:"last_error,omitempty"`
	LastErrorCode domain.ErrorCode   `json:"last_error_code,omitempty"`
	LastInboundAt time.Time          `json:"last_inbound_at,omitzero"`
	Position      int64              `json:"position"`
}

type runner struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager runs one polling monitor per account.
type Manager struct {
	deps Deps

	mu        sync.Mutex
	snapshots map[string]*Snapshot
	runners   map[string]*runner
	wg        sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &Manager{
		deps:      deps,
		snapshots: make(map[string]*Snapshot),
		runners:   make(map[string]*runner),
	}
}

// StartAll starts every enabled and configured account and returns how many
// monitors were started. Accounts that cannot start are recorded in their
// snapshot and skipped.
func (m *Manager) StartAll(ctx context.Context) int {
	started := 0
	for _, id := range accounts.ListIDs(&m.deps.Config.Channels.TypeX) {
		if err := m.StartAccount(ctx, id); err != nil {
			m.deps.Logger.Warn("account not started", "account_id", id, "error", err)
			continue
		}
		started++
	}
	return started
}

// StartAccount starts the monitor for accountID.
func (m *Manager) StartAccount(ctx context.Context, accountID string) error {
	const op = "Manager.StartAccount"

	cfg := m.deps.Config
	acct := accounts.Resolve(&cfg.Channels.TypeX, accountID)
	settings := accounts.ResolveSettings(cfg.Channels, acct.AccountID)

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot(acct.AccountID)
	snap.Name = acct.Name
	snap.Enabled = acct.Enabled
	snap.Configured = acct.Configured()
	snap.TokenSource = acct.Credential.Source

	if _, running := m.runners[acct.AccountID]; running {
		return domain.NewDomainError(op, fmt.Errorf("already running"), acct.AccountID)
	}
	if !acct.Enabled {
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "account disabled")
	}
	if strings.TrimSpace(acct.Token) == "" {
		err := domain.NewDomainError(op, domain.ErrConfigurationMissing, "no session token; run login")
		m.recordError(snap, err)
		return err
	}
	if m.deps.NewSession == nil {
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "no session factory")
	}

	log := logger.ForAccount(m.deps.Logger, acct.AccountID)

	opts := []inbound.ProcessorOption{}
	if m.deps.Router != nil {
		opts = append(opts, inbound.WithRouter(m.deps.Router))
	}
	if m.deps.Chunk != nil {
		limit, mode, chunk := settings.TextChunkLimit, settings.ChunkMode, m.deps.Chunk
		opts = append(opts, inbound.WithChunker(func(text string) []string {
			return chunk(text, limit, mode)
		}))
	}

	processor := inbound.NewProcessor(m.deps.Dispatcher, cfg, log, opts...)

	cursorKey := acct.CursorKey()
	id := acct.AccountID
	mon := inbound.NewMonitor(inbound.MonitorDeps{
		Session:   m.deps.NewSession(acct, log),
		Processor: processor,
		Cursor:    m.deps.Cursor,
		Logger:    log,
	}, inbound.MonitorOptions{
		AccountID: id,
		CursorKey: cursorKey,
		Interval:  cfg.Poll.Interval,
		OnTick:    func(r inbound.TickReport) { m.onTick(id, r) },
	})

	runCtx, cancel := context.WithCancel(ctx)
	r := &runner{cancel: cancel, done: make(chan struct{})}
	m.runners[id] = r
	snap.Running = true
	snap.LastStartAt = time.Now()
	snap.LastError, snap.LastErrorCode = "", ""

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(r.done)
		err := mon.Run(runCtx)
		m.finish(id, err)
	}()

	log.Info("account started", "name", acct.Name, "cursor_key", cursorKey)
	return nil
}

// StopAccount cancels one account's monitor and waits for it to exit.
func (m *Manager) StopAccount(accountID string) {
	id := accounts.NormalizeID(accountID)
	m.mu.Lock()
	r, ok := m.runners[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
	<-r.done
}

// Stop cancels every monitor and waits for all of them to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, r := range m.runners {
		r.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Snapshots returns a copy of every account's state, sorted by account id.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.AccountID, b.AccountID) })
	return out
}

// ReportStatus logs one line per account with its current state.
func (m *Manager) ReportStatus(ctx context.Context) error {
	for _, s := range m.Snapshots() {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.deps.Logger.Info("account status",
			"account_id", s.AccountID,
			"running", s.Running,
			"position", s.Position,
			"last_inbound_at", s.LastInboundAt,
			"last_error", s.LastError)
	}
	return nil
}

func (m *Manager) onTick(id string, r inbound.TickReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot(id)
	snap.Position = r.Position
	if r.Dispatched > 0 {
		snap.LastInboundAt = r.At
	}
	if r.Err != nil {
		m.recordError(snap, r.Err)
	}
}

func (m *Manager) finish(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runners, id)
	snap := m.snapshot(id)
	snap.Running = false
	snap.LastStopAt = time.Now()
	if err != nil {
		m.recordError(snap, err)
		m.deps.Logger.Error("account monitor exited", "account_id", id, "error", err)
	}
}

// snapshot returns the entry for id, creating it. Callers hold m.mu.
func (m *Manager) snapshot(id string) *Snapshot {
	s, ok := m.snapshots[id]
	if !ok {
		s = &Snapshot{AccountID: id, TokenSource: domain.TokenSourceNone}
		m.snapshots[id] = s
	}
	return s
}

func (m *Manager) recordError(s *Snapshot, err error) {
	s.LastError = err.Error()
	s.LastErrorCode = domain.ErrorCodeOf(err)
}
