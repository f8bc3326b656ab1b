package inbound

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"typex-bridge/internal/domain"
	"typex-bridge/internal/infra/logger"
	"typex-bridge/internal/infra/tracer"
)

// DefaultPollInterval is the pause between two ticks.
const DefaultPollInterval = 3 * time.Second

// TickReport summarizes one poll tick.
type TickReport struct {
	At         time.Time
	Fetched    int
	Dispatched int
	// Position is the persisted cursor after the tick.
	Position int64
	Status   domain.FetchStatus
	// Err is set when the tick aborted. The next tick starts from Position.
	Err error
}

// MonitorDeps are the collaborators owned by one monitor.
type MonitorDeps struct {
	Session   Session
	Processor *Processor
	Cursor    CursorStore
	Logger    *slog.Logger
}

// MonitorOptions configure one monitor.
type MonitorOptions struct {
	AccountID string
	// CursorKey names the cursor file. Defaults to AccountID.
	CursorKey string
	Interval  time.Duration
	// OnTick is called after every tick, from the monitor goroutine.
	OnTick func(TickReport)
}

// Monitor polls one account and dispatches its messages in order. Ticks
// never overlap and a failed tick never stops the loop.
type Monitor struct {
	deps MonitorDeps
	opts MonitorOptions
	now  func() time.Time
}

// NewMonitor creates a Monitor.
func NewMonitor(deps MonitorDeps, opts MonitorOptions) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.CursorKey == "" {
		opts.CursorKey = opts.AccountID
	}
	if deps.Logger == nil {
		deps.Logger = logger.Discard()
	}
	return &Monitor{deps: deps, opts: opts, now: time.Now}
}

// Run polls until ctx is canceled. It returns an error only when the
// monitor cannot start: no session token or no dispatch boundary.
func (m *Monitor) Run(ctx context.Context) error {
	const op = "Monitor.Run"
	log := m.deps.Logger

	if m.deps.Session == nil || m.deps.Session.Token() == "" {
		log.Warn("no session token, monitor not started")
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "no session token")
	}
	if m.deps.Processor == nil || !m.deps.Processor.Ready() {
		log.Error("dispatch boundary unavailable, monitor not started")
		return domain.NewDomainError(op, domain.ErrConfigurationMissing, "no dispatcher")
	}

	pos := m.loadCursor(ctx)
	log.Info("monitor started", "position", pos, "interval", m.opts.Interval)

	timer := time.NewTimer(m.opts.Interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			break
		}
		pos = m.tick(ctx, pos)
		if ctx.Err() != nil {
			break
		}

		timer.Reset(m.opts.Interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}

	log.Info("monitor stopped", "position", pos)
	return nil
}

func (m *Monitor) loadCursor(ctx context.Context) int64 {
	if m.deps.Cursor == nil {
		return 0
	}
	pos, err := m.deps.Cursor.Load(ctx, m.opts.CursorKey)
	if err != nil {
		m.deps.Logger.Warn("cursor unreadable, starting from zero", "error", err)
		return 0
	}
	return pos
}

// tick fetches everything after persisted, dispatches it in order and
// persists the advanced cursor. It returns the persisted cursor; on any
// failure that is the value it was given.
func (m *Monitor) tick(ctx context.Context, persisted int64) (next int64) {
	log := m.deps.Logger
	report := TickReport{At: m.now(), Position: persisted}

	ctx, span := tracer.StartSpan(ctx, tracer.SpanPollTick)
	span.SetAttributes(tracer.AccountAttr(m.opts.AccountID), tracer.CursorAttr(persisted))

	defer func() {
		if r := recover(); r != nil {
			log.Error("poll tick panicked", "panic", r)
			report.Err = fmt.Errorf("tick panic: %v", r)
			report.Position = persisted
			next = persisted
		}
		span.SetAttributes(tracer.IntAttr("typex.fetched", report.Fetched))
		if report.Err != nil {
			tracer.RecordError(span, report.Err)
		} else {
			tracer.SetOK(span)
		}
		span.End()
		if m.opts.OnTick != nil {
			m.opts.OnTick(report)
		}
	}()

	res := m.deps.Session.Fetch(ctx, persisted)
	report.Status = res.Status
	report.Fetched = len(res.Entries)
	if res.Status.Degraded() {
		log.Debug("degraded fetch", "status", res.Status, "error", res.Err)
	}
	if res.Skipped > 0 {
		log.Warn("undecodable entries skipped", "count", res.Skipped)
	}

	cursor := persisted
	for _, entry := range res.Entries {
		if !entry.Valid() {
			log.Warn("dropping inbound entry", "error", domain.ErrInvalidPayload, "message_id", entry.MessageID)
			continue
		}
		if err := m.deps.Processor.Process(ctx, m.deps.Session, entry, m.opts.AccountID); err != nil {
			log.Error("poll tick aborted", "error", err, "message_id", entry.MessageID, "position", persisted)
			report.Err = err
			return persisted
		}
		report.Dispatched++
		if entry.Position != nil && *entry.Position > cursor {
			cursor = *entry.Position
		}
	}

	if len(res.Entries) == 0 || cursor == persisted || m.deps.Cursor == nil {
		report.Position = cursor
		return cursor
	}
	if err := m.deps.Cursor.Save(ctx, m.opts.CursorKey, cursor); err != nil {
		log.Error("persist cursor failed", "error", err, "position", cursor)
		report.Err = err
		return persisted
	}
	log.Debug("cursor persisted", "position", cursor, "dispatched", report.Dispatched)
	report.Position = cursor
	return cursor
}
