package lottery

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"
)

// Engine accepts ticket purchases, executes draws and settles prizes.
//
// Every mutating entry point runs under one write lock and either commits all
// of its effects or none of them. Funds leave the engine through the Payer
// only after the bookkeeping has been committed.
type Engine struct {
	rules     *GameConfig
	chain     Chain
	scheduler *Scheduler
	calc      *PrizeCalculator
	guard     *EmergencyGuard

	store   Store
	payer   Payer
	sink    EventSink
	logger  Logger
	monitor *PerformanceMonitor

	lock mutationLock

	// 以下状态受 lock 保护
	meta       EngineState
	sched      SchedulerState
	treasury   Treasury
	guardState GuardState
	draws      map[uint64]*Draw
	tickets    *TicketStore
}

// Option configures an Engine
type Option func(*Engine)

// WithStore persists every committed operation to store
func WithStore(store Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithPayer sets the collaborator that moves funds out of the engine
func WithPayer(payer Payer) Option {
	return func(e *Engine) { e.payer = payer }
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithEventSink adds an event sink; may be given more than once
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) {
		switch cur := e.sink.(type) {
		case nil:
			e.sink = sink
		case multiSink:
			e.sink = append(cur, sink)
		default:
			e.sink = multiSink{cur, sink}
		}
	}
}

// WithPerformanceMonitor records metrics for every entry point
func WithPerformanceMonitor(monitor *PerformanceMonitor) Option {
	return func(e *Engine) { e.monitor = monitor }
}

// WithDistributedLock serializes mutations across processes through locker.
// Combined with WithStore, every mutation first reloads the shared state, so
// several engines can work on one store. Reads return the state as of the
// instance's last mutation or Restore.
func WithDistributedLock(locker Locker, lockKey string) Option {
	return func(e *Engine) {
		if lockKey == "" {
			lockKey = DefaultEngineLockKey
		}
		e.lock.locker = locker
		e.lock.lockKey = lockKey
	}
}

// NewEngine creates an engine for rules evaluated against chain.
// The first draw opens at the chain's current time and height.
func NewEngine(rules *GameConfig, chain Chain, opts ...Option) (*Engine, error) {
	if rules == nil || chain == nil {
		return nil, ErrInvalidParameters.WithDetails("rules and chain are required")
	}
	r := *rules
	r.SetDefaults()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	calc, err := NewPrizeCalculator(r.TierShares)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		rules:     &r,
		chain:     chain,
		scheduler: NewScheduler(&r),
		calc:      calc,
		guard:     NewEmergencyGuard(r.Guard),
		logger:    NewSilentLogger(),
		draws:     make(map[uint64]*Draw),
		tickets:   NewTicketStore(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.lock.logger = e.logger

	e.resetState()
	e.logger.Info("engine created: owner=%s testing_mode=%t price=%s interval=%ds min_seq_delta=%d",
		r.Owner, r.TestingMode, FormatAmount(r.TicketPrice, r.AmountDecimals), r.IntervalSeconds(), r.MinSeqDelta)
	return e, nil
}

// resetState puts the engine in its genesis state
func (e *Engine) resetState() {
	now, seq := e.chain.Now(), e.chain.Height()
	e.meta = EngineState{CurrentDrawID: 1, NextTicketID: 1}
	e.sched = SchedulerState{LastDrawTime: now, LastDrawSeq: seq}
	e.treasury = Treasury{}
	e.guardState = GuardState{}
	e.guard.Reset(&e.guardState, now)
	e.draws = map[uint64]*Draw{1: {ID: 1}}
	e.tickets = NewTicketStore()
}

// Rules returns a copy of the engine's game rules
func (e *Engine) Rules() GameConfig {
	return *e.rules
}

// GetLogger returns the engine logger
func (e *Engine) GetLogger() Logger { return e.logger }

// mutate runs fn as one atomic operation: validation, effects, the
// conservation check and the store commit all succeed or the state is rolled back.
func (e *Engine) mutate(ctx context.Context, fn func(tx *txn) error) (*txn, error) {
	unlock, err := e.lock.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 多实例共享存储时, 持锁后先同步其他实例已提交的状态
	if e.lock.locker != nil && e.store != nil {
		if err := e.refresh(ctx); err != nil {
			return nil, err
		}
	}

	tx := e.begin()
	if err := fn(tx); err != nil {
		tx.rollback()
		return nil, err
	}
	if err := e.treasury.CheckConservation(); err != nil {
		tx.rollback()
		return nil, err
	}
	if e.store != nil {
		if err := e.store.Commit(ctx, tx.changeset()); err != nil {
			tx.rollback()
			if e.monitor != nil {
				e.monitor.RecordStoreError()
			}
			return nil, wrapStoreError(err)
		}
	}

	if e.monitor != nil {
		e.monitor.ObserveState(e.treasury, e.meta.Paused, e.meta.CurrentDrawID)
	}
	return tx, nil
}

// payout transfers amount to a recipient after the bookkeeping committed.
// If the transfer fails, compensate undoes the bookkeeping in a new atomic step.
func (e *Engine) payout(ctx context.Context, to Principal, amount Amount, compensate func(tx *txn) error) error {
	if e.payer == nil || amount == 0 {
		return nil
	}

	err := e.payer.Transfer(markPayout(ctx), to, amount)
	if err == nil {
		return nil
	}

	e.logger.Error("payout: transfer of %s to %s failed: %v", FormatAmount(amount, e.rules.AmountDecimals), to, err)
	transferErr := ErrTransferFailed.WithDetails(string(to)).WithCause(err)

	// 补偿必须在原 ctx 取消后仍然执行
	if _, cerr := e.mutate(context.WithoutCancel(ctx), compensate); cerr != nil {
		e.logger.Error("payout: compensation for %s failed: %v", to, cerr)
		return ErrInvariantViolation.WithDetails("transfer failed and could not be reverted").WithCause(errors.Join(err, cerr)).WithStackTrace()
	}
	return transferErr
}

func (e *Engine) publish(events []Event) {
	if e.sink == nil {
		return
	}
	for _, ev := range events {
		e.sink.Publish(ev)
	}
}

func (e *Engine) record(operation string, err error, start time.Time) {
	if e.monitor != nil {
		e.monitor.RecordOperation(operation, err, time.Since(start))
	}
}

func (e *Engine) requireOwner(caller Principal) error {
	if caller != e.rules.Owner {
		return ErrUnauthorized.WithDetails(string(caller))
	}
	return nil
}

func wrapStoreError(err error) error {
	var le *LotteryError
	if errors.As(err, &le) {
		return le
	}
	return ErrStateSaveFailure.WithCause(err)
}

// Restore replaces the in-memory state with the state persisted in the store.
// It is a no-op when the store holds nothing.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return ErrInvalidParameters.WithDetails("engine has no store")
	}

	unlock, err := e.lock.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		if e.monitor != nil {
			e.monitor.RecordStoreError()
		}
		e.logger.Error("Restore: load failed: %v", err)
		return err
	}
	if snap == nil {
		e.logger.Info("Restore: store is empty, keeping genesis state")
		return nil
	}
	if err := e.load(snap); err != nil {
		e.logger.Error("Restore: snapshot rejected: %v", err)
		return err
	}

	e.logger.Info("Restore: current_draw=%d tickets=%d players=%d jackpot=%s",
		e.meta.CurrentDrawID, len(snap.Tickets), len(snap.Players),
		FormatAmount(e.treasury.AccumulatedJackpot, e.rules.AmountDecimals))
	return nil
}

// refresh replaces the in-memory state with the store's. Callers hold the write lock.
func (e *Engine) refresh(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		if e.monitor != nil {
			e.monitor.RecordStoreError()
		}
		e.logger.Error("refresh: load failed: %v", err)
		var le *LotteryError
		if errors.As(err, &le) {
			return le
		}
		return ErrStateLoadFailure.WithCause(err)
	}
	if snap == nil {
		return nil
	}
	if err := e.load(snap); err != nil {
		e.logger.Error("refresh: snapshot rejected: %v", err)
		return err
	}
	return nil
}

func (e *Engine) load(snap *Snapshot) error {
	if err := snap.Treasury.CheckConservation(); err != nil {
		return ErrStateCorrupted.WithCause(err)
	}

	draws := make(map[uint64]*Draw, len(snap.Draws))
	for i := range snap.Draws {
		d := snap.Draws[i].clone()
		if err := d.Validate(); err != nil {
			return ErrStateCorrupted.WithCause(err)
		}
		draws[d.ID] = d
	}
	if _, ok := draws[snap.Meta.CurrentDrawID]; !ok {
		return ErrStateCorrupted.WithDetails("current draw missing").WithMetadata(MetaDrawID, snap.Meta.CurrentDrawID)
	}

	tickets := NewTicketStore()
	for _, t := range snap.Tickets {
		tickets.restore(t)
	}
	tickets.sortIndexes()
	for _, pr := range snap.Players {
		tickets.players[pr.Player] = pr.Stats.clone()
	}

	for id, d := range draws {
		if got := tickets.CountForDraw(id); got != d.TotalTickets {
			return ErrStateCorrupted.WithDetails("ticket count mismatch").
				WithMetadata(MetaDrawID, id).
				WithMetadata(MetaExpected, d.TotalTickets).
				WithMetadata(MetaActual, got)
		}
	}

	e.meta = snap.Meta.clone()
	e.sched = snap.Scheduler
	e.treasury = snap.Treasury
	e.guardState = snap.Guard
	e.draws = draws
	e.tickets = tickets
	return nil
}

// Snapshot exports the full engine state
func (e *Engine) Snapshot() *Snapshot {
	defer e.lock.rlock()()

	snap := &Snapshot{
		Meta:      e.meta.clone(),
		Scheduler: e.sched,
		Treasury:  e.treasury,
		Guard:     e.guardState,
	}
	for id := uint64(1); id <= e.meta.CurrentDrawID; id++ {
		if d, ok := e.draws[id]; ok {
			snap.Draws = append(snap.Draws, *d.clone())
		}
	}
	for id := uint64(1); id < e.meta.NextTicketID; id++ {
		if t, ok := e.tickets.Get(id); ok {
			snap.Tickets = append(snap.Tickets, *t)
		}
	}
	for p, st := range e.tickets.players {
		snap.Players = append(snap.Players, PlayerRecord{Player: p, Stats: *st.clone()})
	}
	slices.SortFunc(snap.Players, func(a, b PlayerRecord) int { return cmp.Compare(a.Player, b.Player) })
	return snap
}

// WithdrawProtocolFees transfers the whole protocol fee balance to the owner
func (e *Engine) WithdrawProtocolFees(ctx context.Context, caller Principal) (amount Amount, err error) {
	start := time.Now()
	defer func() { e.record("withdraw_protocol_fees", err, start) }()

	e.logger.Debug("WithdrawProtocolFees called by %s", caller)

	tx, err := e.mutate(ctx, func(tx *txn) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		withdrawn, err := e.treasury.WithdrawFees()
		if err != nil {
			return err
		}
		amount = withdrawn
		if amount > 0 {
			tx.emit(newEvent(EventFeesWithdrawn, caller, e.meta.CurrentDrawID, amount, e.chain))
		}
		return nil
	})
	if err != nil {
		e.logger.Error("WithdrawProtocolFees rejected: caller=%s: %v", caller, err)
		return 0, err
	}

	err = e.payout(ctx, caller, amount, func(tx *txn) error {
		return e.treasury.refundFees(amount)
	})
	if err != nil {
		return 0, err
	}

	e.publish(tx.events)
	e.logger.Info("WithdrawProtocolFees successful: owner=%s amount=%s", caller, FormatAmount(amount, e.rules.AmountDecimals))
	return amount, nil
}

// Pause stops purchases and draw execution; claims stay available
func (e *Engine) Pause(ctx context.Context, caller Principal) (err error) {
	start := time.Now()
	defer func() { e.record("pause", err, start) }()

	tx, err := e.mutate(ctx, func(tx *txn) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		if e.meta.Paused {
			return nil
		}
		e.meta.Paused = true
		tx.emit(newEvent(EventPaused, caller, e.meta.CurrentDrawID, 0, e.chain))
		return nil
	})
	if err != nil {
		e.logger.Error("Pause rejected: caller=%s: %v", caller, err)
		return err
	}

	e.publish(tx.events)
	e.logger.Info("Pause: engine paused by %s", caller)
	return nil
}

// Unpause resumes the engine and starts a fresh guard window
func (e *Engine) Unpause(ctx context.Context, caller Principal) (err error) {
	start := time.Now()
	defer func() { e.record("unpause", err, start) }()

	tx, err := e.mutate(ctx, func(tx *txn) error {
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		if !e.meta.Paused {
			return nil
		}
		e.meta.Paused = false
		e.guard.Reset(&e.guardState, e.chain.Now())
		tx.emit(newEvent(EventUnpaused, caller, e.meta.CurrentDrawID, 0, e.chain))
		return nil
	})
	if err != nil {
		e.logger.Error("Unpause rejected: caller=%s: %v", caller, err)
		return err
	}

	e.publish(tx.events)
	e.logger.Info("Unpause: engine resumed by %s", caller)
	return nil
}

// SetTestingOverride shortens the draw interval on testing deployments.
// Passing enabled=false removes the override.
func (e *Engine) SetTestingOverride(ctx context.Context, caller Principal, enabled bool, intervalSeconds uint64) (err error) {
	start := time.Now()
	defer func() { e.record("set_testing_override", err, start) }()

	tx, err := e.mutate(ctx, func(tx *txn) error {
		if !e.rules.TestingMode {
			return ErrNotInTestingMode
		}
		if err := e.requireOwner(caller); err != nil {
			return err
		}
		override, err := e.scheduler.ValidateOverride(enabled, intervalSeconds)
		if err != nil {
			return err
		}
		e.meta.TestingOverrideInterval = override
		tx.emit(newEvent(EventOverrideChanged, caller, e.meta.CurrentDrawID, intervalSeconds, e.chain))
		return nil
	})
	if err != nil {
		e.logger.Error("SetTestingOverride rejected: caller=%s: %v", caller, err)
		return err
	}

	e.publish(tx.events)
	e.logger.Info("SetTestingOverride: enabled=%t interval=%ds", enabled, intervalSeconds)
	return nil
}
