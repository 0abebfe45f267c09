// Package auctioneer runs the auction as a single-writer actor. Every
// mutating command passes through one goroutine, is committed to the store
// and only then becomes visible to readers and observers.
package auctioneer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cricket-auction-backend/internal/engine"
	"github.com/DoyleJ11/cricket-auction-backend/internal/hub"
	"github.com/DoyleJ11/cricket-auction-backend/internal/store"
)

var ErrClosed = errors.New("auctioneer stopped")

type Msg interface{ isAuctioneerMsg() }

type Submit struct {
	Cmd   engine.Command
	Reply chan Result
	claim *claim
}

func (Submit) isAuctioneerMsg() {}

type Join struct {
	Reply chan JoinResult
	claim *claim
}

func (Join) isAuctioneerMsg() {}

type Shutdown struct{}

func (Shutdown) isAuctioneerMsg() {}

// claim settles who owns a queued message: the loop, which runs it, or the
// caller, which withdraws it once its deadline passes. A nil claim is always
// run.
type claim struct{ state atomic.Int32 }

const (
	claimQueued int32 = iota
	claimRunning
	claimWithdrawn
)

func (c *claim) take() bool { return c == nil || c.state.CompareAndSwap(claimQueued, claimRunning) }

func (c *claim) withdraw() bool { return c.state.CompareAndSwap(claimQueued, claimWithdrawn) }

type Result struct {
	Event engine.Event
	Err   error
}

type JoinResult struct {
	Sub *hub.Subscription
	Err error
}

// Snapshot is an immutable committed state. Readers must not modify State.
type Snapshot struct {
	Version int
	State   engine.State
	View    engine.View
}

type Options struct {
	InboxSize      int
	CommandTimeout time.Duration
	StoreTimeout   time.Duration
	Now            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 2 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

type Auctioneer struct {
	inbox   chan Msg
	machine *engine.Machine
	store   store.Store
	hub     *hub.Hub
	log     *zap.Logger
	opts    Options

	// owned by loop
	state   engine.State
	version int

	snap atomic.Pointer[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New loads the committed state from st and starts the actor. A live
// auction found in the store resumes where it left off.
func New(ctx context.Context, m *engine.Machine, st store.Store, h *hub.Hub, log *zap.Logger, opts Options) (*Auctioneer, error) {
	opts = opts.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	loadCtx, cancel := context.WithTimeout(ctx, opts.StoreTimeout)
	initial, err := st.Load(loadCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", engine.ErrStore, err)
	}

	actx, acancel := context.WithCancel(ctx)
	a := &Auctioneer{
		inbox:   make(chan Msg, opts.InboxSize),
		machine: m,
		store:   st,
		hub:     h,
		log:     log,
		opts:    opts,
		state:   initial,
		ctx:     actx,
		cancel:  acancel,
		done:    make(chan struct{}),
	}
	a.snap.Store(&Snapshot{State: initial, View: m.View(initial)})

	fields := []zap.Field{zap.Int("teams", len(initial.Teams)), zap.Int("players", len(initial.Lots))}
	if initial.Auction != nil {
		fields = append(fields, zap.Stringer("auction", initial.Auction.ID), zap.String("status", string(initial.Auction.Status)))
	}
	log.Info("auctioneer started", fields...)

	go a.loop()
	return a, nil
}

func (a *Auctioneer) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return

		case m := <-a.inbox:
			switch msg := m.(type) {
			case Submit:
				if !msg.claim.take() {
					a.log.Debug("skipping withdrawn command", zap.String("command", string(msg.Cmd.Type)))
					continue
				}
				ev, err := a.execute(msg.Cmd)
				msg.Reply <- Result{Event: ev, Err: err}

			case Join:
				if !msg.claim.take() {
					continue
				}
				cur := a.snap.Load()
				view := cur.View
				sub, err := a.hub.Subscribe(hub.Message{Version: cur.Version, Snapshot: &view})
				msg.Reply <- JoinResult{Sub: sub, Err: err}

			case Shutdown:
				a.cancel()
				return
			}
		}
	}
}

func (a *Auctioneer) execute(cmd engine.Command) (engine.Event, error) {
	if cmd.At.IsZero() {
		cmd.At = a.opts.Now()
	}

	tr, err := a.machine.Apply(a.state, cmd)
	if err != nil {
		a.log.Debug("command rejected",
			zap.String("command", string(cmd.Type)),
			zap.String("kind", string(engine.KindOf(err))),
			zap.Error(err))
		return engine.Event{}, err
	}

	// An admitted command finishes even if the auctioneer is stopping.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(a.ctx), a.opts.StoreTimeout)
	err = a.store.Commit(ctx, tr.Changes)
	cancel()
	if err != nil {
		a.log.Error("commit failed", zap.String("command", string(cmd.Type)), zap.Error(err))
		if errors.Is(err, engine.ErrAuctionActive) {
			return engine.Event{}, err
		}
		return engine.Event{}, fmt.Errorf("%w: %w", engine.ErrStore, err)
	}

	a.state = tr.State
	a.version++
	ev := tr.Event
	ev.Version = a.version
	a.snap.Store(&Snapshot{Version: a.version, State: tr.State, View: ev.View})
	a.hub.Publish(hub.Message{Version: a.version, Event: &ev})

	a.log.Info("committed",
		zap.String("command", string(cmd.Type)),
		zap.String("event", string(ev.Type)),
		zap.Int("version", ev.Version))
	return ev, nil
}

// Do submits cmd to the serial executor and waits for its outcome. If the
// executor has not picked the command up within the command timeout, or ctx
// ends first, the command is withdrawn unapplied and Do returns ErrBusy. Once
// picked up it runs to completion regardless of ctx.
func (a *Auctioneer) Do(ctx context.Context, cmd engine.Command) (engine.Event, error) {
	reply := make(chan Result, 1)
	c := new(claim)
	timer := time.NewTimer(a.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case a.inbox <- Submit{Cmd: cmd, Reply: reply, claim: c}:
	case <-timer.C:
		return engine.Event{}, engine.ErrBusy
	case <-ctx.Done():
		return engine.Event{}, fmt.Errorf("%w: %w", engine.ErrBusy, ctx.Err())
	case <-a.done:
		return engine.Event{}, ErrClosed
	}

	select {
	case r := <-reply:
		return r.Event, r.Err
	case <-timer.C:
		if c.withdraw() {
			return engine.Event{}, engine.ErrBusy
		}
	case <-ctx.Done():
		if c.withdraw() {
			return engine.Event{}, fmt.Errorf("%w: %w", engine.ErrBusy, ctx.Err())
		}
	case <-a.done:
	}
	r, ok := awaitReply(reply, a.done)
	if !ok {
		return engine.Event{}, ErrClosed
	}
	return r.Event, r.Err
}

// awaitReply waits for a message the loop has already taken. After done it
// only picks up a reply that was sent just before the loop stopped.
func awaitReply[T any](reply <-chan T, done <-chan struct{}) (T, bool) {
	select {
	case r := <-reply:
		return r, true
	case <-done:
		select {
		case r := <-reply:
			return r, true
		default:
			var zero T
			return zero, false
		}
	}
}

func (a *Auctioneer) Start(ctx context.Context) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdStart})
}

func (a *Auctioneer) Bid(ctx context.Context, teamID, amount int64) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdBid, TeamID: teamID, Amount: amount})
}

func (a *Auctioneer) Sold(ctx context.Context) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdSold})
}

func (a *Auctioneer) Unsold(ctx context.Context) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdUnsold})
}

// Jump moves to another lot. A non-zero lotID picks that lot; otherwise
// policy chooses, falling back to the configured advance policy.
func (a *Auctioneer) Jump(ctx context.Context, policy engine.Policy, lotID int64) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdJump, Policy: policy, LotID: lotID})
}

func (a *Auctioneer) EditLastBid(ctx context.Context, teamID, amount int64) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdEditLastBid, TeamID: teamID, Amount: amount})
}

func (a *Auctioneer) Pause(ctx context.Context) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdPause})
}

func (a *Auctioneer) Resume(ctx context.Context) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdResume})
}

func (a *Auctioneer) Reset(ctx context.Context) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdReset})
}

func (a *Auctioneer) SetSequence(ctx context.Context, orders map[int64]int) (engine.Event, error) {
	return a.Do(ctx, engine.Command{Type: engine.CmdSetSequence, Sequence: orders})
}

// Subscribe registers an observer. Its first message is the snapshot at the
// current version; every later commit follows in order. The wait is bounded
// like Do.
func (a *Auctioneer) Subscribe(ctx context.Context) (*hub.Subscription, error) {
	reply := make(chan JoinResult, 1)
	c := new(claim)
	timer := time.NewTimer(a.opts.CommandTimeout)
	defer timer.Stop()

	select {
	case a.inbox <- Join{Reply: reply, claim: c}:
	case <-timer.C:
		return nil, engine.ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		return nil, ErrClosed
	}

	select {
	case r := <-reply:
		return r.Sub, r.Err
	case <-timer.C:
		if c.withdraw() {
			return nil, engine.ErrBusy
		}
	case <-ctx.Done():
		if c.withdraw() {
			return nil, ctx.Err()
		}
	case <-a.done:
	}
	r, ok := awaitReply(reply, a.done)
	if !ok {
		return nil, ErrClosed
	}
	return r.Sub, r.Err
}

func (a *Auctioneer) Unsubscribe(sub *hub.Subscription) {
	a.hub.Unsubscribe(sub)
}

func (a *Auctioneer) Snapshot() *Snapshot { return a.snap.Load() }

func (a *Auctioneer) View() engine.View { return a.snap.Load().View }

func (a *Auctioneer) Version() int { return a.snap.Load().Version }

func (a *Auctioneer) MaxBidFor(teamID int64) (int64, error) {
	return a.machine.MaxBidFor(a.snap.Load().State, teamID)
}

func (a *Auctioneer) BidHistory(ctx context.Context, lotID int64) ([]engine.Bid, error) {
	bids, err := a.store.BidHistory(ctx, lotID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", engine.ErrUnknownLot, lotID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrStore, err)
	}
	return bids, nil
}

// Close stops the actor after the commands already queued ahead of it, or
// immediately once ctx expires.
func (a *Auctioneer) Close(ctx context.Context) error {
	select {
	case a.inbox <- Shutdown{}:
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.cancel()
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		a.cancel()
		<-a.done
		return ctx.Err()
	}
}

// Done is closed once the actor has stopped.
func (a *Auctioneer) Done() <-chan struct{} { return a.done }
