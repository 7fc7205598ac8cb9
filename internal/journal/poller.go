// Package journal polls the WebAPI site journal and emits typed events.
package journal

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/allegro-webapi/internal/metrics"
	"github.com/and161185/allegro-webapi/internal/model"
	"github.com/and161185/allegro-webapi/internal/repository"
	"github.com/and161185/allegro-webapi/internal/rpc"
)

// Defaults observed for doGetSiteJournal polling.
const (
	DefaultInterval = time.Second
	DefaultInfoType = 1 // purchase events channel
)

// Caller issues privileged calls; session.Manager implements it.
type Caller interface {
	Call(ctx context.Context, op string, params rpc.Params) (rpc.Result, error)
}

// Handler receives events of the kind it subscribed to.
type Handler func(model.Event)

// Option customizes a Poller.
type Option func(*Poller)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithInfoType selects the journal channel.
func WithInfoType(t int) Option {
	return func(p *Poller) { p.infoType = t }
}

// WithDedup enables rowId watermarking backed by store.
func WithDedup(store repository.WatermarkRepository) Option {
	return func(p *Poller) { p.marks = store }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides time.Now for Event.ObservedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

type subscription struct {
	id   uint64
	kind model.EventKind
	h    Handler
}

// Poller runs doGetSiteJournal on a fixed period. Polls are serialized,
// scheduled or manual; a tick that fires while a poll is still running is
// dropped.
type Poller struct {
	calls    Caller
	interval time.Duration
	infoType int
	marks    repository.WatermarkRepository
	log      *zap.Logger
	now      func() time.Time
	ticks    func(time.Duration) (<-chan time.Time, func())

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64

	// pollMu spans watermark Load through Save.
	pollMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller constructs a stopped Poller.
func NewPoller(calls Caller, opts ...Option) *Poller {
	p := &Poller{
		calls:    calls,
		interval: DefaultInterval,
		infoType: DefaultInfoType,
		log:      zap.NewNop(),
		now:      time.Now,
		ticks: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Subscribe registers h for events of kind and returns a function that
// removes it. Handlers run on the poll goroutine in subscription order.
func (p *Poller) Subscribe(kind model.EventKind, h Handler) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscription{id: id, kind: kind, h: h})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// Start launches the poll loop. Calling Start on a running Poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for an in-flight poll to return.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	tick, stop := p.ticks(p.interval)
	defer stop()

	p.log.Info("journal poller started",
		zap.Duration("interval", p.interval),
		zap.Int("info_type", p.infoType),
		zap.Bool("dedup", p.marks != nil),
	)
	for {
		select {
		case <-ctx.Done():
			p.log.Info("journal poller stopped")
			return
		case <-tick:
		}
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("journal poll failed", zap.Error(err))
		}
	}
}

// PollOnce fetches the journal once and emits events for entries of
// interest. It returns the number of events emitted. Concurrent calls wait
// for each other.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	params := rpc.Params{"infoType": p.infoType}

	var mark int64
	if p.marks != nil {
		m, err := p.marks.Load(ctx)
		if err != nil {
			metrics.RecordPoll(false)
			return 0, fmt.Errorf("load watermark: %w", err)
		}
		mark = m
		if mark > 0 {
			params["startingPoint"] = mark
		}
	}

	res, err := p.calls.Call(ctx, rpc.OpGetSiteJournal, params)
	if err != nil {
		metrics.RecordPoll(false)
		return 0, err
	}

	high := mark
	emitted := 0
	for _, e := range model.ParseJournal(res) {
		if p.marks != nil && e.RowID <= mark {
			continue
		}
		if e.RowID > high {
			high = e.RowID
		}
		kind, ok := model.KindOf(e.ChangeType)
		if !ok {
			continue
		}
		p.emit(model.Event{
			Kind:       kind,
			ItemID:     e.ItemID,
			RowID:      e.RowID,
			ChangeType: e.ChangeType,
			ObservedAt: p.now(),
		})
		emitted++
	}

	if p.marks != nil && high > mark {
		if err := p.marks.Save(ctx, high); err != nil {
			metrics.RecordPoll(false)
			return emitted, fmt.Errorf("save watermark: %w", err)
		}
	}
	metrics.RecordPoll(true)
	return emitted, nil
}

func (p *Poller) emit(ev model.Event) {
	p.mu.RLock()
	var hs []Handler
	for _, s := range p.subs {
		if s.kind == ev.Kind {
			hs = append(hs, s.h)
		}
	}
	p.mu.RUnlock()

	metrics.RecordEvent(string(ev.Kind))
	for _, h := range hs {
		p.deliver(h, ev)
	}
}

func (p *Poller) deliver(h Handler, ev model.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("journal subscriber panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("kind", string(ev.Kind)),
				zap.Int64("item_id", ev.ItemID),
			)
		}
	}()
	h(ev)
}
