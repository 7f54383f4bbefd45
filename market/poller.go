package market

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Quoter resolves a batch of symbols.
type Quoter interface {
	FetchQuotes(ctx context.Context, symbols []string) []Quote
}

// Poller refreshes a symbol list on a timer. Each batch replaces the previous one.
type Poller struct {
	quoter   Quoter
	interval time.Duration
	log      *zap.Logger

	mu      sync.RWMutex
	symbols []string
	latest  []Quote
	at      time.Time
	subs    []func([]Quote)
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	stopped bool
	kick    chan struct{}
}

func NewPoller(q Quoter, symbols []string, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		quoter:   q,
		interval: interval,
		log:      log,
		symbols:  append([]string(nil), symbols...),
		kick:     make(chan struct{}, 1),
	}
}

// OnBatch registers fn to receive every stored batch.
func (p *Poller) OnBatch(fn func([]Quote)) {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	p.mu.Unlock()
}

// SetSymbols changes the list used from the next batch on.
func (p *Poller) SetSymbols(symbols []string) {
	p.mu.Lock()
	p.symbols = append([]string(nil), symbols...)
	p.mu.Unlock()
}

func (p *Poller) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.symbols...)
}

// Latest returns a copy of the last batch and when it was stored.
func (p *Poller) Latest() ([]Quote, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Quote(nil), p.latest...), p.at
}

// Start fetches one batch immediately and then one per interval until Stop
// or ctx is done. Calling Start twice is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running || p.stopped {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Refresh asks the running poller for an early batch.
func (p *Poller) Refresh() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Stop cancels the timer and any batch in flight. A batch that completes
// afterwards is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.kick:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	symbols := p.Symbols()
	if len(symbols) == 0 {
		return
	}
	batch := p.quoter.FetchQuotes(ctx, symbols)
	if ctx.Err() != nil {
		p.log.Debug("quote batch discarded after stop")
		return
	}
	p.store(batch)
}

func (p *Poller) store(batch []Quote) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.latest = batch
	p.at = time.Now()
	subs := append(([]func([]Quote))(nil), p.subs...)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(append([]Quote(nil), batch...))
	}
}
