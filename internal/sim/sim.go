package sim

import (
	"sync"
	"sync/atomic"
	"time"

	"adversim/internal/bots"
	"adversim/internal/market"
	"adversim/internal/orderbook"
	"adversim/internal/rng"
)

// Owner identities for the three agent populations.
const (
	MakerID    = "mm"
	InformedID = "informed"
	NoiseID    = "noise"
)

// Metrics is the per-tick observable state of the run. Cumulative counters
// (trade, informed, adverse) never reset within a run.
type Metrics struct {
	Tick                int     `json:"tick"`
	TrueValue           float64 `json:"true_value"`
	Mid                 float64 `json:"mid"`
	Spread              float64 `json:"spread"`
	MMPnl               float64 `json:"mm_pnl"`
	MMInventory         int64   `json:"mm_inventory"`
	MMSpread            float64 `json:"mm_spread"`
	TradeCount          int64   `json:"trade_count"`
	InformedCount       int64   `json:"informed_count"`
	AdverseCount        int64   `json:"adverse_count"`
	SpreadPnl           float64 `json:"spread_pnl"`
	InventoryPnl        float64 `json:"inventory_pnl"`
	TotalSpreadCaptured float64 `json:"total_spread_captured"`
	FillCount           int64   `json:"fill_count"`
	AvgRealizedSpread   float64 `json:"avg_realized_spread"`
}

// Snapshot is what Step returns: the executed tick's index, the metrics
// after the tick, the book state, and the trades the tick produced.
type Snapshot struct {
	Tick    int                    `json:"tick"`
	Metrics Metrics                `json:"metrics"`
	Book    orderbook.BookSnapshot `json:"book"`
	Trades  []orderbook.Trade      `json:"trades"`
}

// Simulation sequences the per-tick pipeline: maker quotes, taker arrival,
// matching, latent-value step, maker bookkeeping, snapshot. It owns the
// shared generator and the id counters, so identical configurations replay
// identical trade and metric streams.
type Simulation struct {
	mu sync.Mutex

	cfg      Config
	rng      *rng.Rand
	seq      *orderbook.Sequence
	book     *orderbook.Book
	value    *market.ValueProcess
	maker    *market.Maker
	noise    *bots.NoiseTrader
	informed *bots.InformedTrader

	tick          int
	tradeCount    int64
	informedCount int64
	adverseCount  int64

	last    Snapshot
	history []Metrics

	running  atomic.Bool
	callback func(Snapshot)
}

// New validates the configuration and assembles a run at tick zero.
func New(cfg Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := rng.New(cfg.Seed)
	seq := orderbook.NewSequence()
	book := orderbook.New(seq, cfg.InitialPrice)

	s := &Simulation{
		cfg:   cfg,
		rng:   r,
		seq:   seq,
		book:  book,
		value: market.NewValueProcess(r, cfg.InitialPrice, cfg.Volatility, cfg.JumpProb, cfg.JumpSize),
		maker: market.NewMaker(market.MakerConfig{
			ID:            MakerID,
			BaseSpread:    cfg.BaseSpread,
			Size:          cfg.MakerSize,
			AdaptRate:     cfg.AdaptRate,
			InventorySkew: cfg.InventorySkew,
		}, book, seq),
		noise:    bots.NewNoiseTrader(NoiseID, r, seq),
		informed: bots.NewInformedTrader(InformedID, r, seq, cfg.EdgeThreshold),
	}
	s.last = Snapshot{
		Metrics: s.metricsLocked(),
		Book:    book.Snapshot(0),
	}
	return s, nil
}

// Step executes one tick and returns its snapshot.
func (s *Simulation) Step() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tick := s.tick
	ts := int64(tick) * s.cfg.TickMs

	// 1. Maker requotes: cancel-all inside Quote, then bid before ask.
	bid, ask := s.maker.Quote(ts)
	tickTrades := s.book.Submit(bid)
	tickTrades = append(tickTrades, s.book.Submit(ask)...)

	// 2. Taker arrival: one arrival draw per tick, then the class draw when
	// a taker arrives, then the taker's own draws.
	var taker *orderbook.Order
	if s.rng.Bool(s.cfg.ArrivalRate) {
		if s.rng.Bool(s.cfg.InformedRatio) {
			ref, ok := s.book.Mid()
			if !ok {
				ref = s.book.TrueValue()
			}
			taker = s.informed.Generate(ts, s.value.Value(), ref)
		} else {
			taker = s.noise.Generate(ts)
		}
	}
	if taker != nil {
		tickTrades = append(tickTrades, s.book.Submit(taker)...)
	}

	// 3. Latent value advances; trades in the NEXT tick see the new value.
	newValue, _ := s.value.Step()
	s.book.SetTrueValue(newValue)

	// 4. Maker bookkeeping in trade-emission order.
	for _, t := range tickTrades {
		s.tradeCount++
		if t.TakerClass == orderbook.ClassInformed {
			s.informedCount++
			if t.MakerID == MakerID {
				s.adverseCount++
			}
		}
		s.maker.OnTrade(t, newValue)
	}

	s.tick++

	m := s.metricsLocked()
	m.Tick = tick
	snap := Snapshot{
		Tick:    tick,
		Metrics: m,
		Book:    s.book.Snapshot(ts),
		Trades:  tickTrades,
	}
	s.last = snap
	s.history = append(s.history, m)
	return snap
}

func (s *Simulation) metricsLocked() Metrics {
	mid, _ := s.book.Mid()
	spread, _ := s.book.Spread()
	stats := s.maker.Stats()
	return Metrics{
		TrueValue:           s.value.Value(),
		Mid:                 mid,
		Spread:              spread,
		MMPnl:               s.maker.PnL(),
		MMInventory:         s.maker.Inventory(),
		MMSpread:            s.maker.QuotedSpread(),
		TradeCount:          s.tradeCount,
		InformedCount:       s.informedCount,
		AdverseCount:        s.adverseCount,
		SpreadPnl:           stats.SpreadPnl,
		InventoryPnl:        stats.InventoryPnl,
		TotalSpreadCaptured: stats.TotalSpreadCaptured,
		FillCount:           stats.FillCount,
		AvgRealizedSpread:   stats.AvgRealizedSpread,
	}
}

// OnSnapshot registers the callback Run invokes after every tick.
func (s *Simulation) OnSnapshot(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callback = fn
}

// Run iterates up to the configured tick count, invoking the registered
// callback per tick. With realtime set it sleeps the tick duration between
// iterations. Stop requests cooperative termination; the in-flight tick
// always completes.
func (s *Simulation) Run(realtime bool) {
	s.running.Store(true)
	defer s.running.Store(false)

	for s.running.Load() && s.Tick() < s.cfg.Ticks {
		snap := s.Step()

		s.mu.Lock()
		cb := s.callback
		s.mu.Unlock()
		if cb != nil {
			cb(snap)
		}

		if realtime {
			time.Sleep(time.Duration(s.cfg.TickMs) * time.Millisecond)
		}
	}
}

// Stop flags the run loop to exit after the current tick.
func (s *Simulation) Stop() {
	s.running.Store(false)
}

// Running reports whether a Run loop is active.
func (s *Simulation) Running() bool {
	return s.running.Load()
}

// Tick returns the number of completed ticks.
func (s *Simulation) Tick() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Config returns the run's configuration.
func (s *Simulation) Config() Config {
	return s.cfg
}

// GetTrades returns the cumulative trade log.
func (s *Simulation) GetTrades() []orderbook.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Trades()
}

// GetCurrentState returns the latest snapshot without advancing.
func (s *Simulation) GetCurrentState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// MetricsHistory returns a copy of the per-tick metric series.
func (s *Simulation) MetricsHistory() []Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Metrics, len(s.history))
	copy(out, s.history)
	return out
}
