package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adversim/internal/orderbook"
)

func mustSim(t *testing.T, cfg Config) *Simulation {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative price", func(c *Config) { c.InitialPrice = -1 }},
		{"zero size", func(c *Config) { c.MakerSize = 0 }},
		{"arrival rate above one", func(c *Config) { c.ArrivalRate = 1.5 }},
		{"negative informed ratio", func(c *Config) { c.InformedRatio = -0.1 }},
		{"zero ticks", func(c *Config) { c.Ticks = 0 }},
		{"zero tick duration", func(c *Config) { c.TickMs = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			_, err := New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestColdStartQuote(t *testing.T) {
	s := mustSim(t, DefaultConfig())

	snap := s.Step()
	require.Equal(t, 0, snap.Tick)
	assert.Empty(t, snap.Trades)
	assert.Equal(t, int64(0), snap.Metrics.MMInventory)

	require.Len(t, snap.Book.Bids, 1)
	require.Len(t, snap.Book.Asks, 1)
	assert.InDelta(t, 99.95, snap.Book.Bids[0].Price, 1e-9)
	assert.InDelta(t, 100.05, snap.Book.Asks[0].Price, 1e-9)
	assert.Equal(t, int64(100), snap.Book.Bids[0].Quantity)
	assert.Equal(t, int64(100), snap.Book.Asks[0].Quantity)
}

func TestDeterminism(t *testing.T) {
	a := mustSim(t, DefaultConfig())
	b := mustSim(t, DefaultConfig())

	for i := 0; i < 300; i++ {
		a.Step()
		b.Step()
	}

	require.Equal(t, a.GetTrades(), b.GetTrades())
	require.Equal(t, a.MetricsHistory(), b.MetricsHistory())
}

func TestNoiseOnlyRegime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InformedRatio = 0
	cfg.Ticks = 200
	s := mustSim(t, cfg)

	s.Run(false)
	require.Equal(t, 200, s.Tick())

	for _, m := range s.MetricsHistory() {
		assert.Equal(t, int64(0), m.InformedCount)
		assert.Equal(t, int64(0), m.AdverseCount)
		assert.GreaterOrEqual(t, m.MMSpread, 0.05-1e-9)
		assert.LessOrEqual(t, m.MMSpread, 0.10+1e-9)
	}
	assert.Greater(t, s.GetCurrentState().Metrics.TradeCount, int64(0))
}

func TestToxicRegime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InformedRatio = 0.8
	cfg.Ticks = 500
	s := mustSim(t, cfg)

	s.Run(false)
	final := s.GetCurrentState().Metrics

	assert.Greater(t, final.MMSpread, cfg.BaseSpread)
	require.Greater(t, final.TradeCount, int64(0))
	assert.Greater(t, float64(final.AdverseCount)/float64(final.TradeCount), 0.3)
}

func TestPnlDecompositionHoldsEveryTick(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticks = 400
	s := mustSim(t, cfg)
	s.Run(false)

	for _, m := range s.MetricsHistory() {
		assert.InDelta(t, m.SpreadPnl+m.InventoryPnl, m.MMPnl, 1e-9)
		assert.GreaterOrEqual(t, m.MMSpread, 0.5*cfg.BaseSpread-1e-9)
	}
}

func TestTradesCarryPreStepTrueValue(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticks = 300
	s := mustSim(t, cfg)

	var snaps []Snapshot
	for i := 0; i < cfg.Ticks; i++ {
		snaps = append(snaps, s.Step())
	}

	history := s.MetricsHistory()
	for _, snap := range snaps {
		want := cfg.InitialPrice
		if snap.Tick > 0 {
			// The value set by the previous tick's price step.
			want = history[snap.Tick-1].TrueValue
		}
		for _, trade := range snap.Trades {
			assert.Equal(t, want, trade.TrueValue, "tick %d", snap.Tick)
		}
	}
}

func TestArrivalDrawKeepsStreamAligned(t *testing.T) {
	// With arrival rate 0 a tick consumes exactly one taker draw (the
	// arrival Bernoulli) regardless of the informed ratio, so the latent
	// value paths of the two regimes stay identical.
	cfgA := DefaultConfig()
	cfgA.ArrivalRate = 0
	cfgA.InformedRatio = 0
	cfgB := DefaultConfig()
	cfgB.ArrivalRate = 0
	cfgB.InformedRatio = 1

	a := mustSim(t, cfgA)
	b := mustSim(t, cfgB)
	for i := 0; i < 200; i++ {
		sa := a.Step()
		sb := b.Step()
		require.Equal(t, sa.Metrics.TrueValue, sb.Metrics.TrueValue)
	}
}

func TestRunStopsAtConfiguredTicks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticks = 50
	s := mustSim(t, cfg)

	var calls int
	s.OnSnapshot(func(Snapshot) { calls++ })
	s.Run(false)

	assert.Equal(t, 50, s.Tick())
	assert.Equal(t, 50, calls)
	assert.False(t, s.Running())

	final := s.GetCurrentState().Metrics
	assert.Equal(t, final.TradeCount, int64(len(s.GetTrades())))
}

func TestStopIsCooperative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticks = 1000
	s := mustSim(t, cfg)

	s.OnSnapshot(func(snap Snapshot) {
		if snap.Tick == 9 {
			s.Stop()
		}
	})
	s.Run(false)

	// The tick in flight completes, nothing after it runs.
	assert.Equal(t, 10, s.Tick())
}

func TestGetCurrentStateDoesNotAdvance(t *testing.T) {
	s := mustSim(t, DefaultConfig())

	before := s.GetCurrentState()
	assert.Equal(t, 0, s.Tick())

	s.Step()
	after := s.GetCurrentState()
	assert.Equal(t, 1, s.Tick())
	assert.NotEqual(t, before.Book, after.Book)

	again := s.GetCurrentState()
	assert.Equal(t, after.Tick, again.Tick)
	assert.Equal(t, 1, s.Tick())
}

func TestMakerAccumulatesAdverseFills(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InformedRatio = 1
	cfg.ArrivalRate = 1
	cfg.Ticks = 300
	s := mustSim(t, cfg)
	s.Run(false)

	final := s.GetCurrentState().Metrics
	require.Greater(t, final.TradeCount, int64(0))
	assert.Equal(t, final.InformedCount, final.AdverseCount,
		"every informed trade rests against the maker")
	assert.Positive(t, final.FillCount)
}

func TestAllTradesHavePositiveQuantityAndPrice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ticks = 500
	s := mustSim(t, cfg)
	s.Run(false)

	trades := s.GetTrades()
	require.NotEmpty(t, trades)
	seen := make(map[string]bool)
	for _, tr := range trades {
		assert.Greater(t, tr.Quantity, int64(0))
		assert.Greater(t, tr.Price, 0.0)
		assert.False(t, seen[tr.ID], "duplicate trade id %s", tr.ID)
		seen[tr.ID] = true
		assert.Equal(t, orderbook.ClassMaker, tr.MakerClass)
	}
}
