package market

import (
	"math"

	"github.com/rs/zerolog/log"

	"adversim/internal/orderbook"
)

const (
	// adverseWindow is how many recent maker fills feed spread adaptation.
	adverseWindow = 20
	// minAdaptFills is the window population below which adaptation is inert.
	minAdaptFills = 5
	// spreadFloorFactor bounds how far the spread can tighten below base.
	spreadFloorFactor = 0.5
	// adverseWidening scales the spread target with the adverse ratio.
	adverseWidening = 3.0
)

// MakerConfig configures the adaptive market maker.
type MakerConfig struct {
	ID            string
	BaseSpread    float64
	Size          int64
	AdaptRate     float64
	InventorySkew float64
}

type windowEntry struct {
	adverse bool
	ts      int64
}

// Maker quotes two-sided liquidity around the reference price, skews for
// inventory, and widens its spread as the share of informed counterparties
// in its recent fills grows. P&L is decomposed into a spread component
// (edge captured vs. the latent value at trade time) and an inventory
// component (one step of mark-to-market on pre-trade inventory).
type Maker struct {
	cfg  MakerConfig
	book *orderbook.Book
	seq  *orderbook.Sequence

	currentSpread float64
	inventory     int64

	spreadPnl           float64
	inventoryPnl        float64
	totalSpreadCaptured float64
	fillCount           int64

	window []windowEntry
}

func NewMaker(cfg MakerConfig, book *orderbook.Book, seq *orderbook.Sequence) *Maker {
	return &Maker{
		cfg:           cfg,
		book:          book,
		seq:           seq,
		currentSpread: cfg.BaseSpread,
	}
}

// Quote cancels all of the maker's resting orders and builds a fresh bid and
// ask around the reference price. The reference is the mid of the book as it
// stood before the cancel (the latent value when the book is one-sided), so
// quotes track the value only through inventory feedback and lag it by
// construction. The caller submits the pair, bid first. When the rounded
// pair crosses it is emitted as computed and the book self-matches it on
// submission.
func (m *Maker) Quote(ts int64) (bid, ask *orderbook.Order) {
	ref, ok := m.book.Mid()
	m.book.CancelAll(m.cfg.ID)
	if !ok {
		ref = m.book.TrueValue()
	}

	half := m.currentSpread / 2
	skew := float64(m.inventory) * m.cfg.InventorySkew

	bidPrice := roundCents(ref - half - skew)
	askPrice := roundCents(ref + half - skew)
	if bidPrice >= askPrice {
		log.Warn().
			Float64("bid", bidPrice).
			Float64("ask", askPrice).
			Int64("inventory", m.inventory).
			Msg("maker emitting crossed quotes")
	}

	bid = &orderbook.Order{
		ID:        m.seq.NextOrderID(),
		OwnerID:   m.cfg.ID,
		Class:     orderbook.ClassMaker,
		Side:      orderbook.Buy,
		Kind:      orderbook.Limit,
		Price:     bidPrice,
		Quantity:  m.cfg.Size,
		Timestamp: ts,
	}
	ask = &orderbook.Order{
		ID:        m.seq.NextOrderID(),
		OwnerID:   m.cfg.ID,
		Class:     orderbook.ClassMaker,
		Side:      orderbook.Sell,
		Kind:      orderbook.Limit,
		Price:     askPrice,
		Quantity:  m.cfg.Size,
		Timestamp: ts,
	}
	return bid, ask
}

// OnTrade ingests a trade in which this maker was the resting side.
// valueAfter is the latent value after the post-match price step; the
// inventory mark runs from the trade's true value to valueAfter on the
// inventory held before the fill. Trades where we are not the maker are
// ignored.
func (m *Maker) OnTrade(t orderbook.Trade, valueAfter float64) {
	if t.MakerID != m.cfg.ID {
		return
	}

	qty := float64(t.Quantity)
	var spreadCaptured float64
	if t.TakerSide == orderbook.Buy {
		spreadCaptured = (t.Price - t.TrueValue) * qty
	} else {
		spreadCaptured = (t.TrueValue - t.Price) * qty
	}

	prevInventory := m.inventory
	if t.TakerSide == orderbook.Buy {
		m.inventory -= t.Quantity
	} else {
		m.inventory += t.Quantity
	}

	inventoryMtm := float64(prevInventory) * (valueAfter - t.TrueValue)

	m.spreadPnl += spreadCaptured
	m.totalSpreadCaptured += math.Abs(spreadCaptured)
	m.fillCount++
	m.inventoryPnl += inventoryMtm

	m.window = append(m.window, windowEntry{
		adverse: t.TakerClass == orderbook.ClassInformed,
		ts:      t.Timestamp,
	})
	if len(m.window) > adverseWindow {
		m.window = m.window[1:]
	}

	m.adapt()
}

// adapt moves the quoted spread toward base·(1+3·adverseRatio), floored at
// half the base spread. There is no upper cap.
func (m *Maker) adapt() {
	if len(m.window) < minAdaptFills {
		return
	}
	ratio := m.adverseRatio()
	target := m.cfg.BaseSpread * (1 + adverseWidening*ratio)
	m.currentSpread += m.cfg.AdaptRate * (target - m.currentSpread)

	floor := spreadFloorFactor * m.cfg.BaseSpread
	if m.currentSpread < floor {
		m.currentSpread = floor
	}
}

func (m *Maker) adverseRatio() float64 {
	if len(m.window) == 0 {
		return 0
	}
	var adverse int
	for _, e := range m.window {
		if e.adverse {
			adverse++
		}
	}
	return float64(adverse) / float64(len(m.window))
}

// ID returns the maker's owner identity.
func (m *Maker) ID() string {
	return m.cfg.ID
}

// QuotedSpread returns the current adaptive spread.
func (m *Maker) QuotedSpread() float64 {
	return m.currentSpread
}

// Inventory returns the signed position, positive when long.
func (m *Maker) Inventory() int64 {
	return m.inventory
}

// AdverseRatio returns the informed fraction of the sliding fill window.
func (m *Maker) AdverseRatio() float64 {
	return m.adverseRatio()
}

// PnL is the cumulative realized plus marked P&L; by construction it equals
// the spread component plus the inventory component.
func (m *Maker) PnL() float64 {
	return m.spreadPnl + m.inventoryPnl
}

// MakerStats exposes the decomposed accounting counters.
type MakerStats struct {
	SpreadPnl           float64 `json:"spread_pnl"`
	InventoryPnl        float64 `json:"inventory_pnl"`
	TotalSpreadCaptured float64 `json:"total_spread_captured"`
	FillCount           int64   `json:"fill_count"`
	AvgRealizedSpread   float64 `json:"avg_realized_spread"`
}

func (m *Maker) Stats() MakerStats {
	stats := MakerStats{
		SpreadPnl:           m.spreadPnl,
		InventoryPnl:        m.inventoryPnl,
		TotalSpreadCaptured: m.totalSpreadCaptured,
		FillCount:           m.fillCount,
	}
	if m.fillCount > 0 {
		stats.AvgRealizedSpread = m.totalSpreadCaptured / float64(m.fillCount)
	}
	return stats
}

func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
