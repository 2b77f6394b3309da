package orderbook

import (
	"errors"
	"sort"

	"github.com/tidwall/btree"
)

var ErrOrderNotFound = errors.New("order not found")

// SnapshotDepth is the number of price levels reported per side.
const SnapshotDepth = 5

// PriceLevel holds the resting orders at one price, FIFO by arrival.
type PriceLevel struct {
	Price  float64
	Orders []*Order
}

// Remaining is the unfilled quantity summed across the level.
func (pl *PriceLevel) Remaining() int64 {
	var total int64
	for _, o := range pl.Orders {
		total += o.Remaining()
	}
	return total
}

type priceLevels = btree.BTreeG[*PriceLevel]

// Book is a price-time-priority order book for a single instrument. Both
// sides are kept best-first, so matching and snapshots walk each tree from
// its minimum. The book also carries the contemporaneous latent value, which
// is stamped onto every trade it emits.
type Book struct {
	bids *priceLevels // sorted descending, best bid first
	asks *priceLevels // sorted ascending, best ask first

	orders map[string]*Order
	seq    *Sequence

	trueValue float64
	trades    []Trade
}

func New(seq *Sequence, initialValue float64) *Book {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	return &Book{
		bids:      bids,
		asks:      asks,
		orders:    make(map[string]*Order),
		seq:       seq,
		trueValue: initialValue,
	}
}

// SetTrueValue records the latent value trades will be stamped with until the
// next call.
func (b *Book) SetTrueValue(v float64) {
	b.trueValue = v
}

func (b *Book) TrueValue() float64 {
	return b.trueValue
}

// Submit matches an order against resting liquidity and returns the trades
// it produced. A limit order with residual quantity rests; a market order's
// residual is discarded. Every submitted order is recorded in the id index.
func (b *Book) Submit(o *Order) []Trade {
	if o.ID == "" {
		o.ID = b.seq.NextOrderID()
	}
	b.orders[o.ID] = o

	trades := b.match(o)

	if o.Kind == Limit && !o.IsFilled() {
		b.rest(o)
	}
	return trades
}

func (b *Book) match(taker *Order) []Trade {
	opposite := b.asks
	if taker.Side == Sell {
		opposite = b.bids
	}

	var trades []Trade
	for !taker.IsFilled() {
		level, ok := opposite.MinMut()
		if !ok {
			break
		}
		if taker.Kind == Limit && !marketable(taker, level.Price) {
			break
		}

		for len(level.Orders) > 0 && !taker.IsFilled() {
			resting := level.Orders[0]
			qty := min(resting.Remaining(), taker.Remaining())

			taker.Filled += qty
			resting.Filled += qty

			trade := Trade{
				ID:           b.seq.NextTradeID(),
				Timestamp:    taker.Timestamp,
				Price:        level.Price,
				Quantity:     qty,
				TakerOrderID: taker.ID,
				TakerID:      taker.OwnerID,
				TakerSide:    taker.Side,
				TakerClass:   taker.Class,
				MakerOrderID: resting.ID,
				MakerID:      resting.OwnerID,
				MakerClass:   resting.Class,
				TrueValue:    b.trueValue,
			}
			trades = append(trades, trade)
			b.trades = append(b.trades, trade)

			if resting.IsFilled() {
				delete(b.orders, resting.ID)
				level.Orders = level.Orders[1:]
			}
		}

		if len(level.Orders) == 0 {
			opposite.Delete(level)
		}
	}
	return trades
}

func marketable(taker *Order, levelPrice float64) bool {
	if taker.Side == Buy {
		return levelPrice <= taker.Price
	}
	return levelPrice >= taker.Price
}

func (b *Book) rest(o *Order) {
	side := b.bids
	if o.Side == Sell {
		side = b.asks
	}
	if level, ok := side.GetMut(&PriceLevel{Price: o.Price}); ok {
		level.Orders = append(level.Orders, o)
		return
	}
	side.Set(&PriceLevel{Price: o.Price, Orders: []*Order{o}})
}

// Cancel removes an order by id. Cancelling an unknown id is reported but
// harmless; cancelling an index entry that no longer rests just drops the
// entry.
func (b *Book) Cancel(orderID string) error {
	o, ok := b.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	delete(b.orders, orderID)

	if o.Kind != Limit {
		return nil
	}

	side := b.bids
	if o.Side == Sell {
		side = b.asks
	}
	level, ok := side.GetMut(&PriceLevel{Price: o.Price})
	if !ok {
		return nil
	}
	for i, resting := range level.Orders {
		if resting.ID == o.ID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		side.Delete(level)
	}
	return nil
}

// CancelAll cancels every order the owner has in the index. Ids are visited
// in sorted order so repeated runs behave identically.
func (b *Book) CancelAll(ownerID string) {
	var ids []string
	for id, o := range b.orders {
		if o.OwnerID == ownerID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		b.Cancel(id)
	}
}

// GetOrder returns an indexed order by id.
func (b *Book) GetOrder(orderID string) (*Order, bool) {
	o, ok := b.orders[orderID]
	return o, ok
}

// BestBid returns the highest bid price, if any level rests.
func (b *Book) BestBid() (float64, bool) {
	level, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// BestAsk returns the lowest ask price, if any level rests.
func (b *Book) BestAsk() (float64, bool) {
	level, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return level.Price, true
}

// Mid returns the midpoint when the book is two-sided.
func (b *Book) Mid() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid + ask) / 2, true
}

// Spread returns best ask minus best bid when the book is two-sided.
func (b *Book) Spread() (float64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// LevelSnapshot is one aggregated price level with copies of its orders.
type LevelSnapshot struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   []Order `json:"orders"`
}

// BookSnapshot is the externally visible book state: bids descending, asks
// ascending, up to SnapshotDepth levels per side.
type BookSnapshot struct {
	Timestamp int64           `json:"timestamp"`
	Bids      []LevelSnapshot `json:"bids"`
	Asks      []LevelSnapshot `json:"asks"`
	BestBid   float64         `json:"best_bid"`
	BestAsk   float64         `json:"best_ask"`
}

// Levels returns up to SnapshotDepth aggregated levels per side, bids
// descending and asks ascending.
func (b *Book) Levels() (bids, asks []LevelSnapshot) {
	return collectLevels(b.bids, SnapshotDepth), collectLevels(b.asks, SnapshotDepth)
}

func (b *Book) Snapshot(ts int64) BookSnapshot {
	bids, asks := b.Levels()
	snap := BookSnapshot{
		Timestamp: ts,
		Bids:      bids,
		Asks:      asks,
	}
	if bid, ok := b.BestBid(); ok {
		snap.BestBid = bid
	}
	if ask, ok := b.BestAsk(); ok {
		snap.BestAsk = ask
	}
	return snap
}

func collectLevels(side *priceLevels, depth int) []LevelSnapshot {
	levels := make([]LevelSnapshot, 0, depth)
	side.Scan(func(level *PriceLevel) bool {
		ls := LevelSnapshot{
			Price:    level.Price,
			Quantity: level.Remaining(),
			Orders:   make([]Order, len(level.Orders)),
		}
		for i, o := range level.Orders {
			ls.Orders[i] = *o
		}
		levels = append(levels, ls)
		return len(levels) < depth
	})
	return levels
}

// Trades returns a copy of the cumulative trade log.
func (b *Book) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// TradeCount returns the number of trades emitted so far.
func (b *Book) TradeCount() int {
	return len(b.trades)
}
