package bots

import (
	"math"

	"adversim/internal/orderbook"
	"adversim/internal/rng"
)

const (
	informedMinQty int64 = 5
	informedMaxQty int64 = 20

	// DefaultEdgeThreshold is the minimum absolute relative edge below which
	// the informed trader stays out of the market.
	DefaultEdgeThreshold = 0.0005
)

// InformedTrader trades on the gap between the latent true value and the
// observable reference price. When the relative edge clears its threshold it
// crosses the book with a market order sized larger than noise flow; the
// side follows the edge sign, with no randomness beyond size.
type InformedTrader struct {
	id            string
	rng           *rng.Rand
	seq           *orderbook.Sequence
	edgeThreshold float64
}

func NewInformedTrader(id string, r *rng.Rand, seq *orderbook.Sequence, edgeThreshold float64) *InformedTrader {
	if edgeThreshold <= 0 {
		edgeThreshold = DefaultEdgeThreshold
	}
	return &InformedTrader{id: id, rng: r, seq: seq, edgeThreshold: edgeThreshold}
}

func (i *InformedTrader) ID() string {
	return i.id
}

// Generate returns a market order when the edge clears the threshold, else
// nil without consuming any draws. refPrice is the book mid when two-sided,
// otherwise the latent value itself; the caller guarantees it is positive.
func (i *InformedTrader) Generate(ts int64, trueValue, refPrice float64) *orderbook.Order {
	edge := (trueValue - refPrice) / refPrice
	if math.Abs(edge) < i.edgeThreshold {
		return nil
	}

	side := orderbook.Sell
	if edge > 0 {
		side = orderbook.Buy
	}
	qty := i.rng.Int(informedMinQty, informedMaxQty)

	return &orderbook.Order{
		ID:        i.seq.NextOrderID(),
		OwnerID:   i.id,
		Class:     orderbook.ClassInformed,
		Side:      side,
		Kind:      orderbook.Market,
		Quantity:  qty,
		Timestamp: ts,
	}
}
