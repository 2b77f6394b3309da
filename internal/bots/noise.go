package bots

import (
	"adversim/internal/orderbook"
	"adversim/internal/rng"
)

const (
	noiseMinQty int64 = 1
	noiseMaxQty int64 = 10
)

// NoiseTrader emits uninformed market orders: fair-coin side, small uniform
// size. The simulation decides arrival; per invocation the trader draws
// side, then quantity, from the shared generator.
type NoiseTrader struct {
	id  string
	rng *rng.Rand
	seq *orderbook.Sequence
}

func NewNoiseTrader(id string, r *rng.Rand, seq *orderbook.Sequence) *NoiseTrader {
	return &NoiseTrader{id: id, rng: r, seq: seq}
}

func (n *NoiseTrader) ID() string {
	return n.id
}

// Generate returns a fresh market order.
func (n *NoiseTrader) Generate(ts int64) *orderbook.Order {
	side := orderbook.Sell
	if n.rng.Bool(0.5) {
		side = orderbook.Buy
	}
	qty := n.rng.Int(noiseMinQty, noiseMaxQty)

	return &orderbook.Order{
		ID:        n.seq.NextOrderID(),
		OwnerID:   n.id,
		Class:     orderbook.ClassNoise,
		Side:      side,
		Kind:      orderbook.Market,
		Quantity:  qty,
		Timestamp: ts,
	}
}
