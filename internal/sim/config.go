package sim

import "fmt"

// Config is the full, immutable configuration of a run. Reconfiguration is
// modelled as constructing a new Simulation.
type Config struct {
	Seed          int64   `json:"seed" mapstructure:"seed"`
	InitialPrice  float64 `json:"initial_price" mapstructure:"initial_price"`
	Volatility    float64 `json:"volatility" mapstructure:"volatility"`
	JumpProb      float64 `json:"jump_prob" mapstructure:"jump_prob"`
	JumpSize      float64 `json:"jump_size" mapstructure:"jump_size"`
	BaseSpread    float64 `json:"base_spread" mapstructure:"base_spread"`
	MakerSize     int64   `json:"maker_size" mapstructure:"maker_size"`
	AdaptRate     float64 `json:"adapt_rate" mapstructure:"adapt_rate"`
	InventorySkew float64 `json:"inventory_skew" mapstructure:"inventory_skew"`
	InformedRatio float64 `json:"informed_ratio" mapstructure:"informed_ratio"`
	ArrivalRate   float64 `json:"arrival_rate" mapstructure:"arrival_rate"`
	EdgeThreshold float64 `json:"edge_threshold" mapstructure:"edge_threshold"`
	TickMs        int64   `json:"tick_ms" mapstructure:"tick_ms"`
	Ticks         int     `json:"ticks" mapstructure:"ticks"`
}

// DefaultConfig returns the stock parameterization.
func DefaultConfig() Config {
	return Config{
		Seed:          42,
		InitialPrice:  100,
		Volatility:    0.001,
		JumpProb:      0.02,
		JumpSize:      0.01,
		BaseSpread:    0.10,
		MakerSize:     100,
		AdaptRate:     0.1,
		InventorySkew: 0.0005,
		InformedRatio: 0.2,
		ArrivalRate:   0.3,
		EdgeThreshold: 0.0005,
		TickMs:        100,
		Ticks:         1000,
	}
}

// Validate rejects configurations that violate the construction
// preconditions. Anything that passes here cannot fail later: the core has
// no recoverable runtime errors.
func (c Config) Validate() error {
	if c.InitialPrice <= 0 {
		return fmt.Errorf("initial price must be positive, got %v", c.InitialPrice)
	}
	if c.Volatility < 0 {
		return fmt.Errorf("volatility must be non-negative, got %v", c.Volatility)
	}
	if c.JumpProb < 0 || c.JumpProb > 1 {
		return fmt.Errorf("jump probability must be in [0,1], got %v", c.JumpProb)
	}
	if c.JumpSize < 0 {
		return fmt.Errorf("jump size must be non-negative, got %v", c.JumpSize)
	}
	if c.BaseSpread < 0 {
		return fmt.Errorf("base spread must be non-negative, got %v", c.BaseSpread)
	}
	if c.MakerSize <= 0 {
		return fmt.Errorf("maker size must be positive, got %v", c.MakerSize)
	}
	if c.AdaptRate < 0 || c.AdaptRate > 1 {
		return fmt.Errorf("adapt rate must be in [0,1], got %v", c.AdaptRate)
	}
	if c.InformedRatio < 0 || c.InformedRatio > 1 {
		return fmt.Errorf("informed ratio must be in [0,1], got %v", c.InformedRatio)
	}
	if c.ArrivalRate < 0 || c.ArrivalRate > 1 {
		return fmt.Errorf("arrival rate must be in [0,1], got %v", c.ArrivalRate)
	}
	if c.EdgeThreshold <= 0 {
		return fmt.Errorf("edge threshold must be positive, got %v", c.EdgeThreshold)
	}
	if c.TickMs <= 0 {
		return fmt.Errorf("tick duration must be positive, got %v", c.TickMs)
	}
	if c.Ticks <= 0 {
		return fmt.Errorf("tick count must be positive, got %v", c.Ticks)
	}
	return nil
}
