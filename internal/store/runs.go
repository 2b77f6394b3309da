package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adversim/internal/orderbook"
	"adversim/internal/sim"
)

// Run is a persisted simulation run.
type Run struct {
	ID         string     `json:"id"`
	Config     sim.Config `json:"config"`
	Ticks      int        `json:"ticks"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CreateRun records the start of a run and returns its identity.
func (s *Store) CreateRun(cfg sim.Config) (string, error) {
	id := uuid.New().String()
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (id, config) VALUES (?, ?)`,
		id, string(cfgJSON),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the completion time and final tick count.
func (s *Store) FinishRun(runID string, ticks int) error {
	_, err := s.db.Exec(
		`UPDATE runs SET ticks = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		ticks, runID,
	)
	return err
}

// GetRun fetches a run by id.
func (s *Store) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, config, ticks, started_at, finished_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

// ListRuns returns runs newest-first. Start times have one-second
// resolution, so runs started within the same second come back in no
// defined order.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, config, ticks, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var cfgJSON string
	var finished sql.NullTime
	if err := row.Scan(&run.ID, &cfgJSON, &run.Ticks, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cfgJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// SaveTrades persists a run's trade log in emission order.
func (s *Store) SaveTrades(runID string, trades []orderbook.Trade) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO trades (run_id, seq, trade_id, ts, price, quantity,
			taker_order_id, taker_id, taker_side, taker_class,
			maker_order_id, maker_id, maker_class, true_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, t := range trades {
		_, err := stmt.Exec(
			runID, i, t.ID, t.Timestamp, t.Price, t.Quantity,
			t.TakerOrderID, t.TakerID, t.TakerSide.String(), t.TakerClass.String(),
			t.MakerOrderID, t.MakerID, t.MakerClass.String(), t.TrueValue,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// TradesForRun reads a run's trade log back in emission order.
func (s *Store) TradesForRun(runID string) ([]orderbook.Trade, error) {
	rows, err := s.db.Query(
		`SELECT trade_id, ts, price, quantity,
			taker_order_id, taker_id, taker_side, taker_class,
			maker_order_id, maker_id, maker_class, true_value
		 FROM trades WHERE run_id = ? ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []orderbook.Trade
	for rows.Next() {
		var t orderbook.Trade
		var takerSide, takerClass, makerClass string
		err := rows.Scan(
			&t.ID, &t.Timestamp, &t.Price, &t.Quantity,
			&t.TakerOrderID, &t.TakerID, &takerSide, &takerClass,
			&t.MakerOrderID, &t.MakerID, &makerClass, &t.TrueValue,
		)
		if err != nil {
			return nil, err
		}
		t.TakerSide = parseSide(takerSide)
		t.TakerClass = parseClass(takerClass)
		t.MakerClass = parseClass(makerClass)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveMetrics persists a run's per-tick metric series. Only the tick, value,
// book, maker P&L/inventory/spread and count fields are stored; the maker's
// decomposed stats (spread/inventory P&L, spread captured, fill count,
// average realized spread) are not.
func (s *Store) SaveMetrics(runID string, history []sim.Metrics) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO metrics (run_id, tick, true_value, mid, spread,
			mm_pnl, mm_inventory, mm_spread,
			trade_count, informed_count, adverse_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range history {
		_, err := stmt.Exec(
			runID, m.Tick, m.TrueValue, m.Mid, m.Spread,
			m.MMPnl, m.MMInventory, m.MMSpread,
			m.TradeCount, m.InformedCount, m.AdverseCount,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MetricsForRun reads a run's metric series back in tick order. Fields that
// SaveMetrics does not store are left zero.
func (s *Store) MetricsForRun(runID string) ([]sim.Metrics, error) {
	rows, err := s.db.Query(
		`SELECT tick, true_value, mid, spread, mm_pnl, mm_inventory, mm_spread,
			trade_count, informed_count, adverse_count
		 FROM metrics WHERE run_id = ? ORDER BY tick`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []sim.Metrics
	for rows.Next() {
		var m sim.Metrics
		err := rows.Scan(
			&m.Tick, &m.TrueValue, &m.Mid, &m.Spread,
			&m.MMPnl, &m.MMInventory, &m.MMSpread,
			&m.TradeCount, &m.InformedCount, &m.AdverseCount,
		)
		if err != nil {
			return nil, err
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

func parseSide(s string) orderbook.Side {
	if s == "buy" {
		return orderbook.Buy
	}
	return orderbook.Sell
}

func parseClass(s string) orderbook.Class {
	switch s {
	case "maker":
		return orderbook.ClassMaker
	case "informed":
		return orderbook.ClassInformed
	default:
		return orderbook.ClassNoise
	}
}
