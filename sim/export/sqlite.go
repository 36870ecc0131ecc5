package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/epon-sim/epon-sim/sim"
)

// ErrStoreClosed is returned when a ResultStore is used after Close.
var ErrStoreClosed = errors.New("result store is closed")

// ResultStore keeps the statistics of finished runs in a SQLite database,
// one row per run and one row per ONU of each run.
type ResultStore struct {
	db *sql.DB
}

// RunSummary is one stored run with its network-wide aggregates.
type RunSummary struct {
	ID         int64
	Policy     string
	Seed       int64
	NumONUs    int
	Horizon    float64
	Cycles     int
	MeanDelay  float64
	MeanEnergy float64
	Dropped    int64
}

// OpenResultStore opens (creating if needed) the database at path and
// initializes its schema. Use ":memory:" for a throwaway store.
func OpenResultStore(ctx context.Context, path string) (*ResultStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening result store: %w", err)
	}
	s := &ResultStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing result store schema: %w", err)
	}
	return s, nil
}

func (s *ResultStore) initSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			policy TEXT NOT NULL,
			seed INTEGER NOT NULL,
			num_onus INTEGER NOT NULL,
			horizon REAL NOT NULL,
			dba_cycles INTEGER NOT NULL,
			events INTEGER NOT NULL,
			mean_delay REAL NOT NULL,
			mean_energy REAL NOT NULL,
			dropped INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS onu_stats (
			run_id INTEGER NOT NULL REFERENCES runs(id),
			onu INTEGER NOT NULL,
			packets_received INTEGER NOT NULL,
			packets_sent INTEGER NOT NULL,
			packets_dropped INTEGER NOT NULL,
			average_delay REAL NOT NULL,
			time_off REAL NOT NULL,
			time_off_wait REAL NOT NULL,
			time_transition_to_on REAL NOT NULL,
			time_on REAL NOT NULL,
			energy REAL NOT NULL,
			PRIMARY KEY (run_id, onu)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_policy ON runs(policy)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores m in a single transaction and returns the new run id.
func (s *ResultStore) SaveRun(ctx context.Context, m *sim.Metrics) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	defer tx.Rollback()

	_, _, dropped := m.Totals()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (policy, seed, num_onus, horizon, dba_cycles, events, mean_delay, mean_energy, dropped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Policy, m.Seed, m.NumONUs, m.Horizon, m.Cycles, int64(m.EventsDispatched), m.MeanDelay(), m.MeanEnergy(), dropped)
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO onu_stats (run_id, onu, packets_received, packets_sent, packets_dropped, average_delay,
			time_off, time_off_wait, time_transition_to_on, time_on, energy)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	defer stmt.Close()
	for _, o := range m.ONUs {
		if _, err := stmt.ExecContext(ctx, id, o.ONU, o.PacketsReceived, o.PacketsSent, o.PacketsDropped, o.AverageDelay,
			o.TimeInState[sim.StateOff], o.TimeInState[sim.StateOffWait],
			o.TimeInState[sim.StateTransitionToOn], o.TimeInState[sim.StateOn], o.EnergyConsumption); err != nil {
			return 0, fmt.Errorf("saving ONU %d of run: %w", o.ONU, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("saving run: %w", err)
	}
	return id, nil
}

// Runs returns the stored runs of policy, or of every policy when empty, in insertion order.
func (s *ResultStore) Runs(ctx context.Context, policy string) ([]RunSummary, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, policy, seed, num_onus, horizon, dba_cycles, mean_delay, mean_energy, dropped
		 FROM runs WHERE ? = '' OR policy = ? ORDER BY id`, policy, policy)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Policy, &r.Seed, &r.NumONUs, &r.Horizon, &r.Cycles, &r.MeanDelay, &r.MeanEnergy, &r.Dropped); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ONUStats returns the per-ONU rows of run id, in ONU order. TotalDelay is
// not stored and is left zero.
func (s *ResultStore) ONUStats(ctx context.Context, id int64) ([]sim.ONUStatistics, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT onu, packets_received, packets_sent, packets_dropped, average_delay,
			time_off, time_off_wait, time_transition_to_on, time_on, energy
		 FROM onu_stats WHERE run_id = ? ORDER BY onu`, id)
	if err != nil {
		return nil, fmt.Errorf("querying ONU statistics: %w", err)
	}
	defer rows.Close()

	var stats []sim.ONUStatistics
	for rows.Next() {
		var o sim.ONUStatistics
		var off, offWait, tto, on float64
		if err := rows.Scan(&o.ONU, &o.PacketsReceived, &o.PacketsSent, &o.PacketsDropped, &o.AverageDelay,
			&off, &offWait, &tto, &on, &o.EnergyConsumption); err != nil {
			return nil, fmt.Errorf("scanning ONU statistics: %w", err)
		}
		o.TimeInState = map[sim.ONUState]float64{
			sim.StateOff:            off,
			sim.StateOffWait:        offWait,
			sim.StateTransitionToOn: tto,
			sim.StateOn:             on,
		}
		stats = append(stats, o)
	}
	return stats, rows.Err()
}

// Close closes the database. Further calls return ErrStoreClosed.
func (s *ResultStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
