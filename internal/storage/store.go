package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tickfeed/internal/feed"
)

// ErrRunNotFound is returned when a run ID has no row in the runs table.
var ErrRunNotFound = errors.New("storage: run not found")

// TickStore persists decoded ticks and feed run results in SQLite.
// One process writes at a time (see infra.CreateLockFile).
type TickStore struct {
	db *sql.DB
}

// Run is one recorded feed session.
type Run struct {
	ID          uuid.UUID
	Source      string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while the run is open
	Records     uint64
	Elapsed     time.Duration
	VWAP        decimal.Decimal
	TotalVolume decimal.Decimal
	Err         string
}

// RunStats is what FinishRun records about a completed session.
type RunStats struct {
	Records     uint64
	Elapsed     time.Duration
	VWAP        decimal.Decimal
	TotalVolume decimal.Decimal
	Err         error
}

// NewTickStore opens (or creates) the SQLite database at dbPath with WAL mode enabled.
func NewTickStore(dbPath string) (*TickStore, error) {
	// foreign_keys is per connection, so it goes in the DSN rather than the pragma list.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-8000;", // 8MB cache
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			records INTEGER NOT NULL DEFAULT 0,
			elapsed_us INTEGER NOT NULL DEFAULT 0,
			vwap TEXT NOT NULL DEFAULT '0',
			total_volume TEXT NOT NULL DEFAULT '0',
			error TEXT NOT NULL DEFAULT ''
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	// price_bits keeps the exact IEEE-754 pattern; price is NULL for NaN.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS ticks (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			price REAL,
			price_bits INTEGER NOT NULL,
			volume INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ticks table: %w", err)
	}

	return &TickStore{db: db}, nil
}

// BeginRun opens a new run for source and returns its ID.
func (s *TickStore) BeginRun(ctx context.Context, source string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, source, started_at) VALUES (?, ?, ?)",
		id.String(), source, time.Now().UnixMicro(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome of a run.
func (s *TickStore) FinishRun(ctx context.Context, id uuid.UUID, st RunStats) error {
	errText := ""
	if st.Err != nil {
		errText = st.Err.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, records = ?, elapsed_us = ?, vwap = ?, total_volume = ?, error = ?
		 WHERE id = ?`,
		time.Now().UnixMicro(), int64(st.Records), st.Elapsed.Microseconds(),
		st.VWAP.String(), st.TotalVolume.String(), errText, id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun loads one run.
func (s *TickStore) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	var (
		rawID                string
		startedAt, elapsedUS int64
		finishedAt           sql.NullInt64
		records              int64
		vwap, totalVolume    string
		run                  Run
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, started_at, finished_at, records, elapsed_us, vwap, total_volume, error
		 FROM runs WHERE id = ?`, id.String(),
	).Scan(&rawID, &run.Source, &startedAt, &finishedAt, &records, &elapsedUS, &vwap, &totalVolume, &run.Err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if run.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("corrupt run id %q: %w", rawID, err)
	}
	run.StartedAt = time.UnixMicro(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = time.UnixMicro(finishedAt.Int64)
	}
	run.Records = uint64(records)
	run.Elapsed = time.Duration(elapsedUS) * time.Microsecond
	if run.VWAP, err = decimal.NewFromString(vwap); err != nil {
		return nil, fmt.Errorf("corrupt vwap %q: %w", vwap, err)
	}
	if run.TotalVolume, err = decimal.NewFromString(totalVolume); err != nil {
		return nil, fmt.Errorf("corrupt total volume %q: %w", totalVolume, err)
	}
	return &run, nil
}

// SaveTicks stores recs as seq firstSeq, firstSeq+1, ... in one transaction.
func (s *TickStore) SaveTicks(ctx context.Context, runID uuid.UUID, firstSeq uint64, recs []feed.MarketRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO ticks (run_id, seq, ts, price, price_bits, volume) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	id := runID.String()
	for i, rec := range recs {
		price := sql.NullFloat64{Float64: rec.Price, Valid: !math.IsNaN(rec.Price)}
		bits := int64(math.Float64bits(rec.Price))
		if _, err := stmt.ExecContext(ctx, id, int64(firstSeq)+int64(i), rec.Timestamp, price, bits, rec.Volume); err != nil {
			return fmt.Errorf("failed to insert tick %d: %w", firstSeq+uint64(i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ticks: %w", err)
	}
	return nil
}

// LoadTicks returns all ticks of a run in sequence order.
func (s *TickStore) LoadTicks(ctx context.Context, runID uuid.UUID) ([]feed.MarketRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT ts, price_bits, volume FROM ticks WHERE run_id = ? ORDER BY seq ASC",
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var recs []feed.MarketRecord
	for rows.Next() {
		var (
			rec  feed.MarketRecord
			bits int64
		)
		if err := rows.Scan(&rec.Timestamp, &bits, &rec.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		rec.Price = math.Float64frombits(uint64(bits))
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return recs, nil
}

// CountTicks returns how many ticks are stored for a run.
func (s *TickStore) CountTicks(ctx context.Context, runID uuid.UUID) (uint64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ticks WHERE run_id = ?", runID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count ticks: %w", err)
	}
	return uint64(n), nil
}

// Close closes the database connection.
func (s *TickStore) Close() error {
	return s.db.Close()
}
