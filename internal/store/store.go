package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awaistahir/smart-heat/internal/engine"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store handles persistent storage using SQLite
type Store struct {
	db *sql.DB
}

// Run is one recorded scheduling cycle
type Run struct {
	ID          string              `json:"id"`
	CreatedAt   time.Time           `json:"created_at"`
	ProfileID   string              `json:"profile_id"`
	Strategy    engine.Strategy     `json:"strategy"`
	Summary     engine.Summary      `json:"summary"`
	Transitions []engine.Transition `json:"transitions"`
}

// NewStore creates a new store and initializes the database
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// initialize creates the database schema
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		comfort_windows TEXT,
		preheat_slots INTEGER DEFAULT 2,
		retain_slots INTEGER DEFAULT 4,
		strategy TEXT DEFAULT 'greedy',
		power_kw REAL DEFAULT 1.0,
		timezone TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS price_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tariff TEXT NOT NULL,
		date TEXT NOT NULL,
		rates TEXT NOT NULL,
		fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tariff, date)
	);

	CREATE TABLE IF NOT EXISTS schedule_runs (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		summary TEXT NOT NULL,
		transitions TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (profile_id) REFERENCES profiles(id)
	);

	CREATE INDEX IF NOT EXISTS idx_price_cache_date ON price_cache(tariff, date);
	CREATE INDEX IF NOT EXISTS idx_schedule_runs_created ON schedule_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveProfile saves or updates a heating profile
func (s *Store) SaveProfile(p *engine.Profile) error {
	comfortJSON, err := json.Marshal(p.Comfort)
	if err != nil {
		return fmt.Errorf("encoding comfort windows: %w", err)
	}

	strategy := string(p.Config.Strategy)
	if strategy == "" {
		strategy = string(engine.StrategyGreedy)
	}

	query := `INSERT OR REPLACE INTO profiles
		(id, name, comfort_windows, preheat_slots, retain_slots, strategy, power_kw, timezone, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, p.ID, p.Name, string(comfortJSON), p.Config.PreheatSlots, p.Config.RetainSlots,
		strategy, p.PowerKW, p.Timezone, time.Now())

	return err
}

// GetProfile retrieves a profile by ID
func (s *Store) GetProfile(id string) (*engine.Profile, error) {
	query := `SELECT id, name, comfort_windows, preheat_slots, retain_slots, strategy, power_kw, timezone
		FROM profiles WHERE id = ?`

	var p engine.Profile
	var comfortJSON, strategy string

	err := s.db.QueryRow(query, id).Scan(&p.ID, &p.Name, &comfortJSON, &p.Config.PreheatSlots,
		&p.Config.RetainSlots, &strategy, &p.PowerKW, &p.Timezone)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(comfortJSON), &p.Comfort); err != nil {
		return nil, fmt.Errorf("decoding comfort windows: %w", err)
	}
	p.Config.Strategy = engine.Strategy(strategy)

	return &p, nil
}

// CachePrices stores fetched rates under the local date they start on
func (s *Store) CachePrices(tariff string, date time.Time, rates []engine.Rate) error {
	ratesJSON, err := json.Marshal(rates)
	if err != nil {
		return fmt.Errorf("encoding rates: %w", err)
	}
	dateStr := date.Format("2006-01-02")

	query := `INSERT OR REPLACE INTO price_cache (tariff, date, rates, fetched_at)
		VALUES (?, ?, ?, ?)`

	_, err = s.db.Exec(query, tariff, dateStr, string(ratesJSON), time.Now())
	return err
}

// GetCachedPrices retrieves cached rates and when they were fetched
func (s *Store) GetCachedPrices(tariff string, date time.Time) ([]engine.Rate, time.Time, error) {
	dateStr := date.Format("2006-01-02")
	query := `SELECT rates, fetched_at FROM price_cache WHERE tariff = ? AND date = ?`

	var ratesJSON string
	var fetchedAt time.Time
	err := s.db.QueryRow(query, tariff, dateStr).Scan(&ratesJSON, &fetchedAt)
	if err != nil {
		return nil, time.Time{}, err
	}

	var rates []engine.Rate
	if err := json.Unmarshal([]byte(ratesJSON), &rates); err != nil {
		return nil, time.Time{}, err
	}

	return rates, fetchedAt, nil
}

// RecordRun stores the outcome of a scheduling cycle and returns its ID
func (s *Store) RecordRun(profileID string, strategy engine.Strategy, res *engine.Result) (*Run, error) {
	run := &Run{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		ProfileID:   profileID,
		Strategy:    strategy,
		Summary:     res.Summary,
		Transitions: res.Transitions,
	}

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, fmt.Errorf("encoding summary: %w", err)
	}
	transitionsJSON, err := json.Marshal(run.Transitions)
	if err != nil {
		return nil, fmt.Errorf("encoding transitions: %w", err)
	}

	query := `INSERT INTO schedule_runs (id, profile_id, strategy, summary, transitions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	if _, err := s.db.Exec(query, run.ID, profileID, string(strategy), string(summaryJSON),
		string(transitionsJSON), run.CreatedAt); err != nil {
		return nil, err
	}
	return run, nil
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(limit int) ([]Run, error) {
	query := `SELECT id, profile_id, strategy, summary, transitions, created_at
		FROM schedule_runs ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var strategy, summaryJSON, transitionsJSON string
		if err := rows.Scan(&r.ID, &r.ProfileID, &strategy, &summaryJSON, &transitionsJSON, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Strategy = engine.Strategy(strategy)
		if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
			return nil, fmt.Errorf("decoding run %s summary: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(transitionsJSON), &r.Transitions); err != nil {
			return nil, fmt.Errorf("decoding run %s transitions: %w", r.ID, err)
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// PruneRuns deletes runs older than the cutoff
func (s *Store) PruneRuns(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM schedule_runs WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
