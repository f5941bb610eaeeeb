package schedule

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"
)

// Slots are the two daily sync slots.
var Slots = []int{1, 2}

// Schedule is one daily trigger slot.
type Schedule struct {
	Slot       int
	Time       string
	CronSpec   string
	IsActive   bool
	LastSyncAt *time.Time
	UpdatedAt  time.Time
}

// Store persists schedule slots.
type Store interface {
	List(ctx context.Context) ([]Schedule, error)
	// EnsureDefault inserts s unless its slot already exists.
	EnsureDefault(ctx context.Context, s Schedule) error
	Update(ctx context.Context, slot int, clock, spec string) error
	MarkSynced(ctx context.Context, slot int, at time.Time) error
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_schedules (
	slot          INT PRIMARY KEY,
	sync_time     TEXT NOT NULL,
	cron_spec     TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	last_sync_at  TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore keeps slots in the sync_schedules table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot, sync_time, cron_spec, is_active, last_sync_at, updated_at
		FROM sync_schedules ORDER BY slot`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var (
			sc   Schedule
			last sql.NullTime
		)
		if err := rows.Scan(&sc.Slot, &sc.Time, &sc.CronSpec, &sc.IsActive, &last, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		if last.Valid {
			sc.LastSyncAt = &last.Time
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) EnsureDefault(ctx context.Context, sc Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_schedules (slot, sync_time, cron_spec, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (slot) DO NOTHING
	`, sc.Slot, sc.Time, sc.CronSpec)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, slot int, clock, spec string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_schedules SET sync_time = $2, cron_spec = $3, updated_at = NOW()
		WHERE slot = $1
	`, slot, clock, spec)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUnknownSlot
	}
	return nil
}

func (s *PostgresStore) MarkSynced(ctx context.Context, slot int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_schedules SET last_sync_at = $2 WHERE slot = $1`, slot, at)
	return err
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[int]Schedule
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[int]Schedule)}
}

func (s *MemoryStore) List(_ context.Context) ([]Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Schedule
	for _, slot := range Slots {
		if sc, ok := s.slots[slot]; ok {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *MemoryStore) EnsureDefault(_ context.Context, sc Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slots[sc.Slot]; !ok {
		sc.IsActive = true
		sc.UpdatedAt = time.Now()
		s.slots[sc.Slot] = sc
	}
	return nil
}

func (s *MemoryStore) Update(_ context.Context, slot int, clock, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.slots[slot]
	if !ok {
		return ErrUnknownSlot
	}
	sc.Time, sc.CronSpec, sc.UpdatedAt = clock, spec, time.Now()
	s.slots[slot] = sc
	return nil
}

func (s *MemoryStore) MarkSynced(_ context.Context, slot int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.slots[slot]
	if !ok {
		return errors.New("schedule: slot not found")
	}
	sc.LastSyncAt = &at
	s.slots[slot] = sc
	return nil
}
