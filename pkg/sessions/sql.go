package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/platinummonkey/ruckstats/pkg/period"
)

// Supported database/sql drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// ErrUnsupportedDriver is returned for drivers other than sqlite3 and postgres
var ErrUnsupportedDriver = errors.New("unsupported session store driver")

// SQLConfig holds record store connection configuration
type SQLConfig struct {
	Driver      string
	DSN         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// SQLStore reads records from a sessions table
type SQLStore struct {
	db     *sql.DB
	driver string
}

const selectColumns = `id, started_at, ended_at, distance_meters, duration_seconds,
		load_weight_kg, calories, average_pace, elevation_gain, elevation_loss,
		terrain, weather`

// OpenSQLStore opens and pings a database connection pool
func OpenSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	if cfg.Driver != DriverSQLite && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	}
	db.SetConnMaxLifetime(cfg.MaxLifetime)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	return NewSQLStore(db, cfg.Driver), nil
}

// NewSQLStore wraps an existing connection pool
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// DB returns the underlying connection pool
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the sessions table when it does not exist
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	realType := "REAL"
	timeType := "TIMESTAMP"
	if s.driver == DriverPostgres {
		realType = "DOUBLE PRECISION"
		timeType = "TIMESTAMPTZ"
	}

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at %[2]s NOT NULL,
			ended_at %[2]s NULL,
			distance_meters %[1]s NOT NULL DEFAULT 0,
			duration_seconds %[1]s NOT NULL DEFAULT 0,
			load_weight_kg %[1]s NOT NULL DEFAULT 0,
			calories %[1]s NOT NULL DEFAULT 0,
			average_pace %[1]s NOT NULL DEFAULT 0,
			elevation_gain %[1]s NOT NULL DEFAULT 0,
			elevation_loss %[1]s NOT NULL DEFAULT 0,
			terrain TEXT NULL,
			weather TEXT NULL
		)`, realType, timeType)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	index := `CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions (started_at)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("failed to create sessions index: %w", err)
	}
	return nil
}

// Insert writes a record. The store is owned elsewhere; this exists for
// seeding local databases and tests.
func (s *SQLStore) Insert(ctx context.Context, r Record) error {
	terrain, weather, err := encodeJSONColumns(r)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO sessions (` + selectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var endedAt sql.NullTime
	if r.EndedAt != nil {
		endedAt = sql.NullTime{Time: r.EndedAt.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query,
		r.ID.String(), r.StartedAt.UTC(), endedAt,
		r.Distance, r.Duration, r.LoadWeight, r.Calories, r.AveragePace,
		r.ElevationGain, r.ElevationLoss, terrain, weather,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", r.ID, err)
	}
	return nil
}

// FetchCompleteSessions implements Store. Times are bound in UTC: sqlite
// keeps them as text with the zone offset and compares them as strings.
func (s *SQLStore) FetchCompleteSessions(ctx context.Context, rng period.Range) ([]Record, error) {
	query := s.rebind(`
		SELECT ` + selectColumns + `
		FROM sessions
		WHERE ended_at IS NOT NULL
		  AND started_at >= ?
		  AND started_at < ?
		ORDER BY started_at ASC, id ASC`)

	rows, err := s.db.QueryContext(ctx, query, rng.Start.UTC(), rng.End.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return records, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		r       Record
		id      string
		endedAt sql.NullTime
		terrain sql.NullString
		weather sql.NullString
	)

	err := rows.Scan(
		&id, &r.StartedAt, &endedAt,
		&r.Distance, &r.Duration, &r.LoadWeight, &r.Calories, &r.AveragePace,
		&r.ElevationGain, &r.ElevationLoss, &terrain, &weather,
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to scan session: %w", err)
	}

	r.ID, err = uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("invalid session id %q: %w", id, err)
	}

	if endedAt.Valid {
		ended := endedAt.Time
		r.EndedAt = &ended
	}

	if terrain.Valid && terrain.String != "" {
		if err := json.Unmarshal([]byte(terrain.String), &r.Terrain); err != nil {
			return Record{}, fmt.Errorf("invalid terrain for session %s: %w", id, err)
		}
	}

	if weather.Valid && weather.String != "" {
		var w Weather
		if err := json.Unmarshal([]byte(weather.String), &w); err != nil {
			return Record{}, fmt.Errorf("invalid weather for session %s: %w", id, err)
		}
		r.Weather = &w
	}

	return r, nil
}

func encodeJSONColumns(r Record) (sql.NullString, sql.NullString, error) {
	var terrain, weather sql.NullString

	if len(r.Terrain) > 0 {
		data, err := json.Marshal(r.Terrain)
		if err != nil {
			return terrain, weather, fmt.Errorf("failed to encode terrain: %w", err)
		}
		terrain = sql.NullString{String: string(data), Valid: true}
	}

	if r.Weather != nil {
		data, err := json.Marshal(r.Weather)
		if err != nil {
			return terrain, weather, fmt.Errorf("failed to encode weather: %w", err)
		}
		weather = sql.NullString{String: string(data), Valid: true}
	}

	return terrain, weather, nil
}

// rebind rewrites ? placeholders into $N for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
