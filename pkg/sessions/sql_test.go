package sessions

import (
	"context"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "started_at", "ended_at", "distance_meters", "duration_seconds",
	"load_weight_kg", "calories", "average_pace", "elevation_gain", "elevation_loss",
	"terrain", "weather",
}

func TestSQLStore_FetchCompleteSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, DriverSQLite)
	start := time.Date(2026, 10, 1, 7, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	id := uuid.New()
	rng := period.Range{Start: start.AddDate(0, 0, -1), End: start.AddDate(0, 0, 1)}

	rows := sqlmock.NewRows(sessionColumns).
		AddRow(id.String(), start, end, 8000.0, 5400.0, 20.0, 900.0, 11.25, 120.0, 110.0,
			`[{"type":"trail","duration_seconds":3600,"distance_meters":5000},{"type":"pavement","duration_seconds":1800,"distance_meters":3000}]`,
			`{"condition":"clear","temperature_c":12.5,"humidity":60,"wind_speed":3}`)

	mock.ExpectQuery(`SELECT (.+) FROM sessions WHERE ended_at IS NOT NULL AND started_at >= \? AND started_at < \?`).
		WithArgs(rng.Start, rng.End).
		WillReturnRows(rows)

	got, err := store.FetchCompleteSessions(context.Background(), rng)
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, id, r.ID)
	require.NotNil(t, r.EndedAt)
	assert.Equal(t, end, *r.EndedAt)
	assert.Equal(t, 8000.0, r.Distance)
	assert.Equal(t, 20.0, r.LoadWeight)
	require.Len(t, r.Terrain, 2)
	assert.Equal(t, TerrainTrail, r.Terrain[0].Type)
	require.NotNil(t, r.Weather)
	assert.Equal(t, 12.5, r.Weather.TemperatureC)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLStore(db, DriverPostgres)
	rng := period.Range{Start: time.Unix(0, 0).UTC(), End: time.Unix(3600, 0).UTC()}

	mock.ExpectQuery(`started_at >= \$1\s+AND started_at < \$2`).
		WithArgs(rng.Start, rng.End).
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	got, err := store.FetchCompleteSessions(context.Background(), rng)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT").WillReturnError(boom)

	_, err = NewSQLStore(db, DriverSQLite).FetchCompleteSessions(context.Background(), period.Range{})
	assert.ErrorIs(t, err, boom)
}

func TestSQLStore_InvalidRows(t *testing.T) {
	tests := []struct {
		name string
		row  []driver.Value
		want string
	}{
		{
			name: "bad id",
			row:  []driver.Value{"not-a-uuid", time.Now(), time.Now(), 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, nil, nil},
			want: "invalid session id",
		},
		{
			name: "bad terrain",
			row:  []driver.Value{uuid.NewString(), time.Now(), time.Now(), 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, "{", nil},
			want: "invalid terrain",
		},
		{
			name: "bad weather",
			row:  []driver.Value{uuid.NewString(), time.Now(), time.Now(), 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, nil, "[]"},
			want: "invalid weather",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows(sessionColumns).AddRow(tt.row...))

			_, err = NewSQLStore(db, DriverSQLite).FetchCompleteSessions(context.Background(), period.Range{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSQLStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 10, 1, 7, 0, 0, 0, time.UTC)
	r := completeRecord(start, 6000)
	r.Weather = &Weather{Condition: "rain", TemperatureC: 8}

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(r.ID.String(), start, sqlmock.AnyArg(), 6000.0, 3600.0, 0.0, 0.0, 0.0, 0.0, 0.0,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, NewSQLStore(db, DriverPostgres).Insert(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sessions`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_sessions_started_at`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewSQLStore(db, DriverSQLite).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), SQLConfig{Driver: "mysql"})
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "a = ? AND b = ?", lite.rebind("a = ? AND b = ?"))
}

func TestSQLStore_SQLiteMixedOffsets(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLStore(ctx, SQLConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "sessions.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))

	tokyo := time.FixedZone("JST", 9*3600)
	pacific := time.FixedZone("PDT", -7*3600)

	before := completeRecord(time.Date(2026, 10, 12, 4, 0, 0, 0, time.UTC), 1000)
	morning := completeRecord(time.Date(2026, 10, 12, 18, 0, 0, 0, tokyo), 2000)
	evening := completeRecord(time.Date(2026, 10, 13, 5, 0, 0, 0, tokyo), 3000)
	for _, r := range []Record{before, morning, evening} {
		require.NoError(t, store.Insert(ctx, r))
	}

	start := time.Date(2026, 10, 12, 0, 0, 0, 0, pacific)
	rng := period.Range{Start: start, End: start.AddDate(0, 0, 1)}
	require.False(t, rng.Contains(before.StartedAt))
	require.True(t, rng.Contains(evening.StartedAt))

	got, err := store.FetchCompleteSessions(ctx, rng)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, morning.ID, got[0].ID)
	assert.Equal(t, evening.ID, got[1].ID)
	assert.True(t, got[1].StartedAt.Equal(evening.StartedAt), "got %v", got[1].StartedAt)
}
