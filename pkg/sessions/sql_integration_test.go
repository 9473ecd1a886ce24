//go:build integration

package sessions

import (
	"context"
	"testing"
	"time"

	"github.com/platinummonkey/ruckstats/pkg/period"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgresStore starts a PostgreSQL container and returns a store with the schema applied
func setupPostgresStore(t *testing.T) (*SQLStore, func()) {
	t.Helper()
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("ruckstats_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := OpenSQLStore(ctx, SQLConfig{
		Driver:   DriverPostgres,
		DSN:      connStr,
		MaxConns: 4,
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))

	cleanup := func() {
		store.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := postgresContainer.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}

	return store, cleanup
}

func TestSQLStore_PostgresRoundTrip(t *testing.T) {
	store, cleanup := setupPostgresStore(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)

	r1 := completeRecord(base, 5000)
	r1.LoadWeight = 20
	r1.Terrain = []TerrainSegment{{Type: TerrainGravel, Duration: 3600, Distance: 5000}}
	r2 := completeRecord(base.AddDate(0, 0, 3), 8000)
	r2.Weather = &Weather{Condition: "overcast", TemperatureC: 14}
	open := completeRecord(base.AddDate(0, 0, 4), 1000)
	open.EndedAt = nil
	later := completeRecord(base.AddDate(0, 2, 0), 3000)

	for _, r := range []Record{r2, r1, open, later} {
		require.NoError(t, store.Insert(ctx, r))
	}

	got, err := store.FetchCompleteSessions(ctx, period.Range{Start: base, End: base.AddDate(0, 1, 0)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, r1.ID, got[0].ID)
	assert.Equal(t, r2.ID, got[1].ID)
	assert.Equal(t, TerrainGravel, got[0].Terrain[0].Type)
	assert.Equal(t, "overcast", got[1].Weather.Condition)

	all, err := store.FetchCompleteSessions(ctx, period.MustResolve(period.AllTime, base.AddDate(1, 0, 0)))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
