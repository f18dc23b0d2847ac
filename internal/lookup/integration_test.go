package lookup_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/lookup"
	"github.com/internetofwater/nldi-go/internal/navigate"
	"github.com/internetofwater/nldi-go/internal/telemetry"
)

// startDemoDB boots the NLDI demo database image and returns a connected
// pool. The image seeds a small NHDPlus extract around the Yahara River
// (WI), which the navigation expectations below are pinned to.
func startDemoDB(ctx context.Context, t *testing.T) *db.Pool {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "ghcr.io/internetofwater/nldi-db:demo",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_PASSWORD": "changeMe",
				"NLDI_DATABASE_ADDRESS": "localhost",
				"NLDI_DATABASE_NAME": "nldi",
				"NLDI_DB_OWNER_USERNAME": "nldi",
				"NLDI_DB_OWNER_PASSWORD": "changeMe",
				"NLDI_SCHEMA_OWNER_USERNAME": "nldi_schema_owner",
				"NLDI_SCHEMA_OWNER_PASSWORD": "changeMe",
				"NHDPLUS_SCHEMA_OWNER_USERNAME": "nhdplus",
				"NLDI_READ_ONLY_USERNAME": "read_only_user",
				"NLDI_READ_ONLY_PASSWORD": "changeMe",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(3 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := db.New(ctx, config.Database{
		Host:     host,
		Port:     port.Int(),
		DBName:   "nldi",
		User:     "nldi",
		Password: "changeMe",
		PoolSize: 4,
	}, zap.NewNop(), telemetry.New())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestIntegrationNavigation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	pool := startDemoDB(ctx, t)

	log := zap.NewNop()
	metrics := telemetry.New()
	flowlines := lookup.NewFlowlineStore(pool, log)
	features := lookup.NewFeatureStore(pool, log)
	engine := navigate.NewEngine(pool, flowlines, features, metrics, log)

	const start = int64(13294366)

	tests := []struct {
		mode navigate.Mode
		want []int64
	}{
		{navigate.DM, []int64{13294366, 13293406, 13294268, 13293404, 13293396, 13293394, 13293398, 13294110}},
		{navigate.DD, []int64{13294366, 13293406, 13294268, 13293404, 13293400, 13293396, 13294110, 13293394, 13293398}},
		{navigate.UT, []int64{13294366}},
		{navigate.UM, []int64{13294366}},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			got, err := engine.Navigate(ctx, navigate.Options{
				Mode:       tc.mode,
				DistanceKm: 10,
			}, start)
			require.NoError(t, err)
			assert.ElementsMatch(t, tc.want, got)
		})
	}

	t.Run("flowline geometry", func(t *testing.T) {
		fl, err := flowlines.ByComid(ctx, start)
		require.NoError(t, err)
		assert.Equal(t, start, fl.Comid)
		assert.NotEmpty(t, fl.Geometry)
	})

	t.Run("flowlines without geometry", func(t *testing.T) {
		fls, err := flowlines.ByComids(ctx, []int64{start, 13293406}, nil, true)
		require.NoError(t, err)
		require.Len(t, fls, 2)
		for _, fl := range fls {
			assert.Nil(t, fl.Geometry)
		}
	})

	t.Run("estimated measure", func(t *testing.T) {
		m, err := flowlines.EstimatedMeasure(ctx, "wqp", "USGS-05427930")
		require.NoError(t, err)
		require.NotNil(t, m)
		assert.InDelta(t, 16.6333, *m, 0.01)
	})
}
