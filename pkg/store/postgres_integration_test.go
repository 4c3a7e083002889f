//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/nearstore/pkg/store"
	"github.com/marmos91/nearstore/pkg/store/models"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("nearstore"),
		tcpostgres.WithUsername("nearstore"),
		tcpostgres.WithPassword("nearstore"),
		testcontainers.WithWaitStrategyAndDeadline(60*time.Second,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	s, err := store.New(&store.Config{
		Type: store.DatabaseTypePostgres,
		Postgres: store.PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "nearstore",
			User:     "nearstore",
			Password: "nearstore",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.UpdateGroup(ctx, "acme", "g1", increment)
	require.NoError(t, err)
	g, err := s.GetGroup(ctx, "acme", "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Granted)

	ref := &models.FileReference{Tenant: "acme", Checksum: "abc", Storage: "tape"}
	require.NoError(t, ref.SetOwners([]string{"alice"}))
	_, err = s.UpsertReference(ctx, ref)
	require.NoError(t, err)

	failures, err := s.ListFailures(ctx, models.FailureFilter{Tenant: "acme", GroupID: "g1", Owners: []string{"alice"}})
	require.NoError(t, err)
	assert.Empty(t, failures)
}
