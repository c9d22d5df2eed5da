//go:build integration

package review

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

func startPostgres(t *testing.T) database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "fern",
				"POSTGRES_PASSWORD": "fern",
				"POSTGRES_DB":       "fern",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "fern",
		Password: "fern",
		Name:     "fern",
		SSLMode:  "disable",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../../db/pg"})
	require.NoError(t, migrations.MigratePostgres(db, "fern"))

	seed := []string{
		`INSERT INTO dealers (id, name) VALUES (1, 'Dealer A')`,
		`INSERT INTO catalog_products (id, name) VALUES (1, 'Duty Universal 210ml'), (2, 'Grass Azelit'), (3, 'Cif cream'), (4, 'Sanfor'), (5, 'Synergetic')`,
	}
	for id := 100; id <= 120; id++ {
		seed = append(seed, fmt.Sprintf(`INSERT INTO dealer_listings (id, product_key, product_name, dealer_id) VALUES (%d, 'k-%d', 'listing', 1)`, id, id))
	}
	for _, stmt := range seed {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return db
}

func TestRepositoryAgainstPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := startPostgres(t)
	repo := NewRepository(db, logger)
	ctx := context.Background()

	var sets []models.CandidateSet
	for id := int64(100); id < 120; id++ {
		sets = append(sets, models.CandidateSet{ListingID: id, ProductIDs: []int64{1, 2, 3, 4, 5}})
	}
	records, err := repo.InsertCandidates(ctx, sets)
	require.NoError(t, err)
	require.Len(t, records, 20)
	for _, r := range records {
		assert.Equal(t, r.ID, r.Sequence)
	}

	_, err = repo.InsertCandidates(ctx, sets[:1])
	assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)

	t.Run("accept consumes the record once", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _, errs[i] = repo.Accept(ctx, 100, 1, "op")
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
			} else {
				assert.ErrorIs(t, err, fernerrors.ErrNotFound)
			}
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("concurrent defers get distinct sequences", func(t *testing.T) {
		var wg sync.WaitGroup
		sequences := make([]int64, 10)
		errs := make([]error, 10)
		for i := range sequences {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sequences[i], errs[i] = repo.Defer(ctx, int64(101+i))
			}(i)
		}
		wg.Wait()

		seen := map[int64]bool{}
		for i := range sequences {
			require.NoError(t, errs[i])
			assert.False(t, seen[sequences[i]])
			seen[sequences[i]] = true
		}

		pending, err := repo.ListPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(111), pending[0].ListingID)
		for i := 1; i < len(pending); i++ {
			assert.Less(t, pending[i-1].Sequence, pending[i].Sequence)
		}
	})

	t.Run("insert after defer gets a fresh sequence", func(t *testing.T) {
		records, err := repo.InsertCandidates(ctx, []models.CandidateSet{{ListingID: 120, ProductIDs: []int64{1, 2, 3, 4, 5}}})
		require.NoError(t, err)
		require.Len(t, records, 1)

		pending, err := repo.ListPending(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(120), pending[len(pending)-1].ListingID)
		seen := map[int64]bool{}
		for _, p := range pending {
			assert.False(t, seen[p.Sequence], "sequence %d shared", p.Sequence)
			seen[p.Sequence] = true
		}
	})

	t.Run("reject and counters", func(t *testing.T) {
		_, _, err := repo.Accept(ctx, 119, 999, "op")
		assert.ErrorIs(t, err, fernerrors.ErrInvalidSelection)

		match, err := repo.Reject(ctx, 119, "op")
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, []int64(match.ProductIDs))

		counters, err := repo.Counters(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.Counters{Accepted: 1, Rejected: 1, Deferred: 10}, counters)
	})
}
