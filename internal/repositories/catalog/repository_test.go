package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

var logger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewRepository(database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger), logger), mock
}

func TestListEligible(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`SELECT .+ FROM catalog_products WHERE TRIM\(name\) <> '' ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "article", "ean_13", "name"}).
			AddRow(1, "D-210", "4600000000011", "Duty Universal 210ml").
			AddRow(2, "G-1", "4600000000028", "Grass Azelit"))

	items, err := repo.ListEligible(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.CatalogItem{
		{ID: 1, Article: "D-210", EAN13: "4600000000011", Name: "Duty Universal 210ml"},
		{ID: 2, Article: "G-1", EAN13: "4600000000028", Name: "Grass Azelit"},
	}, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDs(t *testing.T) {
	tests := []struct {
		name   string
		ids    []int64
		expect func(mock sqlmock.Sqlmock)
		want   int
	}{
		{
			name:   "no ids skips the query",
			ids:    nil,
			expect: func(sqlmock.Sqlmock) {},
			want:   0,
		},
		{
			name: "filters by id",
			ids:  []int64{3, 1},
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM catalog_products WHERE id IN \(\$1, \$2\) ORDER BY id`).
					WithArgs(int64(3), int64(1)).
					WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
						AddRow(1, "Duty Universal 210ml").
						AddRow(3, "Cif cream"))
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			tt.expect(mock)

			items, err := repo.GetByIDs(context.Background(), tt.ids)
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestListDealersQueryError(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`SELECT id, name FROM dealers ORDER BY id`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListDealers(context.Background())
	require.Error(t, err)
	assert.Equal(t, 500, httperror.GetStatusCode(err))
}
