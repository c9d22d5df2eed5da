package review

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	logger  = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	fixedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

const lockRecord = `SELECT id, listing_id, product_ids, sequence, created_at FROM review_records WHERE listing_id = $1 FOR UPDATE`

func newTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewRepository(database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger), logger)
	repo.now = func() time.Time { return fixedAt }
	return repo, mock
}

func recordRows(id, listingID int64, productIDs string, sequence int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "listing_id", "product_ids", "sequence", "created_at"}).
		AddRow(id, listingID, productIDs, sequence, fixedAt)
}

func emptyRecordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "listing_id", "product_ids", "sequence", "created_at"})
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name      string
		productID int64
		setup     func(mock sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name:      "success",
			productID: 3,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockRecord)).WithArgs(10).WillReturnRows(recordRows(7, 10, "{1,2,3,4,5}", 7))
				mock.ExpectExec(regexp.QuoteMeta("INSERT INTO accepted_matches (id, listing_id, product_id, operator, created_at) VALUES ($1, $2, $3, $4, $5)")).
					WithArgs(7, 10, 3, "op-1", fixedAt).
					WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_records WHERE id = $1")).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(regexp.QuoteMeta("UPDATE review_counters SET accepted = accepted + 1 WHERE id = $1")).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
		},
		{
			name:      "product not among candidates",
			productID: 999,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockRecord)).WithArgs(10).WillReturnRows(recordRows(7, 10, "{1,2,3,4,5}", 7))
				mock.ExpectRollback()
			},
			wantErr: fernerrors.ErrInvalidSelection,
		},
		{
			name:      "no pending record",
			productID: 1,
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery(regexp.QuoteMeta(lockRecord)).WithArgs(10).WillReturnRows(emptyRecordRows())
				mock.ExpectRollback()
			},
			wantErr: fernerrors.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newTestRepository(t)
			tt.setup(mock)

			match, candidates, err := repo.Accept(context.Background(), 10, tt.productID, "op-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, match)
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.AcceptedMatch{ID: 7, ListingID: 10, ProductID: 3, Operator: "op-1", CreatedAt: fixedAt}, *match)
				assert.Equal(t, []int64{1, 2, 3, 4, 5}, candidates)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestReject(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockRecord)).WithArgs(11).WillReturnRows(recordRows(8, 11, "{5,4,3,2,1}", 8))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rejected_matches (id, listing_id, product_ids, operator, created_at)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM review_records WHERE id = $1")).WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE review_counters SET rejected = rejected + 1 WHERE id = $1")).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	match, err := repo.Reject(context.Background(), 11, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4, 3, 2, 1}, []int64(match.ProductIDs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefer(t *testing.T) {
	t.Run("moves record to the end", func(t *testing.T) {
		repo, mock := newTestRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WithArgs(sequenceLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(lockRecord)).WithArgs(10).WillReturnRows(recordRows(3, 10, "{1,2,3,4,5}", 3))
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE review_records SET sequence = (SELECT COALESCE(MAX(sequence), 0) + 1 FROM review_records) WHERE id = $1 RETURNING sequence")).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(12))
		mock.ExpectExec(regexp.QuoteMeta("SELECT setval('review_records_id_seq', GREATEST($1, last_value)) FROM review_records_id_seq")).
			WithArgs(12).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE review_counters SET deferred = deferred + 1 WHERE id = $1")).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		sequence, err := repo.Defer(context.Background(), 10)
		require.NoError(t, err)
		assert.Equal(t, int64(12), sequence)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown listing", func(t *testing.T) {
		repo, mock := newTestRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(lockRecord)).WithArgs(99).WillReturnRows(emptyRecordRows())
		mock.ExpectRollback()

		_, err := repo.Defer(context.Background(), 99)
		assert.ErrorIs(t, err, fernerrors.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertCandidates(t *testing.T) {
	sets := []models.CandidateSet{
		{ListingID: 10, ProductIDs: []int64{1, 2, 3, 4, 5}},
		{ListingID: 11, ProductIDs: []int64{5, 4, 3, 2, 1}},
	}

	t.Run("sequence follows id", func(t *testing.T) {
		repo, mock := newTestRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WithArgs(sequenceLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT listing_id FROM review_records WHERE listing_id = ANY\(\$1\) UNION`).
			WillReturnRows(sqlmock.NewRows([]string{"listing_id"}))
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO review_records (listing_id, product_ids, sequence, created_at) VALUES ($1, $2, $3, $4), ($5, $6, $7, $8) RETURNING id")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21).AddRow(22))
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE review_records SET sequence = id WHERE id = ANY($1) RETURNING id, listing_id, product_ids, sequence, created_at")).
			WillReturnRows(recordRows(22, 11, "{5,4,3,2,1}", 22).AddRow(21, 10, "{1,2,3,4,5}", 21, fixedAt))
		mock.ExpectCommit()

		records, err := repo.InsertCandidates(context.Background(), sets)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(21), records[0].ID)
		assert.Equal(t, int64(10), records[0].ListingID)
		for _, r := range records {
			assert.Equal(t, r.ID, r.Sequence)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("listing already known", func(t *testing.T) {
		repo, mock := newTestRepository(t)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).WithArgs(sequenceLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT listing_id FROM review_records WHERE listing_id = ANY\(\$1\) UNION`).
			WillReturnRows(sqlmock.NewRows([]string{"listing_id"}).AddRow(11))
		mock.ExpectRollback()

		records, err := repo.InsertCandidates(context.Background(), sets)
		assert.ErrorIs(t, err, fernerrors.ErrDataConsistency)
		assert.Nil(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty batch", func(t *testing.T) {
		repo, mock := newTestRepository(t)

		records, err := repo.InsertCandidates(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListPending(t *testing.T) {
	repo, mock := newTestRepository(t)

	mock.ExpectQuery(`SELECT r.listing_id, r.sequence, r.product_ids, .+ FROM review_records r JOIN dealer_listings l .+ ORDER BY r.sequence`).
		WillReturnRows(sqlmock.NewRows([]string{"listing_id", "sequence", "product_ids", "product_key", "price", "product_url", "product_name", "date", "dealer_id", "dealer_name"}).
			AddRow(12, 2, "{2,1}", "k-12", 99.5, nil, "Duty 210", fixedAt, 3, "Dealer A").
			AddRow(10, 9, "{1}", "k-10", 10.0, nil, "Grass", fixedAt, 3, "Dealer A"))
	mock.ExpectQuery(`SELECT .+ FROM catalog_products WHERE id = ANY\(\$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Duty Universal").AddRow(2, "Grass Azelit"))

	entries, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(12), entries[0].ListingID)
	assert.Equal(t, "Dealer A", entries[0].DealerName)
	assert.Equal(t, "Duty 210", entries[0].Listing.ProductName)
	require.Len(t, entries[0].Candidates, 2)
	assert.Equal(t, int64(2), entries[0].Candidates[0].ID)
	assert.Equal(t, int64(1), entries[0].Candidates[1].ID)
	assert.Equal(t, int64(10), entries[1].ListingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounters(t *testing.T) {
	t.Run("stored counters", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT accepted, rejected, deferred FROM review_counters WHERE id = $1")).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"accepted", "rejected", "deferred"}).AddRow(3, 1, 4))

		counters, err := repo.Counters(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.Counters{Accepted: 3, Rejected: 1, Deferred: 4}, counters)
	})

	t.Run("missing row reads as zero", func(t *testing.T) {
		repo, mock := newTestRepository(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT accepted, rejected, deferred FROM review_counters")).
			WillReturnRows(sqlmock.NewRows([]string{"accepted", "rejected", "deferred"}))

		counters, err := repo.Counters(context.Background())
		require.NoError(t, err)
		assert.Equal(t, models.Counters{}, counters)
	})
}
