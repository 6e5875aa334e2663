package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/store"
)

// releasedDB hands out a database that was closed by a restore for the first
// acquisitions, then defers to next.
type releasedDB struct {
	closed *sql.DB
	stale  int
	next   func(ctx context.Context) (*sql.DB, error)
	calls  int
}

func (d *releasedDB) Acquire(ctx context.Context) (*sql.DB, error) {
	d.calls++
	if d.calls <= d.stale {
		return d.closed, nil
	}
	return d.next(ctx)
}

func closedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "released.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	return db
}

func TestRepository_ClosedDatabase(t *testing.T) {
	unavailable := func(context.Context) (*sql.DB, error) { return nil, store.ErrStoreUnavailable }

	t.Run("reacquires the reopened database", func(t *testing.T) {
		h := newTestDB(t)
		db := &releasedDB{closed: closedDB(t), stale: 1, next: h.Acquire}
		repo := NewTransactionRepository(db)

		created, err := repo.Insert(context.Background(), expense(t, "4.20", "2024-05-01", "coffee"))
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, 2, db.calls)

		db.calls = 0
		got, err := repo.List(context.Background(), domain.TransactionFilter{Kind: domain.KindExpense})
		require.NoError(t, err)
		require.Len(t, got, 1)
	})

	tests := []struct {
		name  string
		stale int
		run   func(ctx context.Context, repo *TransactionRepository) error
	}{
		{
			name:  "insert while quiesced",
			stale: 1,
			run: func(ctx context.Context, repo *TransactionRepository) error {
				_, err := repo.Insert(ctx, expense(t, "1", "2024-05-01", ""))
				return err
			},
		},
		{
			name:  "list while quiesced",
			stale: 1,
			run: func(ctx context.Context, repo *TransactionRepository) error {
				_, err := repo.List(ctx, domain.TransactionFilter{})
				return err
			},
		},
		{
			name:  "still closed after retry",
			stale: 2,
			run: func(ctx context.Context, repo *TransactionRepository) error {
				_, err := repo.Get(ctx, domain.KindExpense, 1)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &releasedDB{closed: closedDB(t), stale: tt.stale, next: unavailable}
			err := tt.run(context.Background(), NewTransactionRepository(db))
			require.Error(t, err)
			assert.ErrorIs(t, err, store.ErrStoreUnavailable)
			assert.Equal(t, 2, db.calls)
		})
	}
}

func TestIsClosed(t *testing.T) {
	db := closedDB(t)
	err := db.PingContext(context.Background())
	require.Error(t, err)
	assert.True(t, isClosed(err))

	assert.True(t, isClosed(sql.ErrConnDone))
	assert.False(t, isClosed(nil))
	assert.False(t, isClosed(sql.ErrNoRows))
}
