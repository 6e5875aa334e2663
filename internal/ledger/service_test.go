package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/events"
	"github.com/dvloznov/piggyflow/internal/infra/sqlite"
	"github.com/dvloznov/piggyflow/internal/store"
)

func newTestService(t *testing.T) (*Service, *sqlite.TransactionRepository) {
	t.Helper()
	h := store.NewHandle(filepath.Join(t.TempDir(), "piggyflow.db"), zerolog.Nop())
	t.Cleanup(func() { h.Close() })
	txs := sqlite.NewTransactionRepository(h)
	return NewService(txs, sqlite.NewCategoryRepository(h), zerolog.Nop()), txs
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newExpense(amount, date, key string) domain.NewTransaction {
	return domain.NewTransaction{
		Kind:     domain.KindExpense,
		Amount:   decimal.RequireFromString(amount),
		Date:     day(date),
		Category: domain.CategoryRef{Key: key},
	}
}

func TestService_RecordBuiltin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tx, err := svc.Record(ctx, newExpense("12.50", "2024-05-01", "food"))
	require.NoError(t, err)
	assert.NotZero(t, tx.ID)
	assert.Equal(t, "Food", tx.CategoryName)
	assert.Equal(t, "🍔", tx.CategoryEmoji)
	assert.Equal(t, domain.CategoryBuiltin, tx.CategoryType)
}

func TestService_RecordValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   domain.NewTransaction
	}{
		{name: "zero amount", in: newExpense("0", "2024-05-01", "food")},
		{name: "unknown builtin", in: newExpense("1", "2024-05-01", "yachts")},
		{name: "income category on expense", in: newExpense("1", "2024-05-01", "salary")},
		{name: "missing custom category", in: domain.NewTransaction{
			Kind: domain.KindExpense, Amount: decimal.NewFromInt(1), Date: day("2024-05-01"),
			Category: domain.CategoryRef{ID: 42},
		}},
		{name: "no category", in: domain.NewTransaction{
			Kind: domain.KindIncome, Amount: decimal.NewFromInt(1), Date: day("2024-05-01"),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Record(ctx, tt.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestService_DeletedCategoryKeepsSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	pets, err := svc.CreateCategory(ctx, domain.NewCategory{Name: "  Pets ", Emoji: "🐶"})
	require.NoError(t, err)
	assert.Equal(t, "Pets", pets.Name)

	in := newExpense("40", "2024-05-02", "")
	in.Category = domain.CategoryRef{ID: pets.ID}
	tx, err := svc.Record(ctx, in)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCategory(ctx, pets.ID))

	got, err := svc.Get(ctx, domain.KindExpense, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pets", got.CategoryName)
	assert.Equal(t, "🐶", got.CategoryEmoji)
	assert.Equal(t, domain.CategoryCustom, got.CategoryType)

	cats, err := svc.Categories(ctx, domain.KindExpense)
	require.NoError(t, err)
	for _, c := range cats {
		assert.NotEqual(t, "Pets", c.Name)
	}
}

func TestService_EditKeepsCategory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tx, err := svc.Record(ctx, newExpense("10", "2024-05-01", "transport"))
	require.NoError(t, err)

	edited, err := svc.Edit(ctx, domain.KindExpense, tx.ID, domain.TransactionEdit{
		Amount: decimal.RequireFromString("11.20"),
		Note:   "taxi",
		Date:   day("2024-05-03"),
	})
	require.NoError(t, err)
	assert.True(t, edited.Amount.Equal(decimal.RequireFromString("11.2")))
	assert.Equal(t, "taxi", edited.Note)
	assert.Equal(t, day("2024-05-03"), edited.Date)
	assert.Equal(t, "Transport", edited.CategoryName)

	_, err = svc.Edit(ctx, domain.KindExpense, tx.ID, domain.TransactionEdit{Amount: decimal.NewFromInt(-1), Date: day("2024-05-03")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, svc.Remove(ctx, domain.KindExpense, tx.ID))
	_, err = svc.Edit(ctx, domain.KindExpense, tx.ID, domain.TransactionEdit{Amount: decimal.NewFromInt(1), Date: day("2024-05-03")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_Categories(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, domain.NewCategory{Name: "Pets", Emoji: "🐶"})
	require.NoError(t, err)

	income, err := svc.Categories(ctx, domain.KindIncome)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, c := range income {
		names[c.Name] = true
	}
	assert.True(t, names["Salary"])
	assert.True(t, names["Other"])
	assert.True(t, names["Pets"])
	assert.False(t, names["Food"])

	_, err = svc.CreateCategory(ctx, domain.NewCategory{Name: " ", Emoji: "🐶"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_Summary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, in := range []domain.NewTransaction{
		newExpense("30", "2024-05-01", "food"),
		newExpense("10", "2024-05-02", "food"),
		newExpense("60", "2024-05-02", "rent"),
		newExpense("99", "2024-06-01", "rent"),
	} {
		_, err := svc.Record(ctx, in)
		require.NoError(t, err)
	}
	_, err := svc.Record(ctx, domain.NewTransaction{
		Kind: domain.KindIncome, Amount: decimal.NewFromInt(500), Date: day("2024-05-15"),
		Category: domain.CategoryRef{Key: "salary"},
	})
	require.NoError(t, err)

	may, err := domain.MonthPeriod("2024-05")
	require.NoError(t, err)
	s, err := svc.Summary(ctx, may)
	require.NoError(t, err)

	assert.Equal(t, "100", s.TotalExpense.String())
	assert.Equal(t, "500", s.TotalIncome.String())
	assert.Equal(t, "400", s.Balance.String())
	assert.Equal(t, 3, s.ExpenseCount)
	require.Len(t, s.Expenses, 2)
	assert.Equal(t, "Rent", s.Expenses[0].Name)
	assert.Equal(t, "60", s.Expenses[0].Share.String())
}

func TestWatcher_ReloadsOnMutationAndSignal(t *testing.T) {
	svc, txs := newTestService(t)
	bus := events.NewBus()
	now := func() time.Time { return time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC) }
	w := NewWatcher(svc, bus, zerolog.Nop(), WatcherOptions{RecentLimit: 5, Now: now})
	ctx := context.Background()

	v, err := w.View(ctx)
	require.NoError(t, err)
	assert.Empty(t, v.Recent)
	first := v.Version

	_, err = svc.Record(ctx, newExpense("5", "2024-05-19", "food"))
	require.NoError(t, err)

	v, err = w.View(ctx)
	require.NoError(t, err)
	assert.Len(t, v.Recent, 1)
	assert.Greater(t, v.Version, first)

	// Same view until something changes.
	again, err := w.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, v.Version, again.Version)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	// Out-of-band write, as a restore would do, followed by the broadcast.
	_, err = txs.Insert(ctx, domain.Transaction{
		Kind: domain.KindExpense, Amount: decimal.NewFromInt(7), Date: day("2024-05-20"),
		CategoryName: "Food", CategoryEmoji: "🍔", CategoryType: domain.CategoryBuiltin,
	})
	require.NoError(t, err)
	bus.Publish(string(store.OpRestore))

	require.Eventually(t, func() bool {
		v, err := w.View(ctx)
		return err == nil && len(v.Recent) == 2
	}, 2*time.Second, 10*time.Millisecond)

	v, err = w.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "12", v.Summary.TotalExpense.String())

	cancel()
	require.NoError(t, <-done)
}
