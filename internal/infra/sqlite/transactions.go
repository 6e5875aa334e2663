package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"

	"github.com/dvloznov/piggyflow/internal/domain"
)

var transactionColumns = []string{"id", "category_type", "amount", "note", "date", "category_name", "category_emoji"}

// TransactionRepository stores expenses and income in their own tables.
// Ids are unique per kind.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a TransactionRepository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Insert stores tx and returns it with its assigned id.
func (r *TransactionRepository) Insert(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	table, err := tableFor(tx.Kind)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Insert: %w", err)
	}

	q := builder.Insert(table).
		Columns("category_type", "amount", "note", "date", "category_name", "category_emoji").
		Values(string(tx.CategoryType), tx.Amount.String(), tx.Note, tx.Date.String(), tx.CategoryName, tx.CategoryEmoji)

	res, err := exec(ctx, r.db, "Insert", q)
	if err != nil {
		return domain.Transaction{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Insert: last insert id: %w", err)
	}
	tx.ID = id
	return tx, nil
}

// Get returns one transaction or domain.ErrNotFound.
func (r *TransactionRepository) Get(ctx context.Context, kind domain.Kind, id int64) (domain.Transaction, error) {
	table, err := tableFor(kind)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Get: %w", err)
	}

	rows, err := queryRows(ctx, r.db, "Get", builder.Select(transactionColumns...).From(table).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return domain.Transaction{}, err
	}
	txs, err := scanTransactions(rows, kind)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Get: %w", err)
	}
	if len(txs) == 0 {
		return domain.Transaction{}, notFound(string(kind), id)
	}
	return txs[0], nil
}

// Update changes amount, note and date. The category snapshot is kept.
func (r *TransactionRepository) Update(ctx context.Context, kind domain.Kind, id int64, edit domain.TransactionEdit) error {
	table, err := tableFor(kind)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}

	q := builder.Update(table).
		Set("amount", edit.Amount.String()).
		Set("note", edit.Note).
		Set("date", edit.Date.String()).
		Where(squirrel.Eq{"id": id})

	res, err := exec(ctx, r.db, "Update", q)
	if err != nil {
		return err
	}
	n, err := affected(res, "Update")
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(string(kind), id)
	}
	return nil
}

// Delete removes one transaction.
func (r *TransactionRepository) Delete(ctx context.Context, kind domain.Kind, id int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	res, err := exec(ctx, r.db, "Delete", builder.Delete(table).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	n, err := affected(res, "Delete")
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound(string(kind), id)
	}
	return nil
}

// List returns transactions matching f, newest first.
func (r *TransactionRepository) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, kind := range kinds(f.Kind) {
		table, err := tableFor(kind)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}

		q := builder.Select(transactionColumns...).From(table).OrderBy("date DESC", "id DESC")
		if f.From.IsValid() {
			q = q.Where(squirrel.GtOrEq{"date": f.From.String()})
		}
		if f.To.IsValid() {
			q = q.Where(squirrel.LtOrEq{"date": f.To.String()})
		}
		if f.Limit > 0 {
			q = q.Limit(uint64(f.Limit))
		}

		rows, err := queryRows(ctx, r.db, "List", q)
		if err != nil {
			return nil, err
		}
		txs, err := scanTransactions(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		out = append(out, txs...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.After(out[j].Date)
		}
		if out[i].ID != out[j].ID {
			return out[i].ID > out[j].ID
		}
		return out[i].Kind < out[j].Kind
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func scanTransactions(rows *sql.Rows, kind domain.Kind) ([]domain.Transaction, error) {
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx := domain.Transaction{Kind: kind}
		var categoryType string
		if err := rows.Scan(&tx.ID, &categoryType, &tx.Amount, &tx.Note, &tx.Date, &tx.CategoryName, &tx.CategoryEmoji); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		tx.CategoryType = domain.CategoryType(categoryType)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return out, nil
}
