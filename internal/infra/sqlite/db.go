// Package sqlite holds the repositories over the local database.
// Every call acquires the store handle; repositories never close it.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/store"
)

// DB hands out the current database. *store.Handle implements it.
type DB interface {
	Acquire(ctx context.Context) (*sql.DB, error)
}

var builder = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

func tableFor(kind domain.Kind) (string, error) {
	switch kind {
	case domain.KindExpense:
		return store.TableExpenses, nil
	case domain.KindIncome:
		return store.TableIncome, nil
	}
	return "", domain.NewValidationError("kind", fmt.Sprintf("unknown kind %q", kind))
}

func kinds(filter domain.Kind) []domain.Kind {
	if filter == "" {
		return []domain.Kind{domain.KindExpense, domain.KindIncome}
	}
	return []domain.Kind{filter}
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
}

func exec(ctx context.Context, db DB, op string, q squirrel.Sqlizer) (sql.Result, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	var res sql.Result
	err = withConn(ctx, db, func(conn *sql.DB) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: exec: %w", op, err)
	}
	return res, nil
}

func queryRows(ctx context.Context, db DB, op string, q squirrel.Sqlizer) (*sql.Rows, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}
	var rows *sql.Rows
	err = withConn(ctx, db, func(conn *sql.DB) error {
		var err error
		rows, err = conn.QueryContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	return rows, nil
}

// withConn runs fn on the current database. A database released by a
// restore between Acquire and fn is acquired once more; if it is still
// closed the store counts as unavailable.
func withConn(ctx context.Context, db DB, fn func(*sql.DB) error) error {
	for attempt := 0; ; attempt++ {
		conn, err := db.Acquire(ctx)
		if err != nil {
			return err
		}
		err = fn(conn)
		if !isClosed(err) {
			return err
		}
		if attempt > 0 {
			return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
		}
	}
}

// database/sql has no exported sentinel for a closed *sql.DB.
func isClosed(err error) bool {
	return err != nil && (errors.Is(err, sql.ErrConnDone) || err.Error() == "sql: database is closed")
}

func affected(res sql.Result, op string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}
