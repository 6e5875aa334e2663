package sqlite

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/dvloznov/piggyflow/internal/domain"
	"github.com/dvloznov/piggyflow/internal/store"
)

// CategoryRepository stores user-defined categories.
type CategoryRepository struct {
	db DB
}

// NewCategoryRepository creates a CategoryRepository.
func NewCategoryRepository(db DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Insert stores a category and returns it with its id.
func (r *CategoryRepository) Insert(ctx context.Context, c domain.NewCategory) (domain.Category, error) {
	q := builder.Insert(store.TableCategories).Columns("name", "emoji").Values(c.Name, c.Emoji)
	res, err := exec(ctx, r.db, "InsertCategory", q)
	if err != nil {
		return domain.Category{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Category{}, fmt.Errorf("InsertCategory: last insert id: %w", err)
	}
	return domain.Category{ID: id, Name: c.Name, Emoji: c.Emoji}, nil
}

// Get returns one category or domain.ErrNotFound.
func (r *CategoryRepository) Get(ctx context.Context, id int64) (domain.Category, error) {
	q := builder.Select("id", "name", "emoji").From(store.TableCategories).Where(squirrel.Eq{"id": id})
	cats, err := r.query(ctx, "GetCategory", q)
	if err != nil {
		return domain.Category{}, err
	}
	if len(cats) == 0 {
		return domain.Category{}, notFound("category", id)
	}
	return cats[0], nil
}

// Delete removes a category. Transactions keep their snapshot.
func (r *CategoryRepository) Delete(ctx context.Context, id int64) error {
	res, err := exec(ctx, r.db, "DeleteCategory", builder.Delete(store.TableCategories).Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	n, err := affected(res, "DeleteCategory")
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("category", id)
	}
	return nil
}

// List returns all user categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	q := builder.Select("id", "name", "emoji").From(store.TableCategories).OrderBy("name COLLATE NOCASE", "id")
	return r.query(ctx, "ListCategories", q)
}

func (r *CategoryRepository) query(ctx context.Context, op string, q squirrel.SelectBuilder) ([]domain.Category, error) {
	rows, err := queryRows(ctx, r.db, op, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Emoji); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate: %w", op, err)
	}
	return out, nil
}
