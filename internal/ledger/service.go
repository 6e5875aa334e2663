// Package ledger records transactions and categories and computes the
// statistics views on top of the sqlite repositories.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dvloznov/piggyflow/internal/domain"
)

// TransactionRepository persists transactions.
type TransactionRepository interface {
	Insert(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	Get(ctx context.Context, kind domain.Kind, id int64) (domain.Transaction, error)
	Update(ctx context.Context, kind domain.Kind, id int64, edit domain.TransactionEdit) error
	Delete(ctx context.Context, kind domain.Kind, id int64) error
	List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
}

// CategoryRepository persists user categories.
type CategoryRepository interface {
	Insert(ctx context.Context, c domain.NewCategory) (domain.Category, error)
	Get(ctx context.Context, id int64) (domain.Category, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]domain.Category, error)
}

// Service is the application API over the ledger.
type Service struct {
	txs  TransactionRepository
	cats CategoryRepository
	log  zerolog.Logger

	mu        sync.Mutex
	listeners []func()
}

// NewService creates a Service.
func NewService(txs TransactionRepository, cats CategoryRepository, log zerolog.Logger) *Service {
	return &Service{
		txs:  txs,
		cats: cats,
		log:  log.With().Str("component", "ledger").Logger(),
	}
}

// OnChange registers fn to run after every successful local mutation.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Service) changed() {
	s.mu.Lock()
	listeners := append([]func(){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// Record stores a new transaction with a snapshot of its category.
func (s *Service) Record(ctx context.Context, in domain.NewTransaction) (domain.Transaction, error) {
	if err := in.Validate(); err != nil {
		return domain.Transaction{}, err
	}

	cat, err := s.resolveCategory(ctx, in.Kind, in.Category)
	if err != nil {
		return domain.Transaction{}, err
	}
	snap := cat.Snapshot()

	tx, err := s.txs.Insert(ctx, domain.Transaction{
		Kind:          in.Kind,
		Amount:        in.Amount,
		Note:          in.Note,
		Date:          in.Date,
		CategoryName:  snap.Name,
		CategoryEmoji: snap.Emoji,
		CategoryType:  snap.Type,
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Record: %w", err)
	}

	s.log.Debug().Str("kind", string(tx.Kind)).Int64("id", tx.ID).Msg("Transaction recorded")
	s.changed()
	return tx, nil
}

func (s *Service) resolveCategory(ctx context.Context, kind domain.Kind, ref domain.CategoryRef) (domain.Category, error) {
	if ref.Key != "" {
		cat, ok := domain.BuiltinCategory(ref.Key)
		if !ok {
			return domain.Category{}, domain.NewValidationError("category", fmt.Sprintf("unknown category %q", ref.Key))
		}
		if !cat.AppliesTo(kind) {
			return domain.Category{}, domain.NewValidationError("category", fmt.Sprintf("category %q is not for %s", ref.Key, kind))
		}
		return cat, nil
	}

	cat, err := s.cats.Get(ctx, ref.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Category{}, domain.NewValidationError("category", fmt.Sprintf("category %s does not exist", ref))
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("Record: resolve category: %w", err)
	}
	return cat, nil
}

// Edit changes amount, note and date of a transaction.
func (s *Service) Edit(ctx context.Context, kind domain.Kind, id int64, edit domain.TransactionEdit) (domain.Transaction, error) {
	if err := edit.Validate(); err != nil {
		return domain.Transaction{}, err
	}
	if err := s.txs.Update(ctx, kind, id, edit); err != nil {
		return domain.Transaction{}, fmt.Errorf("Edit: %w", err)
	}
	s.changed()

	tx, err := s.txs.Get(ctx, kind, id)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("Edit: %w", err)
	}
	return tx, nil
}

// Remove deletes a transaction.
func (s *Service) Remove(ctx context.Context, kind domain.Kind, id int64) error {
	if err := s.txs.Delete(ctx, kind, id); err != nil {
		return fmt.Errorf("Remove: %w", err)
	}
	s.changed()
	return nil
}

// Get returns one transaction.
func (s *Service) Get(ctx context.Context, kind domain.Kind, id int64) (domain.Transaction, error) {
	return s.txs.Get(ctx, kind, id)
}

// List returns transactions matching f, newest first.
func (s *Service) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error) {
	txs, err := s.txs.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return txs, nil
}

// Categories returns the built-ins usable for kind followed by the user
// categories. An empty kind returns every built-in.
func (s *Service) Categories(ctx context.Context, kind domain.Kind) ([]domain.Category, error) {
	var out []domain.Category
	for _, c := range domain.BuiltinCategories() {
		if kind == "" || c.AppliesTo(kind) {
			out = append(out, c)
		}
	}
	custom, err := s.cats.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("Categories: %w", err)
	}
	return append(out, custom...), nil
}

// CreateCategory stores a user category.
func (s *Service) CreateCategory(ctx context.Context, in domain.NewCategory) (domain.Category, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return domain.Category{}, err
	}
	cat, err := s.cats.Insert(ctx, in)
	if err != nil {
		return domain.Category{}, fmt.Errorf("CreateCategory: %w", err)
	}
	s.changed()
	return cat, nil
}

// DeleteCategory removes a user category. Transactions recorded with it
// keep their name and emoji.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.cats.Delete(ctx, id); err != nil {
		return fmt.Errorf("DeleteCategory: %w", err)
	}
	s.changed()
	return nil
}

// Summary aggregates the transactions in p.
func (s *Service) Summary(ctx context.Context, p domain.Period) (domain.Summary, error) {
	txs, err := s.txs.List(ctx, domain.TransactionFilter{From: p.From, To: p.To})
	if err != nil {
		return domain.Summary{}, fmt.Errorf("Summary: %w", err)
	}
	return domain.Summarize(p, txs), nil
}
