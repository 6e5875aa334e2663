package domain

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Kind discriminates expense records from income records.
type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

// ParseKind accepts "expense"/"income" and their plurals.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "expenses":
		return KindExpense, nil
	case "income", "incomes":
		return KindIncome, nil
	}
	return "", NewValidationError("kind", fmt.Sprintf("unknown kind %q", s))
}

// Transaction is one expense or income record.
// The category fields are a snapshot taken when the record was created and
// are never rewritten when the originating category changes.
type Transaction struct {
	ID            int64           `json:"id"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Note          string          `json:"note,omitempty"`
	Date          civil.Date      `json:"date"`
	CategoryName  string          `json:"category_name"`
	CategoryEmoji string          `json:"category_emoji"`
	CategoryType  CategoryType    `json:"category_type"`
}

// Snapshot returns the denormalized category fields of t.
func (t Transaction) Snapshot() CategorySnapshot {
	return CategorySnapshot{Name: t.CategoryName, Emoji: t.CategoryEmoji, Type: t.CategoryType}
}

// NewTransaction is the input for recording a transaction.
type NewTransaction struct {
	Kind     Kind
	Amount   decimal.Decimal
	Note     string
	Date     civil.Date
	Category CategoryRef
}

// TransactionEdit holds the only fields an existing transaction may change.
type TransactionEdit struct {
	Amount decimal.Decimal
	Note   string
	Date   civil.Date
}

// Validate checks amount and date.
func (e TransactionEdit) Validate() error {
	return validateAmountAndDate(e.Amount, e.Date)
}

// Validate checks the input fields that do not need storage access.
func (n NewTransaction) Validate() error {
	var errs []FieldError
	if !n.Kind.Valid() {
		errs = append(errs, FieldError{Field: "kind", Message: fmt.Sprintf("unknown kind %q", n.Kind)})
	}
	if err := validateAmountAndDate(n.Amount, n.Date); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			errs = append(errs, ve.Errors...)
		}
	}
	if n.Category.IsZero() {
		errs = append(errs, FieldError{Field: "category", Message: "is required"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

func validateAmountAndDate(amount decimal.Decimal, date civil.Date) error {
	var errs []FieldError
	if !amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be positive"})
	}
	if !date.IsValid() {
		errs = append(errs, FieldError{Field: "date", Message: "must be a valid calendar date"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

// ParseAmount parses a user supplied amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, NewValidationError("amount", fmt.Sprintf("invalid amount %q", s))
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, NewValidationError("amount", "must be positive")
	}
	return d, nil
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, NewValidationError("date", fmt.Sprintf("invalid date %q, want YYYY-MM-DD", s))
	}
	return d, nil
}

// TransactionFilter narrows List queries. Zero values mean "no constraint".
type TransactionFilter struct {
	Kind  Kind
	From  civil.Date
	To    civil.Date
	Limit int
}
