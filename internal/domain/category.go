package domain

import (
	"fmt"
	"strings"
)

// CategoryType tells whether a snapshot came from a built-in or a user category.
type CategoryType string

const (
	CategoryBuiltin CategoryType = "builtin"
	CategoryCustom  CategoryType = "custom"
)

// Category is either a compiled-in category (Builtin, ID 0) or a user-defined
// one persisted in the categories table.
type Category struct {
	ID      int64  `json:"id,omitempty"`
	Key     string `json:"key,omitempty"`
	Name    string `json:"name"`
	Emoji   string `json:"emoji"`
	Builtin bool   `json:"builtin"`
	// Kind restricts a built-in to expenses or income. Empty for user categories.
	Kind Kind `json:"kind,omitempty"`
}

// Snapshot copies the display fields for storing on a transaction.
func (c Category) Snapshot() CategorySnapshot {
	typ := CategoryCustom
	if c.Builtin {
		typ = CategoryBuiltin
	}
	return CategorySnapshot{Name: c.Name, Emoji: c.Emoji, Type: typ}
}

// AppliesTo reports whether the category can be used for kind k.
func (c Category) AppliesTo(k Kind) bool {
	return c.Kind == "" || c.Kind == k
}

// CategorySnapshot is the denormalized category data stored on a transaction.
type CategorySnapshot struct {
	Name  string
	Emoji string
	Type  CategoryType
}

// CategoryRef points at a category by built-in key or by user category id.
type CategoryRef struct {
	Key string
	ID  int64
}

// IsZero reports whether the reference is empty.
func (r CategoryRef) IsZero() bool {
	return r.Key == "" && r.ID == 0
}

func (r CategoryRef) String() string {
	if r.Key != "" {
		return r.Key
	}
	return fmt.Sprintf("#%d", r.ID)
}

// NewCategory is the input for creating a user category.
type NewCategory struct {
	Name  string
	Emoji string
}

// Normalize trims the input.
func (n NewCategory) Normalize() NewCategory {
	return NewCategory{Name: strings.TrimSpace(n.Name), Emoji: strings.TrimSpace(n.Emoji)}
}

// Validate checks name and emoji presence and length.
func (n NewCategory) Validate() error {
	var errs []FieldError
	if n.Name == "" {
		errs = append(errs, FieldError{Field: "name", Message: "is required"})
	} else if len([]rune(n.Name)) > 40 {
		errs = append(errs, FieldError{Field: "name", Message: "must be at most 40 characters"})
	}
	if n.Emoji == "" {
		errs = append(errs, FieldError{Field: "emoji", Message: "is required"})
	} else if len([]rune(n.Emoji)) > 8 {
		errs = append(errs, FieldError{Field: "emoji", Message: "must be a single emoji"})
	}
	if len(errs) > 0 {
		return NewValidationErrors(errs)
	}
	return nil
}

var builtinCategories = []Category{
	{Key: "food", Name: "Food", Emoji: "🍔", Kind: KindExpense},
	{Key: "groceries", Name: "Groceries", Emoji: "🛒", Kind: KindExpense},
	{Key: "transport", Name: "Transport", Emoji: "🚌", Kind: KindExpense},
	{Key: "shopping", Name: "Shopping", Emoji: "🛍️", Kind: KindExpense},
	{Key: "bills", Name: "Bills", Emoji: "🧾", Kind: KindExpense},
	{Key: "rent", Name: "Rent", Emoji: "🏠", Kind: KindExpense},
	{Key: "health", Name: "Health", Emoji: "💊", Kind: KindExpense},
	{Key: "entertainment", Name: "Entertainment", Emoji: "🎬", Kind: KindExpense},
	{Key: "education", Name: "Education", Emoji: "📚", Kind: KindExpense},
	{Key: "travel", Name: "Travel", Emoji: "✈️", Kind: KindExpense},
	{Key: "salary", Name: "Salary", Emoji: "💰", Kind: KindIncome},
	{Key: "freelance", Name: "Freelance", Emoji: "💻", Kind: KindIncome},
	{Key: "investment", Name: "Investment", Emoji: "📈", Kind: KindIncome},
	{Key: "gift", Name: "Gift", Emoji: "🎁", Kind: KindIncome},
	{Key: "other", Name: "Other", Emoji: "📦"},
}

// BuiltinCategories returns a copy of the compiled-in categories.
func BuiltinCategories() []Category {
	out := make([]Category, len(builtinCategories))
	for i, c := range builtinCategories {
		c.Builtin = true
		out[i] = c
	}
	return out
}

// BuiltinCategory looks a built-in up by key.
func BuiltinCategory(key string) (Category, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, c := range builtinCategories {
		if c.Key == key {
			c.Builtin = true
			return c, true
		}
	}
	return Category{}, false
}
