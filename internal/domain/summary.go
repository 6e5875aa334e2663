package domain

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Period is an inclusive date range. A zero bound is open.
type Period struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`
}

// MonthPeriod parses "YYYY-MM" into the first and last day of that month.
func MonthPeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, NewValidationError("month", fmt.Sprintf("invalid month %q, want YYYY-MM", s))
	}
	first := civil.DateOf(t)
	last := first.AddMonths(1).AddDays(-1)
	return Period{From: first, To: last}, nil
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d civil.Date) bool {
	if p.From.IsValid() && d.Before(p.From) {
		return false
	}
	if p.To.IsValid() && d.After(p.To) {
		return false
	}
	return true
}

// CategoryTotal aggregates one category inside a Summary.
type CategoryTotal struct {
	Name  string          `json:"name"`
	Emoji string          `json:"emoji"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
	// Share is the percentage of the kind's total, rounded to two places.
	Share decimal.Decimal `json:"share"`
}

// DayTotal aggregates one calendar day.
type DayTotal struct {
	Date    civil.Date      `json:"date"`
	Expense decimal.Decimal `json:"expense"`
	Income  decimal.Decimal `json:"income"`
}

// Summary is the statistics view over a period.
type Summary struct {
	Period       Period          `json:"period"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	Balance      decimal.Decimal `json:"balance"`
	ExpenseCount int             `json:"expense_count"`
	IncomeCount  int             `json:"income_count"`
	Expenses     []CategoryTotal `json:"expenses_by_category"`
	Income       []CategoryTotal `json:"income_by_category"`
	Days         []DayTotal      `json:"days"`
}

var hundred = decimal.NewFromInt(100)

// Summarize aggregates txs that fall inside p.
// Categories are grouped by their snapshot name+emoji and ordered by total, largest first.
func Summarize(p Period, txs []Transaction) Summary {
	s := Summary{
		Period:       p,
		TotalExpense: decimal.Zero,
		TotalIncome:  decimal.Zero,
	}

	type key struct{ name, emoji string }
	byCat := map[Kind]map[key]*CategoryTotal{
		KindExpense: {},
		KindIncome:  {},
	}
	byDay := map[civil.Date]*DayTotal{}

	for _, tx := range txs {
		if !p.Contains(tx.Date) {
			continue
		}

		day, ok := byDay[tx.Date]
		if !ok {
			day = &DayTotal{Date: tx.Date, Expense: decimal.Zero, Income: decimal.Zero}
			byDay[tx.Date] = day
		}

		switch tx.Kind {
		case KindExpense:
			s.TotalExpense = s.TotalExpense.Add(tx.Amount)
			s.ExpenseCount++
			day.Expense = day.Expense.Add(tx.Amount)
		case KindIncome:
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
			s.IncomeCount++
			day.Income = day.Income.Add(tx.Amount)
		default:
			continue
		}

		k := key{tx.CategoryName, tx.CategoryEmoji}
		ct, ok := byCat[tx.Kind][k]
		if !ok {
			ct = &CategoryTotal{Name: k.name, Emoji: k.emoji, Total: decimal.Zero}
			byCat[tx.Kind][k] = ct
		}
		ct.Total = ct.Total.Add(tx.Amount)
		ct.Count++
	}

	s.Balance = s.TotalIncome.Sub(s.TotalExpense)
	s.Expenses = rankCategories(byCat[KindExpense], s.TotalExpense)
	s.Income = rankCategories(byCat[KindIncome], s.TotalIncome)

	s.Days = make([]DayTotal, 0, len(byDay))
	for _, d := range byDay {
		s.Days = append(s.Days, *d)
	}
	sort.Slice(s.Days, func(i, j int) bool { return s.Days[i].Date.Before(s.Days[j].Date) })

	return s
}

func rankCategories[K comparable](m map[K]*CategoryTotal, total decimal.Decimal) []CategoryTotal {
	out := make([]CategoryTotal, 0, len(m))
	for _, ct := range m {
		if total.IsPositive() {
			ct.Share = ct.Total.Mul(hundred).Div(total).Round(2)
		} else {
			ct.Share = decimal.Zero
		}
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}
