// Package bigquery exports ledger rows to a BigQuery table for analysis
// outside the app.
package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/dvloznov/piggyflow/internal/domain"
)

// TransactionRow is one exported ledger entry.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED, "<kind>-<id>"
	Kind          string `bigquery:"kind"`           // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC

	Note bigquery.NullString `bigquery:"note"` // NULLABLE

	CategoryName  string `bigquery:"category_name"`  // REQUIRED
	CategoryEmoji string `bigquery:"category_emoji"` // REQUIRED
	CategoryType  string `bigquery:"category_type"`  // REQUIRED

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}

// TransactionID is the stable export key for tx. Ids are only unique per
// kind, so the kind is part of it.
func TransactionID(tx domain.Transaction) string {
	return fmt.Sprintf("%s-%d", tx.Kind, tx.ID)
}

// ToRows maps ledger transactions onto export rows stamped with at.
func ToRows(txs []domain.Transaction, at time.Time) []*TransactionRow {
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &TransactionRow{
			TransactionID:   TransactionID(tx),
			Kind:            string(tx.Kind),
			TransactionDate: tx.Date,
			Amount:          tx.Amount.Rat(),
			Note:            bigquery.NullString{StringVal: tx.Note, Valid: tx.Note != ""},
			CategoryName:    tx.CategoryName,
			CategoryEmoji:   tx.CategoryEmoji,
			CategoryType:    string(tx.CategoryType),
			ExportedTS:      at.UTC(),
		})
	}
	return rows
}

// InsertID keys one export of a row. Retries within an export dedupe; a later
// export of the same transaction, possibly edited since, does not.
func InsertID(r *TransactionRow) string {
	return fmt.Sprintf("%s-%d", r.TransactionID, r.ExportedTS.UnixNano())
}

func savers(rows []*TransactionRow, schema bigquery.Schema) []*bigquery.StructSaver {
	out := make([]*bigquery.StructSaver, len(rows))
	for i, r := range rows {
		out[i] = &bigquery.StructSaver{Struct: r, Schema: schema, InsertID: InsertID(r)}
	}
	return out
}
