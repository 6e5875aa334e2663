package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dvloznov/piggyflow/internal/domain"
)

const batchSize = 500

// Exporter streams ledger rows into one table.
type Exporter struct {
	client *bigquery.Client
	table  *bigquery.Table
	schema bigquery.Schema
	log    zerolog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter for projectID.dataset.table.
func NewExporter(ctx context.Context, projectID, dataset, table string, log zerolog.Logger, opts ...option.ClientOption) (*Exporter, error) {
	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return nil, fmt.Errorf("NewExporter: infer schema: %w", err)
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewExporter: bigquery client: %w", err)
	}
	return &Exporter{
		client: client,
		table:  client.DatasetInProject(projectID, dataset).Table(table),
		schema: schema,
		log:    log.With().Str("component", "bigquery_export").Str("table", table).Logger(),
		now:    time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (e *Exporter) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// EnsureTable creates the table with the row schema if it does not exist.
func (e *Exporter) EnsureTable(ctx context.Context) error {
	_, err := e.table.Metadata(ctx)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusNotFound {
		return fmt.Errorf("EnsureTable: metadata: %w", err)
	}

	md := &bigquery.TableMetadata{
		Schema: e.schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.MonthPartitioningType,
			Field: "transaction_date",
		},
	}
	if err := e.table.Create(ctx, md); err != nil {
		return fmt.Errorf("EnsureTable: create: %w", err)
	}
	e.log.Info().Msg("Created export table")
	return nil
}

// ExportTransactions streams txs in batches. Insert ids are scoped to this
// export, so retried batches dedupe best-effort while a later export appends
// fresh rows; consumers pick the latest exported_ts per transaction_id.
func (e *Exporter) ExportTransactions(ctx context.Context, txs []domain.Transaction) (int, error) {
	rows := ToRows(txs, e.now())
	inserter := e.table.Inserter()

	sent := 0
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		if err := inserter.Put(ctx, savers(rows[start:end], e.schema)); err != nil {
			return sent, fmt.Errorf("ExportTransactions: inserting rows %d-%d: %w", start, end, err)
		}
		sent = end
		e.log.Debug().Int("rows", end-start).Msg("Batch exported")
	}

	e.log.Info().Int("rows", sent).Msg("Export finished")
	return sent, nil
}
