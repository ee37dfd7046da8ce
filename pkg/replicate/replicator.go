package replicate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dbrepl/dbrepl/pkg/dbconn"
	"github.com/dbrepl/dbrepl/pkg/mask"
	"github.com/dbrepl/dbrepl/pkg/metrics"
)

// Options controls how one table is replicated.
type Options struct {
	BatchSize int
	// Truncate empties the target table before the first batch.
	Truncate bool
	Rules    *mask.RuleSet
	Sink     Sink
	// TableIndex and TableCount position this table inside the run for
	// overall progress reporting.
	TableIndex int
	TableCount int
}

// Replicator copies table data from a source connection to a target
// connection in batches. Each batch is extracted, masked and loaded
// inside its own target transaction, so a failure or cancellation never
// leaves a partially applied batch behind.
type Replicator struct {
	src       *sql.DB
	tgt       *sql.DB
	srcDriver string
	tgtDriver string
	logger    *zap.SugaredLogger
}

// New returns a Replicator over an open source and target connection.
// A nil logger is replaced with a no-op one.
func New(src, tgt *sql.DB, srcDriver, tgtDriver string, logger *zap.SugaredLogger) *Replicator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Replicator{src: src, tgt: tgt, srcDriver: srcDriver, tgtDriver: tgtDriver, logger: logger}
}

// ReplicateTable copies one table. Rows are read in primary-key order
// with LIMIT/OFFSET paging and written through a prepared insert, one
// transaction per batch. Cancellation is checked at the top of every
// batch and before every row write; a cancelled result reports only the
// rows of batches that committed.
func (r *Replicator) ReplicateTable(ctx context.Context, table string, opts Options) TableResult {
	start := time.Now()
	res := TableResult{TableName: table}
	fail := func(err error) TableResult {
		metrics.TableErrors.WithLabelValues(table).Inc()
		res.ErrorMessage = err.Error()
		res.Duration = time.Since(start)
		return res
	}
	if opts.BatchSize <= 0 {
		return fail(fmt.Errorf("batch size must be > 0, got %d", opts.BatchSize))
	}

	cols, err := r.tableColumns(ctx, table)
	if err != nil {
		return fail(fmt.Errorf("columns of %s: %w", table, err))
	}
	orderBy, err := r.primaryKeyColumns(ctx, table)
	if err != nil {
		return fail(fmt.Errorf("primary key of %s: %w", table, err))
	}
	if len(orderBy) == 0 {
		// No primary key: order by every column for a deterministic scan.
		orderBy = cols
	}
	total, err := r.countRows(ctx, table)
	if err != nil {
		return fail(fmt.Errorf("count %s: %w", table, err))
	}

	if opts.Truncate {
		q := "TRUNCATE TABLE " + dbconn.QuoteIdent(r.tgtDriver, table)
		if _, err := r.tgt.ExecContext(ctx, q); err != nil {
			return fail(fmt.Errorf("truncate %s: %w", table, err))
		}
	}

	selectSQL := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s %s",
		dbconn.QuoteIdents(r.srcDriver, cols),
		dbconn.QuoteIdent(r.srcDriver, table),
		dbconn.QuoteIdents(r.srcDriver, orderBy),
		limitClause(r.srcDriver))
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		dbconn.QuoteIdent(r.tgtDriver, table),
		dbconn.QuoteIdents(r.tgtDriver, cols),
		placeholders(r.tgtDriver, len(cols)))

	var processed int64
	offset := 0
	for {
		if ctx.Err() != nil {
			return r.cancelled(res, processed, start)
		}
		batchStart := time.Now()
		batch, err := r.fetchBatch(ctx, selectSQL, len(cols), opts.BatchSize, offset)
		if err != nil {
			return fail(fmt.Errorf("fetch %s offset %d: %w", table, offset, err))
		}
		if len(batch) == 0 {
			break
		}

		done, err := r.loadBatch(ctx, insertSQL, table, cols, batch, opts.Rules)
		if err != nil {
			if done {
				return r.cancelled(res, processed, start)
			}
			return fail(fmt.Errorf("load %s offset %d: %w", table, offset, err))
		}

		processed += int64(len(batch))
		offset += len(batch)
		metrics.RowsReplicated.WithLabelValues(table).Add(float64(len(batch)))
		metrics.BatchDuration.WithLabelValues(table).Observe(time.Since(batchStart).Seconds())
		r.emit(opts, table, processed, total, start)

		if len(batch) < opts.BatchSize {
			break
		}
	}

	res.Success = true
	res.RowsProcessed = processed
	res.Duration = time.Since(start)
	return res
}

func (r *Replicator) cancelled(res TableResult, processed int64, start time.Time) TableResult {
	res.Cancelled = true
	res.RowsProcessed = processed
	res.ErrorMessage = "replication cancelled"
	res.Duration = time.Since(start)
	return res
}

func (r *Replicator) fetchBatch(ctx context.Context, query string, width, limit, offset int) ([][]any, error) {
	rows, err := r.src.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batch [][]any
	for rows.Next() {
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		batch = append(batch, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}

// loadBatch writes one batch in a single transaction. The bool return is
// true when the batch was abandoned because of cancellation rather than
// an execution error.
func (r *Replicator) loadBatch(ctx context.Context, insertSQL, table string, cols []string, batch [][]any, rules *mask.RuleSet) (bool, error) {
	tx, err := r.tgt.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return false, fmt.Errorf("rollback: %v: prepare: %w", rbErr, err)
		}
		return false, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, row := range batch {
		if err := ctx.Err(); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return true, fmt.Errorf("rollback: %v: %w", rbErr, err)
			}
			return true, err
		}
		maskRow(table, cols, row, rules)
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return false, fmt.Errorf("rollback: %v: insert: %w", rbErr, err)
			}
			return false, fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return false, nil
}

// maskRow applies masking rules in place. String and byte cells are
// masked through the rule; other non-null cell types only honor fixed
// value rules, since length-preserving masks have no meaning for them.
func maskRow(table string, cols []string, row []any, rules *mask.RuleSet) {
	if rules.Len() == 0 {
		return
	}
	for i, col := range cols {
		rule, ok := rules.Lookup(table, col)
		if !ok || row[i] == nil {
			continue
		}
		switch v := row[i].(type) {
		case string:
			row[i] = mask.Apply(v, rule)
		case []byte:
			row[i] = mask.Apply(string(v), rule)
		default:
			if rule.Kind == mask.FixedValue {
				row[i] = rule.Pattern
			}
		}
	}
}

func (r *Replicator) emit(opts Options, table string, processed, total int64, start time.Time) {
	if opts.Sink == nil {
		return
	}
	elapsed := time.Since(start).Seconds()
	p := Progress{
		Table:         table,
		TableIndex:    opts.TableIndex,
		TableCount:    opts.TableCount,
		RowsProcessed: processed,
		TotalRows:     total,
	}
	if elapsed > 0 {
		p.RowsPerSecond = float64(processed) / elapsed
	}
	if total > 0 {
		p.TablePercent = float64(processed) / float64(total) * 100
	} else {
		p.TablePercent = 100
	}
	if opts.TableCount > 0 {
		p.OverallPercent = (float64(opts.TableIndex) + p.TablePercent/100) / float64(opts.TableCount) * 100
	}
	opts.Sink.Publish(p)
}

func (r *Replicator) tableColumns(ctx context.Context, table string) ([]string, error) {
	q := fmt.Sprintf("SELECT * FROM %s LIMIT 0", dbconn.QuoteIdent(r.srcDriver, table))
	rows, err := r.src.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}
	return cols, nil
}

func (r *Replicator) primaryKeyColumns(ctx context.Context, table string) ([]string, error) {
	var q string
	if r.srcDriver == "postgres" {
		q = `SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = current_schema() AND tc.table_name = $1
ORDER BY kcu.ordinal_position`
	} else {
		q = `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY' ORDER BY ORDINAL_POSITION`
	}
	rows, err := r.src.QueryContext(ctx, q, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (r *Replicator) countRows(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", dbconn.QuoteIdent(r.srcDriver, table))
	var n int64
	if err := r.src.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func limitClause(driver string) string {
	if driver == "postgres" {
		return "LIMIT $1 OFFSET $2"
	}
	return "LIMIT ? OFFSET ?"
}

func placeholders(driver string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		if driver == "postgres" {
			parts[i] = fmt.Sprintf("$%d", i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}
