package sdk

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbrepl/dbrepl/pkg/config"
	"github.com/dbrepl/dbrepl/pkg/dbconn"
	"github.com/dbrepl/dbrepl/pkg/mask"
	"github.com/dbrepl/dbrepl/pkg/metrics"
	"github.com/dbrepl/dbrepl/pkg/replicate"
	"github.com/dbrepl/dbrepl/pkg/schema"
	"github.com/dbrepl/dbrepl/pkg/schemasync"
)

// Run validates both endpoints, optionally synchronizes the schema and then
// replicates table data. With previewSchemaChanges set and differences
// present, the run stops after the preview without touching any data. A
// failed or cancelled table never stops the table loop; it is recorded and
// the loop moves on.
func (s *service) Run(ctx context.Context, cfg *config.Config, sink replicate.Sink) (*ReplicationResult, error) {
	start := time.Now()
	res := &ReplicationResult{RunID: uuid.NewString(), StartedAt: start}
	defer func() {
		res.Duration = time.Since(start)
		metrics.RunDuration.Observe(res.Duration.Seconds())
	}()
	fail := func(err error) (*ReplicationResult, error) {
		res.ErrorMessage = err.Error()
		return res, err
	}

	if err := cfg.Validate(); err != nil {
		return fail(err)
	}
	if cfg.Mode == config.ModeIncremental {
		return fail(ErrIncrementalNotSupported)
	}

	srcDB, srcVer, err := s.validateEndpoint(ctx, cfg.Source, cfg.MaxRetryAttempts, cfg.RetryDelayMs)
	if err != nil {
		return fail(err)
	}
	defer srcDB.Close()
	res.SourceVersion = srcVer
	tgtDB, tgtVer, err := s.validateEndpoint(ctx, cfg.Target, cfg.MaxRetryAttempts, cfg.RetryDelayMs)
	if err != nil {
		return fail(err)
	}
	defer tgtDB.Close()
	res.TargetVersion = tgtVer
	s.logger.Infow("endpoints validated",
		"source", cfg.Source.Redacted(), "sourceVersion", srcVer,
		"target", cfg.Target.Redacted(), "targetVersion", tgtVer)

	if cfg.SyncSchema {
		syncRes, err := schemasync.New(s.logger).Synchronize(ctx, cfg.Source, cfg.Target, cfg.PreviewSchemaChanges)
		res.Schema = syncRes
		if err != nil {
			return fail(fmt.Errorf("schema sync: %w", err))
		}
		if syncRes.PreviewOnly {
			res.PreviewOnly = true
			res.Success = true
			s.logger.Infow("schema differences found, preview only; skipping data replication",
				"differences", syncRes.Comparison.TotalDifferences())
			return res, nil
		}
	}

	tables, err := s.listTables(ctx, srcDB, cfg.Source)
	if err != nil {
		return fail(fmt.Errorf("list tables: %w", err))
	}
	if !config.MatchTable(cfg.Source.Database, cfg.IncludeSchemas, cfg.ExcludeSchemas) {
		s.logger.Infow("source schema filtered out, nothing to replicate", "schema", cfg.Source.Database)
		tables = nil
	}
	tables = config.FilterTables(tables, cfg.IncludeTables, cfg.ExcludeTables)

	data := s.replicateTables(ctx, cfg, srcDB, tgtDB, tables, sink)
	res.Data = data
	res.TablesProcessed = len(data.TableResults)
	res.RowsProcessed = data.TotalRowsProcessed
	res.Success = data.Success
	if !data.Success {
		res.ErrorMessage = data.ErrorMessage
	}
	return res, nil
}

// Compare inspects both endpoints and diffs their snapshots.
func (s *service) Compare(ctx context.Context, cfg *config.Config) (*schema.ComparisonResult, error) {
	srcDB, _, err := s.validateEndpoint(ctx, cfg.Source, cfg.MaxRetryAttempts, cfg.RetryDelayMs)
	if err != nil {
		return nil, err
	}
	defer srcDB.Close()
	tgtDB, _, err := s.validateEndpoint(ctx, cfg.Target, cfg.MaxRetryAttempts, cfg.RetryDelayMs)
	if err != nil {
		return nil, err
	}
	defer tgtDB.Close()

	srcSnap, err := schema.NewInspector(srcDB, cfg.Source.Driver, cfg.Source.Database).Inspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect source %s: %w", cfg.Source.Redacted(), err)
	}
	tgtSnap, err := schema.NewInspector(tgtDB, cfg.Target.Driver, cfg.Target.Database).Inspect(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect target %s: %w", cfg.Target.Redacted(), err)
	}
	return schema.Compare(srcSnap, tgtSnap), nil
}

// SyncSchema delegates to the schema synchronizer.
func (s *service) SyncSchema(ctx context.Context, cfg *config.Config, previewOnly bool) (*schemasync.Result, error) {
	return schemasync.New(s.logger).Synchronize(ctx, cfg.Source, cfg.Target, previewOnly)
}

// Replicate copies table data only.
func (s *service) Replicate(ctx context.Context, cfg *config.Config, sink replicate.Sink) (*replicate.DataReplicationResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Mode == config.ModeIncremental {
		return nil, ErrIncrementalNotSupported
	}
	srcDB, _, err := s.validateEndpoint(ctx, cfg.Source, cfg.MaxRetryAttempts, cfg.RetryDelayMs)
	if err != nil {
		return nil, err
	}
	defer srcDB.Close()
	tgtDB, _, err := s.validateEndpoint(ctx, cfg.Target, cfg.MaxRetryAttempts, cfg.RetryDelayMs)
	if err != nil {
		return nil, err
	}
	defer tgtDB.Close()

	tables, err := s.listTables(ctx, srcDB, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables = config.FilterTables(tables, cfg.IncludeTables, cfg.ExcludeTables)
	return s.replicateTables(ctx, cfg, srcDB, tgtDB, tables, sink), nil
}

// validateEndpoint opens the endpoint and pings it, retrying per the
// configured attempt count and constant delay. Statement execution is never
// retried; only this validation step is.
func (s *service) validateEndpoint(ctx context.Context, ep dbconn.Endpoint, attempts, delayMs int) (*sql.DB, string, error) {
	db, err := ep.Open()
	if err != nil {
		return nil, "", err
	}
	delay := time.Duration(delayMs) * time.Millisecond
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	if attempts < 0 {
		attempts = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(attempts)), ctx)
	var version string
	op := func() error {
		if err := ep.Ping(ctx, db); err != nil {
			s.logger.Warnw("endpoint not reachable, retrying", "endpoint", ep.Redacted(), "err", err)
			return err
		}
		v, err := dbconn.ServerVersion(ctx, db)
		if err != nil {
			return err
		}
		version = v
		return nil
	}
	if err := backoff.Retry(op, policy); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, version, nil
}

func (s *service) listTables(ctx context.Context, db *sql.DB, ep dbconn.Endpoint) ([]string, error) {
	var (
		q    string
		args []any
	)
	if ep.Driver == "postgres" {
		q = `SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	} else {
		q = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
		args = append(args, ep.Database)
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return tables, nil
}

func (s *service) replicateTables(ctx context.Context, cfg *config.Config, srcDB, tgtDB *sql.DB, tables []string, sink replicate.Sink) *replicate.DataReplicationResult {
	rules := mask.NewRuleSet(cfg.MaskingRules)
	truncate := cfg.Mode == config.ModeFull
	if cfg.ParallelThreads > 1 {
		return s.replicateParallel(ctx, cfg, tables, rules, truncate, sink)
	}

	agg := replicate.NewDataReplicationResult()
	r := replicate.New(srcDB, tgtDB, cfg.Source.Driver, cfg.Target.Driver, s.logger)
	for i, tb := range tables {
		if ctx.Err() != nil {
			agg.Add(replicate.TableResult{TableName: tb, Cancelled: true, ErrorMessage: "replication cancelled"})
			continue
		}
		tr := r.ReplicateTable(ctx, tb, replicate.Options{
			BatchSize:  cfg.BatchSize,
			Truncate:   truncate,
			Rules:      rules,
			Sink:       sink,
			TableIndex: i,
			TableCount: len(tables),
		})
		s.logTable(tr)
		agg.Add(tr)
	}
	return agg
}

// replicateParallel runs tables through a bounded worker pool. Each worker
// opens its own connections so the pool is not serialized on a shared
// handle. Table order in the result matches the input order.
func (s *service) replicateParallel(ctx context.Context, cfg *config.Config, tables []string, rules *mask.RuleSet, truncate bool, sink replicate.Sink) *replicate.DataReplicationResult {
	results := make([]replicate.TableResult, len(tables))
	g := &errgroup.Group{}
	g.SetLimit(cfg.ParallelThreads)
	for i, tb := range tables {
		i, tb := i, tb
		g.Go(func() error {
			srcDB, err := cfg.Source.Open()
			if err != nil {
				results[i] = replicate.TableResult{TableName: tb, ErrorMessage: err.Error()}
				return nil
			}
			defer srcDB.Close()
			tgtDB, err := cfg.Target.Open()
			if err != nil {
				results[i] = replicate.TableResult{TableName: tb, ErrorMessage: err.Error()}
				return nil
			}
			defer tgtDB.Close()
			r := replicate.New(srcDB, tgtDB, cfg.Source.Driver, cfg.Target.Driver, s.logger)
			results[i] = r.ReplicateTable(ctx, tb, replicate.Options{
				BatchSize:  cfg.BatchSize,
				Truncate:   truncate,
				Rules:      rules,
				Sink:       sink,
				TableIndex: i,
				TableCount: len(tables),
			})
			s.logTable(results[i])
			return nil
		})
	}
	// Workers never return an error; failures are recorded in results.
	_ = g.Wait()

	agg := replicate.NewDataReplicationResult()
	for _, tr := range results {
		agg.Add(tr)
	}
	return agg
}

func (s *service) logTable(tr replicate.TableResult) {
	switch {
	case tr.Cancelled:
		s.logger.Warnw("table replication cancelled", "table", tr.TableName, "rows", tr.RowsProcessed)
	case !tr.Success:
		s.logger.Errorw("table replication failed", "table", tr.TableName, "err", tr.ErrorMessage)
	default:
		s.logger.Infow("table replicated", "table", tr.TableName, "rows", tr.RowsProcessed, "duration", tr.Duration)
	}
}
