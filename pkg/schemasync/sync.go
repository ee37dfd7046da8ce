package schemasync

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/dbrepl/dbrepl/pkg/dbconn"
	"github.com/dbrepl/dbrepl/pkg/metrics"
	"github.com/dbrepl/dbrepl/pkg/schema"
	"github.com/dbrepl/dbrepl/pkg/script"
)

// Result is the outcome of one synchronization attempt. It is immutable
// once returned.
type Result struct {
	Success      bool
	PreviewOnly  bool
	ErrorMessage string
	Comparison   *schema.ComparisonResult
	Script       script.Script
}

// Synchronizer compares two endpoints and applies (or previews) the script
// that brings the target in line with the source.
type Synchronizer struct {
	logger *zap.SugaredLogger
}

// New returns a Synchronizer. A nil logger is replaced with a no-op one.
func New(logger *zap.SugaredLogger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Synchronizer{logger: logger}
}

// Synchronize inspects both endpoints, diffs them and applies the generated
// script inside a single transaction on the target. With previewOnly the
// script is returned without executing it. Schema changes are all-or-nothing:
// the first failing statement rolls back the entire transaction.
func (s *Synchronizer) Synchronize(ctx context.Context, source, target dbconn.Endpoint, previewOnly bool) (*Result, error) {
	srcDB, err := source.Open()
	if err != nil {
		return failed(err), err
	}
	defer srcDB.Close()
	tgtDB, err := target.Open()
	if err != nil {
		return failed(err), err
	}
	defer tgtDB.Close()
	if err := source.Ping(ctx, srcDB); err != nil {
		return failed(err), err
	}
	if err := target.Ping(ctx, tgtDB); err != nil {
		return failed(err), err
	}

	srcSnap, err := schema.NewInspector(srcDB, source.Driver, source.Database).Inspect(ctx)
	if err != nil {
		err = fmt.Errorf("inspect source %s: %w", source.Redacted(), err)
		return failed(err), err
	}
	tgtSnap, err := schema.NewInspector(tgtDB, target.Driver, target.Database).Inspect(ctx)
	if err != nil {
		err = fmt.Errorf("inspect target %s: %w", target.Redacted(), err)
		return failed(err), err
	}

	cmp := schema.Compare(srcSnap, tgtSnap)
	res := &Result{Success: true, Comparison: cmp}
	if !cmp.HasDifferences() {
		s.logger.Infow("schemas are in sync", "source", source.Redacted(), "target", target.Redacted())
		return res, nil
	}

	res.Script = script.Generate(cmp, target.Driver)
	s.logger.Infow("generated synchronization script",
		"differences", cmp.TotalDifferences(), "statements", len(res.Script.Statements))
	if previewOnly {
		res.PreviewOnly = true
		return res, nil
	}

	if err := s.Apply(ctx, tgtDB, res.Script); err != nil {
		metrics.SchemaSyncFailures.Inc()
		res.Success = false
		res.ErrorMessage = err.Error()
		return res, err
	}
	return res, nil
}

// Apply executes every non-blank, non-comment statement of the script
// sequentially inside one transaction.
func (s *Synchronizer) Apply(ctx context.Context, db *sql.DB, sc script.Script) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, st := range script.Split(sc.SQL()) {
		stmt := executable(st)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("rollback: %v: exec %q: %w", rbErr, stmt, err)
			}
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
		metrics.SchemaStatements.Inc()
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func failed(err error) *Result {
	return &Result{Success: false, ErrorMessage: err.Error()}
}

// executable strips comment lines; a statement that is blank afterwards is
// skipped by the caller.
func executable(st script.Statement) string {
	text := st.Executable()
	var keep []string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		keep = append(keep, line)
	}
	return strings.TrimSpace(strings.Join(keep, "\n"))
}
