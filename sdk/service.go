package sdk

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dbrepl/dbrepl/pkg/config"
	"github.com/dbrepl/dbrepl/pkg/replicate"
	"github.com/dbrepl/dbrepl/pkg/schema"
	"github.com/dbrepl/dbrepl/pkg/schemasync"
)

// ErrIncrementalNotSupported is returned by Run for configurations that
// request incremental mode.
var ErrIncrementalNotSupported = errors.New("incremental mode is not implemented, use full")

// Service exposes the high level replication operations.
type Service interface {
	// Compare inspects both endpoints and reports their schema differences.
	Compare(ctx context.Context, cfg *config.Config) (*schema.ComparisonResult, error)
	// SyncSchema brings the target schema in line with the source, or
	// previews the script without executing it.
	SyncSchema(ctx context.Context, cfg *config.Config, previewOnly bool) (*schemasync.Result, error)
	// Replicate copies table data without touching the schema.
	Replicate(ctx context.Context, cfg *config.Config, sink replicate.Sink) (*replicate.DataReplicationResult, error)
	// Run executes the full pipeline: endpoint validation, optional schema
	// synchronization and per-table data replication.
	Run(ctx context.Context, cfg *config.Config, sink replicate.Sink) (*ReplicationResult, error)
}

// ServiceConfig carries the service dependencies.
type ServiceConfig struct {
	Logger *zap.SugaredLogger
}

// New returns a Service initialized with the given configuration.
func New(cfg ServiceConfig) Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &service{logger: logger}
}

type service struct {
	logger *zap.SugaredLogger
}

// ReplicationResult is the aggregate outcome of one Run.
type ReplicationResult struct {
	RunID        string
	Success      bool
	ErrorMessage string
	// PreviewOnly reports that schema differences were found while
	// previewing and the run stopped before touching any data.
	PreviewOnly bool

	StartedAt time.Time
	Duration  time.Duration

	SourceVersion string
	TargetVersion string

	Schema *schemasync.Result
	Data   *replicate.DataReplicationResult

	TablesProcessed int
	RowsProcessed   int64
}
