package replicate

import "time"

// TableResult is the outcome of replicating one table. Cancelled is
// distinct from failure; RowsProcessed counts only rows in committed
// batches.
type TableResult struct {
	TableName     string
	Success       bool
	Cancelled     bool
	ErrorMessage  string
	RowsProcessed int64
	Duration      time.Duration
}

// DataReplicationResult aggregates the per-table outcomes of one run.
type DataReplicationResult struct {
	Success            bool
	ErrorMessage       string
	TableResults       []TableResult
	TotalRowsProcessed int64
}

// NewDataReplicationResult returns an empty aggregate that is successful
// until a table says otherwise.
func NewDataReplicationResult() *DataReplicationResult {
	return &DataReplicationResult{Success: true}
}

// Add folds one table outcome into the aggregate. Overall success is the
// logical AND of all table successes.
func (d *DataReplicationResult) Add(tr TableResult) {
	d.TableResults = append(d.TableResults, tr)
	d.TotalRowsProcessed += tr.RowsProcessed
	if !tr.Success {
		d.Success = false
		if d.ErrorMessage == "" {
			d.ErrorMessage = tr.ErrorMessage
		}
	}
}
