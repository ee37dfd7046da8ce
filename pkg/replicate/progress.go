package replicate

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Progress is a snapshot emitted after every committed batch.
type Progress struct {
	Table          string
	TableIndex     int
	TableCount     int
	RowsProcessed  int64
	TotalRows      int64
	RowsPerSecond  float64
	TablePercent   float64
	OverallPercent float64
}

// Sink receives progress snapshots. Publish must not block the
// replication loop.
type Sink interface {
	Publish(Progress)
}

// ChannelSink buffers progress updates on a channel. When the consumer
// falls behind, updates are dropped rather than stalling the producer.
type ChannelSink struct {
	ch   chan Progress
	once sync.Once
}

// NewChannelSink returns a sink with the given buffer depth.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{ch: make(chan Progress, buffer)}
}

// Publish offers a snapshot without blocking; a full buffer drops it.
func (s *ChannelSink) Publish(p Progress) {
	select {
	case s.ch <- p:
	default:
	}
}

// Updates exposes the consumer side of the sink.
func (s *ChannelSink) Updates() <-chan Progress {
	return s.ch
}

// Close releases consumers. Safe to call more than once.
func (s *ChannelSink) Close() {
	s.once.Do(func() { close(s.ch) })
}

// LogProgress drains a sink in the background, logging at most one line
// per interval per stream. Updates that complete a table are always
// logged. The returned function blocks until the sink is closed and the
// drain loop has exited.
func LogProgress(logger *zap.SugaredLogger, sink *ChannelSink, interval time.Duration) (wait func()) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var last time.Time
		for p := range sink.Updates() {
			if time.Since(last) < interval && p.TablePercent < 100 {
				continue
			}
			last = time.Now()
			logger.Infow("replicating",
				"table", p.Table,
				"rows", p.RowsProcessed,
				"total", p.TotalRows,
				"rate", int64(p.RowsPerSecond),
				"tablePercent", int(p.TablePercent),
				"overallPercent", int(p.OverallPercent),
			)
		}
	}()
	return func() { <-done }
}
