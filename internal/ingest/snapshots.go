package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sua-org/nursecall-bus/internal/metrics"
	"github.com/sua-org/nursecall-bus/internal/storage"
)

const (
	snapshotTimeout   = 3 * time.Second
	defaultQueueDepth = 16
)

type snapshotJob struct {
	key   string
	frame []byte
}

// SnapshotQueue sobe os snapshots fora do laço de ingestão. A URL sai na
// hora; o upload acontece depois, e com a fila cheia o snapshot é descartado.
type SnapshotQueue struct {
	store   storage.ImageStore
	jobs    chan snapshotJob
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewSnapshotQueue(st storage.ImageStore, depth int, m *metrics.Metrics, logger *zap.Logger) *SnapshotQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &SnapshotQueue{
		store:   st,
		jobs:    make(chan snapshotJob, depth),
		metrics: m,
		logger:  logger.Named("snapshots"),
	}
}

// Enqueue nunca bloqueia. Devolve a URL pública do objeto, ou "" quando
// o snapshot foi descartado.
func (q *SnapshotQueue) Enqueue(key string, frame []byte) string {
	select {
	case q.jobs <- snapshotJob{key: key, frame: frame}:
		return q.store.ObjectURL(key)
	default:
		q.logger.Warn("snapshot queue full, dropping", zap.String("key", key))
		q.count("dropped")
		return ""
	}
}

// Run faz os uploads até ctx acabar.
func (q *SnapshotQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-q.jobs:
			q.upload(ctx, job)
		}
	}
}

func (q *SnapshotQueue) upload(ctx context.Context, job snapshotJob) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if _, err := q.store.SaveSnapshot(ctx, job.key, job.frame, "image/jpeg"); err != nil {
		q.logger.Warn("snapshot upload failed", zap.String("key", job.key), zap.Error(err))
		q.count("error")
		return
	}
	q.count("ok")
}

func (q *SnapshotQueue) count(result string) {
	if q.metrics != nil {
		q.metrics.Snapshots.WithLabelValues(result).Inc()
	}
}
