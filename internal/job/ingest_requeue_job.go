package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/askbase/askbase/internal/ingest"
	"github.com/askbase/askbase/internal/model"
	"github.com/askbase/askbase/internal/repo"
)

const requeueBatchSize = 100

// IngestRequeueJob re-queues documents stuck in pending or processing,
// which happens when the process restarts with work still in the in-memory
// ingest queue. Documents younger than delay are skipped so freshly
// uploaded ones are not queued twice.
type IngestRequeueJob struct {
	docs  *repo.DocumentRepo
	proc  *ingest.Processor
	delay time.Duration
}

func NewIngestRequeueJob(docs *repo.DocumentRepo, proc *ingest.Processor, delay time.Duration) *IngestRequeueJob {
	if delay <= 0 {
		delay = 10 * time.Minute
	}
	return &IngestRequeueJob{docs: docs, proc: proc, delay: delay}
}

func (j *IngestRequeueJob) Name() string {
	return "ingest_requeue"
}

func (j *IngestRequeueJob) Run(ctx context.Context) error {
	if j.docs == nil || j.proc == nil {
		return nil
	}
	cutoff := time.Now().Add(-j.delay).UnixMilli()
	requeued := 0
	for _, status := range []model.DocumentStatus{model.DocumentStatusPending, model.DocumentStatusProcessing} {
		docs, err := j.docs.ListByStatus(ctx, status, requeueBatchSize)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			if doc.Ctime > cutoff {
				continue
			}
			if err := j.proc.Enqueue(ctx, doc.ID); err != nil {
				return err
			}
			requeued++
		}
	}
	if requeued > 0 {
		logutil.GetLogger(ctx).Info("documents requeued for ingestion", zap.Int("count", requeued))
	}
	return nil
}
