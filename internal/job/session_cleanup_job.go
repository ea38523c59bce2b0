package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

// SessionSweeper is implemented by the fleet manager; it sweeps every live
// worker's session store.
type SessionSweeper interface {
	CleanupSessions() int
}

type SessionCleanupJob struct {
	sweeper SessionSweeper
}

func NewSessionCleanupJob(sweeper SessionSweeper) *SessionCleanupJob {
	return &SessionCleanupJob{sweeper: sweeper}
}

func (j *SessionCleanupJob) Name() string {
	return "session_cleanup"
}

func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if j.sweeper == nil {
		return nil
	}
	removed := j.sweeper.CleanupSessions()
	if removed > 0 {
		logutil.GetLogger(ctx).Info("expired sessions removed", zap.Int("count", removed))
	}
	return nil
}
