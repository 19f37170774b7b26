package jobs

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/inference-server/internal/process"
)

func (m *Manager) run(id string) {
	defer m.wg.Done()

	if m.sem != nil {
		if err := m.sem.Acquire(m.baseCtx, 1); err != nil {
			m.logger.Warn("job aborted before start", zap.String("job_id", id), zap.Error(err))
			m.finish(id, StatusFailed, 0)
			return
		}
		defer m.sem.Release(1)
	}

	m.observer.JobStarted()
	started := time.Now()
	res := m.invoke(id)
	elapsed := time.Since(started)

	if !res.Success() {
		if err := m.files.Remove(m.files.OutputPath(id)); err != nil {
			m.logger.Error("failed to remove partial output", zap.String("job_id", id), zap.Error(err))
		}
		m.logger.Error("job failed",
			zap.String("job_id", id),
			zap.Int("exit_code", res.ExitCode),
			zap.Duration("elapsed", elapsed),
			zap.String("output", res.Output),
			zap.Error(res.Err),
		)
		m.finish(id, StatusFailed, elapsed)
		return
	}

	if ok, _ := m.files.Exists(m.files.OutputPath(id)); !ok {
		m.logger.Warn("job succeeded without producing output", zap.String("job_id", id))
	}
	m.logger.Info("job succeeded", zap.String("job_id", id), zap.Duration("elapsed", elapsed))
	m.finish(id, StatusSucceeded, elapsed)
}

// invoke は Invoker の panic を失敗として扱います。
func (m *Manager) invoke(id string) (res process.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = process.Result{ExitCode: -1, Err: fmt.Errorf("invoker panic: %v", r)}
		}
	}()
	return m.invoker.Run(m.baseCtx, m.files.InputPath(id), m.files.OutputPath(id))
}

func (m *Manager) finish(id string, status Status, elapsed time.Duration) {
	if err := m.store.UpdateStatus(id, status); err != nil {
		m.logger.Error("failed to record job status",
			zap.String("job_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return
	}
	m.observer.JobFinished(status, elapsed)
}
