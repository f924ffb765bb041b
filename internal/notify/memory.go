package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rcarls/ghast/internal/logging"
)

// MemorySender records jobs for inspection.
type MemorySender struct {
	mu   sync.RWMutex
	jobs []Job
}

// NewMemorySender returns an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// Send records the job.
func (s *MemorySender) Send(_ context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns a copy of the recorded jobs.
func (s *MemorySender) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// LogSender only logs jobs.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender returns a sender that logs at info level.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logging.Named(logger, "notify")}
}

// Send logs the job.
func (s *LogSender) Send(_ context.Context, job Job) error {
	s.logger.Info("mention",
		zap.String("job_id", job.ID),
		zap.String("source", job.Source),
		zap.String("target", job.Target),
	)
	return nil
}

// Discard is a Notifier that drops every notification.
type Discard struct{}

// Notify implements indieweb.Notifier.
func (Discard) Notify(context.Context, string, string) error { return nil }
