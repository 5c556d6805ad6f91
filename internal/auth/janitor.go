package auth

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Janitor periodically deletes expired sessions.
type Janitor struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewJanitor(service *Service, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. A non-positive interval disables it.
func (j *Janitor) Start() {
	if j.interval <= 0 {
		j.logger.Info("session cleanup disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one cleanup pass.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	n, err := j.service.CleanupExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("failed to clean up expired sessions", zap.Error(err))
		return 0
	}
	if n > 0 {
		j.logger.Info("expired sessions removed", zap.Int64("count", n))
	}
	return n
}

func (j *Janitor) Stop() {
	if j.cancel != nil {
		j.cancel()
	}
	j.wg.Wait()
}
