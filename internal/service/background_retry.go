package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prperemyshlev/session-gateway/internal/domain"
	"github.com/prperemyshlev/session-gateway/pkg/observability"
	"go.uber.org/zap"
)

// VerifyFunc performs one re-verification attempt
type VerifyFunc func(ctx context.Context) (domain.VerificationResult, error)

type retryLoop struct {
	cancel context.CancelFunc
}

// BackgroundRetrier runs at most one re-verification loop per session
type BackgroundRetrier struct {
	mu     sync.Mutex
	loops  map[string]*retryLoop
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics *observability.SessionMetrics
	logger  *zap.Logger
}

// NewBackgroundRetrier creates a retrier. Close stops every running loop.
func NewBackgroundRetrier(metrics *observability.SessionMetrics, logger *zap.Logger) *BackgroundRetrier {
	ctx, cancel := context.WithCancel(context.Background())
	return &BackgroundRetrier{
		loops:   make(map[string]*retryLoop),
		ctx:     ctx,
		cancel:  cancel,
		metrics: metrics,
		logger:  logger,
	}
}

// Start schedules re-verification every interval, at most maxAttempts times.
// It returns false when a loop is already running for the session.
func (r *BackgroundRetrier) Start(sessionID string, interval time.Duration, maxAttempts int, verify VerifyFunc) bool {
	if interval <= 0 || maxAttempts <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}
	if _, running := r.loops[sessionID]; running {
		r.logger.Debug("Background retry already running", zap.String("session_id", sessionID))
		return false
	}

	ctx, cancel := context.WithCancel(r.ctx)
	loop := &retryLoop{cancel: cancel}
	r.loops[sessionID] = loop

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finish(sessionID, loop)
		r.run(ctx, sessionID, interval, maxAttempts, verify)
	}()

	r.logger.Info("Background retry started",
		zap.String("session_id", sessionID),
		zap.Duration("interval", interval),
		zap.Int("max_attempts", maxAttempts),
	)
	return true
}

func (r *BackgroundRetrier) run(ctx context.Context, sessionID string, interval time.Duration, maxAttempts int, verify VerifyFunc) {
	schedule := backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts))

	for attempt := 1; ; attempt++ {
		wait := schedule.NextBackOff()
		if wait == backoff.Stop {
			r.logger.Warn("Background retry exhausted", zap.String("session_id", sessionID), zap.Int("attempts", maxAttempts))
			return
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		result, err := verify(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.metrics.RecordRetryAttempt(ctx, "error")
			r.logger.Warn("Background retry attempt failed",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			continue
		}

		r.metrics.RecordRetryAttempt(ctx, result.Outcome.String())

		switch {
		case result.Valid():
			r.logger.Info("Background retry verified session", zap.String("session_id", sessionID), zap.Int("attempt", attempt))
			return
		case errors.Is(result.Err, domain.ErrInvalidCredential):
			r.logger.Info("Background retry found credential rejected", zap.String("session_id", sessionID), zap.Int("attempt", attempt))
			return
		}
	}
}

func (r *BackgroundRetrier) finish(sessionID string, loop *retryLoop) {
	r.mu.Lock()
	defer r.mu.Unlock()

	loop.cancel()
	if r.loops[sessionID] == loop {
		delete(r.loops, sessionID)
	}
}

// Stop cancels the loop of a session, if any
func (r *BackgroundRetrier) Stop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if loop, ok := r.loops[sessionID]; ok {
		loop.cancel()
		delete(r.loops, sessionID)
	}
}

// Running reports whether a loop is active for the session
func (r *BackgroundRetrier) Running(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.loops[sessionID]
	return ok
}

// Active returns the number of running loops
func (r *BackgroundRetrier) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.loops)
}

// Close cancels all loops and waits for them to return
func (r *BackgroundRetrier) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
}
