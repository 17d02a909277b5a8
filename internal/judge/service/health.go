package service

import (
	"context"

	"go.uber.org/zap"

	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/logger"
)

// Health is the readiness state reported by /healthz.
type Health struct {
	Healthy        bool   `json:"healthy"`
	DegradedReason string `json:"degradedReason,omitempty"`
	InFlight       int    `json:"inFlight"`
	Capacity       int    `json:"capacity"`
}

// Health reports whether the service accepts submissions.
func (s *Service) Health() Health {
	h := Health{
		Healthy:  !s.degraded.Load(),
		InFlight: s.limiter.Capacity() - s.limiter.Available(),
		Capacity: s.limiter.Capacity(),
	}
	if !h.Healthy {
		s.degradedMu.Lock()
		h.DegradedReason = s.degradedBy
		s.degradedMu.Unlock()
	}
	return h
}

// Recover clears the degraded state after the operator has remediated the host.
func (s *Service) Recover(ctx context.Context) {
	if s.degraded.CompareAndSwap(true, false) {
		s.degradedMu.Lock()
		s.degradedBy = ""
		s.degradedMu.Unlock()
		logger.Warn(ctx, "judge service recovered from degraded state")
	}
}

// markDegraded stops new submissions once the execution channel cannot be trusted.
func (s *Service) markDegraded(ctx context.Context, cause error) {
	s.degradedMu.Lock()
	s.degradedBy = cause.Error()
	s.degradedMu.Unlock()
	s.degraded.Store(true)
	logger.Error(ctx, "judge service degraded", zap.Error(cause))
}

func (s *Service) checkHealthy() error {
	if s.degraded.Load() {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge is degraded and not accepting submissions")
	}
	return nil
}
