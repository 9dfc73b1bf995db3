package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atg_engage/models"
)

// Ошибки, которыми шлюз, генератор и хранилище учётных данных сообщают
// о категории сбоя. Воркер различает их через errors.Is/errors.As.
var (
	ErrSessionUnavailable = errors.New("session unavailable")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrTransientNetwork   = errors.New("transient network error")
	ErrJoin               = errors.New("join failed")
	ErrNoDiscussion       = errors.New("channel has no discussion")
	ErrNoEligiblePosts    = errors.New("no eligible posts")
	ErrReactionsDisabled  = errors.New("reactions disabled")
	ErrGenerationFailed   = errors.New("text generation failed")

	// ErrInvalidAction и ErrListAccounts — единственные ошибки, которые Run возвращает
	// вызывающей стороне. Остальное попадает в RunSummary.
	ErrInvalidAction = errors.New("invalid action")
	ErrListAccounts  = errors.New("list accounts")
)

// RateLimitedError: требование платформы подождать RetryAfter перед повтором (FloodWait).
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// RateLimited создаёт ошибку ограничения частоты с указанной паузой.
func RateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// contextReason возвращает причину прерывания по состоянию контекста.
func contextReason(ctx context.Context) models.Reason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.ReasonDeadlineExceeded
	}
	return models.ReasonCancelled
}

// classify сводит ошибку к категории причины. Отменённый контекст важнее
// самой ошибки: сетевой вызов, прерванный дедлайном, — это DeadlineExceeded.
func classify(ctx context.Context, err error) models.Reason {
	if err == nil {
		return models.ReasonNone
	}
	if ctx.Err() != nil {
		return contextReason(ctx)
	}
	var rl *RateLimitedError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.ReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return models.ReasonCancelled
	case errors.Is(err, ErrSessionUnavailable):
		return models.ReasonSessionUnavailable
	case errors.As(err, &rl):
		return models.ReasonRateLimited
	case errors.Is(err, ErrTransientNetwork):
		return models.ReasonTransientNetwork
	case errors.Is(err, ErrPermissionDenied):
		return models.ReasonPermissionDenied
	case errors.Is(err, ErrJoin):
		return models.ReasonJoinFailed
	case errors.Is(err, ErrNoDiscussion):
		return models.ReasonNoDiscussion
	case errors.Is(err, ErrNoEligiblePosts):
		return models.ReasonNoEligiblePosts
	case errors.Is(err, ErrReactionsDisabled):
		return models.ReasonReactionsDisabled
	case errors.Is(err, ErrGenerationFailed):
		return models.ReasonGenerationFailed
	default:
		return models.ReasonInternal
	}
}

// outcomeFor определяет итог по причине: отсутствие цели — это пропуск, а не сбой.
func outcomeFor(reason models.Reason) models.Outcome {
	switch reason {
	case models.ReasonNone:
		return models.OutcomeSucceeded
	case models.ReasonNoDiscussion, models.ReasonNoEligiblePosts, models.ReasonReactionsDisabled:
		return models.OutcomeSkipped
	default:
		return models.OutcomeFailed
	}
}

// abortsWorker сообщает, что после ошибки продолжать отправки бессмысленно.
func abortsWorker(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	switch classify(ctx, err) {
	case models.ReasonPermissionDenied, models.ReasonSessionUnavailable,
		models.ReasonDeadlineExceeded, models.ReasonCancelled:
		return true
	}
	return false
}
