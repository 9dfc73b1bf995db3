package common

import (
	"context"
	"time"
)

// WaitWithCancellation ждёт указанное время и прерывается при отмене контекста,
// чтобы дедлайн запуска не блокировался долгими паузами.
func WaitWithCancellation(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Возвращаем ошибку контекста, чтобы вызвать обработку прерывания выше по стеку.
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
