package orchestrator

import (
	"context"
	"errors"
	"time"

	"atg_engage/internal/common"
	"atg_engage/models"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy: единая политика повторов для всех типов действий.
type RetryPolicy struct {
	// RateLimitRetries: сколько раз повторять вызов после FloodWait.
	RateLimitRetries int
	// TransientRetries: число дополнительных попыток при сетевых сбоях.
	TransientRetries int
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	// GenerationRetries: число повторных генераций перед запасной фразой.
	GenerationRetries int
}

// DefaultRetryPolicy возвращает значения по умолчанию.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RateLimitRetries:  1,
		TransientRetries:  2,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		GenerationRetries: 2,
	}
}

// newBackOff строит экспоненциальную последовательность пауз без случайной составляющей:
// разброс по времени уже даёт джиттер между отправками.
func (p RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Do выполняет op с повторами по категории ошибки.
// onRateLimited вызывается перед каждым ожиданием FloodWait и может быть nil.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRateLimited func(time.Duration)) error {
	var (
		rateLimited int
		transient   int
		b           = p.newBackOff()
	)
	for {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}

		var rl *RateLimitedError
		switch {
		case errors.As(err, &rl):
			if rateLimited >= p.RateLimitRetries {
				return err
			}
			rateLimited++
			if onRateLimited != nil {
				onRateLimited(rl.RetryAfter)
			}
			// Пауза длиннее окна действия прерывается дедлайном запуска.
			if werr := common.WaitWithCancellation(ctx, rl.RetryAfter); werr != nil {
				return werr
			}
		case errors.Is(err, ErrTransientNetwork):
			if transient >= p.TransientRetries {
				return err
			}
			transient++
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
			if werr := common.WaitWithCancellation(ctx, wait); werr != nil {
				return werr
			}
		default:
			// Права доступа, отсутствие цели и прочее повторами не лечатся.
			return err
		}
	}
}

// Generate запрашивает текст с повторными попытками. Если все попытки
// неудачны, возвращается запасная фраза для тона и fallback=true.
// Ошибка возвращается только при отмене контекста.
func (p RetryPolicy) Generate(ctx context.Context, gen TextGenerator, req TextRequest, seq int) (text string, fallback bool, err error) {
	if gen != nil {
		for attempt := 0; attempt <= p.GenerationRetries; attempt++ {
			out, gerr := gen.Generate(ctx, req)
			if ctx.Err() != nil {
				return "", false, ctx.Err()
			}
			if gerr == nil && out != "" {
				return out, false, nil
			}
		}
	}
	return FallbackText(req.Tone, seq), true, nil
}

// fallbackPhrases: запасные комментарии на случай недоступности генератора.
var fallbackPhrases = map[models.Tone][]string{
	models.TonePositive: {"Отличный пост, спасибо!", "Полностью согласен, хорошо написано", "Интересно, спасибо за материал"},
	models.ToneNeutral:  {"Понятно, спасибо за информацию", "Принял к сведению", "Интересная тема"},
	models.ToneCritical: {"Не во всём согласен с автором", "Спорный момент, хотелось бы больше аргументов", "Есть сомнения в выводах"},
	models.ToneQuestion: {"А есть подробности?", "Где можно почитать больше об этом?", "Как это повлияет на остальных?"},
}

// FallbackText детерминированно выбирает запасную фразу по тону и порядковому номеру отправки.
func FallbackText(tone models.Tone, seq int) string {
	phrases, ok := fallbackPhrases[tone]
	if !ok {
		phrases = fallbackPhrases[models.ToneNeutral]
	}
	if seq < 0 {
		seq = -seq
	}
	return phrases[seq%len(phrases)]
}
