package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"atg_engage/internal/common"
	"atg_engage/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// tally: счётчики воркера, которые попадут в ExecutionResult.
type tally struct {
	count   int
	tones   map[models.Tone]int
	sends   int
	lastErr error
}

// worker выполняет действие от имени одного аккаунта:
// ожидание джиттера, подключение, выполнение, отчёт.
type worker struct {
	runID     string
	action    models.Action
	accountID string

	store   CredentialStore
	gen     TextGenerator
	jitter  *common.Jitter
	opts    Options
	events  EventSink
	sem     *semaphore.Weighted
	limiter *rate.Limiter

	state WorkerState
	tally tally
}

func (w *worker) transition(state WorkerState, reason models.Reason, detail string) {
	w.state = state
	w.emit(Event{Worker: state, Reason: reason, Detail: detail, Count: w.tally.count})
}

func (w *worker) emit(ev Event) {
	if w.events == nil {
		return
	}
	ev.RunID = w.runID
	ev.ActionID = w.action.ID
	ev.AccountID = w.accountID
	if ev.Worker == "" {
		ev.Worker = w.state
	}
	ev.At = time.Now()
	w.events.Emit(ev)
}

// run проводит аккаунт через все состояния и возвращает ровно один результат.
func (w *worker) run(ctx context.Context) (res models.ExecutionResult) {
	w.state = WorkerIdle
	defer func() {
		if r := recover(); r != nil {
			detail := fmt.Sprintf("panic: %v", r)
			log.Error().Str("account", w.accountID).Str("panic", detail).Msg("[WORKER] аварийное завершение")
			res = w.result(models.OutcomeFailed, models.ReasonInternal, detail)
			w.transition(WorkerFailed, models.ReasonInternal, detail)
		}
	}()

	delay := w.jitter.Duration(w.startDelay(), w.action.SpreadPercent, w.opts.TimeUnit)
	w.transition(WorkerWaitingJitter, models.ReasonNone, delay.String())
	if err := common.WaitWithCancellation(ctx, delay); err != nil {
		return w.finish(ctx, err)
	}

	w.transition(WorkerQueued, models.ReasonNone, "")
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return w.finish(ctx, err)
	}
	defer w.sem.Release(1)

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			// Limiter отказывает заранее, если токен не успеет до дедлайна.
			return w.finish(ctx, fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
		}
	}

	w.transition(WorkerConnecting, models.ReasonNone, "")
	sess, err := w.store.Acquire(ctx, w.accountID)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrSessionUnavailable) {
			err = fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
		}
		return w.finish(ctx, err)
	}
	defer sess.Release()

	w.transition(WorkerExecuting, models.ReasonNone, "")
	err = sess.Run(ctx, func(ctx context.Context, gw ChannelGateway) (err error) {
		// Сессия может вызвать fn в своей горутине, поэтому панику ловим здесь же.
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return w.execute(ctx, gw)
	})
	return w.finish(ctx, err)
}

// execute выбирает сценарий по типу действия. Набор типов закрыт.
func (w *worker) execute(ctx context.Context, gw ChannelGateway) error {
	switch w.action.Kind {
	case models.ActionComment:
		return w.comment(ctx, gw)
	case models.ActionReaction:
		return w.reaction(ctx, gw)
	case models.ActionView:
		return w.view(ctx, gw)
	default:
		return fmt.Errorf("unsupported action kind %q", w.action.Kind)
	}
}

// finish формирует итог по ошибке и счётчикам.
func (w *worker) finish(ctx context.Context, err error) models.ExecutionResult {
	w.transition(WorkerReporting, models.ReasonNone, "")

	reason, detail := models.ReasonNone, ""
	switch {
	case err != nil:
		reason, detail = classify(ctx, err), err.Error()
	case w.tally.count == 0 && w.tally.lastErr != nil:
		// Все отправки сорвались: это сбой, а не пустой успех.
		reason, detail = classify(ctx, w.tally.lastErr), w.tally.lastErr.Error()
	}

	outcome := outcomeFor(reason)
	res := w.result(outcome, reason, detail)
	if outcome == models.OutcomeFailed {
		w.transition(WorkerFailed, reason, detail)
	} else {
		w.transition(WorkerDone, reason, detail)
	}
	return res
}

func (w *worker) result(outcome models.Outcome, reason models.Reason, detail string) models.ExecutionResult {
	res := models.ExecutionResult{
		AccountID: w.accountID,
		Outcome:   outcome,
		Reason:    reason,
		Detail:    detail,
		Count:     w.tally.count,
		At:        time.Now(),
	}
	if len(w.tally.tones) > 0 {
		res.ToneCounts = make(map[models.Tone]int, len(w.tally.tones))
		for k, v := range w.tally.tones {
			res.ToneCounts[k] = v
		}
	}
	return res
}

// call выполняет вызов шлюза по единой политике повторов.
func (w *worker) call(ctx context.Context, op func(ctx context.Context) error) error {
	return w.opts.Retry.Do(ctx, op, func(d time.Duration) {
		w.emit(Event{Reason: models.ReasonRateLimited, RetryAfter: d, Count: w.tally.count})
	})
}

// softFail решает, продолжать ли после неудачной отправки.
// Возвращает err, если воркер должен остановиться, иначе nil.
func (w *worker) softFail(ctx context.Context, err error) error {
	if abortsWorker(ctx, err) {
		return err
	}
	w.tally.lastErr = err
	log.Warn().Err(err).Str("account", w.accountID).Int("action_id", w.action.ID).
		Msg("[WORKER] отправка не выполнена, переходим к следующей")
	return nil
}

// pause выдерживает случайную паузу между отправками.
func (w *worker) pause(ctx context.Context) error {
	d := w.jitter.Duration(w.sendInterval(), w.action.SpreadPercent, w.opts.TimeUnit)
	return common.WaitWithCancellation(ctx, d)
}

func (w *worker) startDelay() int {
	if w.action.StartDelaySeconds > 0 {
		return w.action.StartDelaySeconds
	}
	return w.opts.StartDelaySeconds
}

func (w *worker) sendInterval() int {
	if w.action.SendIntervalSeconds > 0 {
		return w.action.SendIntervalSeconds
	}
	return w.opts.SendIntervalSeconds[w.action.Kind]
}

func (w *worker) addCount(tone models.Tone) {
	w.tally.count++
	if tone == "" {
		return
	}
	if w.tally.tones == nil {
		w.tally.tones = make(map[models.Tone]int)
	}
	w.tally.tones[tone]++
}
