package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"atg_engage/internal/common"
	"atg_engage/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Options: настройки планировщика. Нулевые поля заменяются значениями DefaultOptions.
type Options struct {
	// MaxConcurrency ограничивает число аккаунтов в состояниях Connecting/Executing.
	MaxConcurrency int
	// ConnectsPerSecond задаёт темп подключений сессий, 0 — без ограничения.
	ConnectsPerSecond float64
	// TimeUnit: длительность одной «секунды» действия. В тестах уменьшается до миллисекунд.
	TimeUnit time.Duration
	// GracePeriod: сколько ждать отчёты воркеров после дедлайна.
	GracePeriod time.Duration

	StartDelaySeconds   int
	SendIntervalSeconds map[models.ActionKind]int

	CommentCandidates  int
	ReactionCandidates int
	ReactionHistory    int
	ReactionMaxAge     time.Duration

	Retry RetryPolicy
	// Seed фиксирует генератор джиттера, 0 — случайное зерно.
	Seed int64

	Events EventSink
	Sinks  []ResultSink
}

// DefaultOptions возвращает настройки по умолчанию.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency:    5,
		TimeUnit:          time.Second,
		GracePeriod:       10 * time.Second,
		StartDelaySeconds: 5,
		SendIntervalSeconds: map[models.ActionKind]int{
			models.ActionComment:  15,
			models.ActionReaction: 10,
			models.ActionView:     2,
		},
		CommentCandidates:  15,
		ReactionCandidates: 20,
		ReactionHistory:    50,
		ReactionMaxAge:     48 * time.Hour,
		Retry:              DefaultRetryPolicy(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = d.MaxConcurrency
	}
	if o.TimeUnit <= 0 {
		o.TimeUnit = d.TimeUnit
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = d.GracePeriod
	}
	if o.StartDelaySeconds < 0 {
		o.StartDelaySeconds = 0
	}
	if o.SendIntervalSeconds == nil {
		o.SendIntervalSeconds = d.SendIntervalSeconds
	}
	if o.CommentCandidates <= 0 {
		o.CommentCandidates = d.CommentCandidates
	}
	if o.ReactionCandidates <= 0 {
		o.ReactionCandidates = d.ReactionCandidates
	}
	if o.ReactionHistory <= 0 {
		o.ReactionHistory = d.ReactionHistory
	}
	if o.ReactionMaxAge <= 0 {
		o.ReactionMaxAge = d.ReactionMaxAge
	}
	if o.Retry == (RetryPolicy{}) {
		o.Retry = d.Retry
	}
	return o
}

// RunOptions: параметры одного запуска.
type RunOptions struct {
	// OnResult получает каждый результат по мере готовности. Вызовы сериализованы.
	OnResult func(res models.ExecutionResult)
}

// Scheduler раздаёт действие всем аккаунтам хранилища и собирает сводку.
type Scheduler struct {
	store  CredentialStore
	gen    TextGenerator
	opts   Options
	jitter *common.Jitter
}

// NewScheduler создаёт планировщик. Хранилище учётных данных передаётся явно.
func NewScheduler(store CredentialStore, gen TextGenerator, opts Options) *Scheduler {
	opts = opts.withDefaults()
	j := common.NewRandomJitter()
	if opts.Seed != 0 {
		j = common.NewJitter(opts.Seed)
	}
	return &Scheduler{store: store, gen: gen, opts: opts, jitter: j}
}

// Run выполняет действие на всех аккаунтах и ждёт итоговую сводку.
func (s *Scheduler) Run(ctx context.Context, action models.Action) (models.RunSummary, error) {
	return s.RunWith(ctx, action, RunOptions{})
}

// RunWith выполняет действие, сообщая о результатах через ro.OnResult.
// Ошибка возвращается только для некорректного действия или при сбое получения списка аккаунтов.
func (s *Scheduler) RunWith(ctx context.Context, action models.Action, ro RunOptions) (models.RunSummary, error) {
	if err := action.Validate(); err != nil {
		return models.RunSummary{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	action = action.Clone()
	runID := uuid.NewString()
	startedAt := time.Now()

	emit := func(state models.RunState, reason models.Reason, detail string) {
		if s.opts.Events != nil {
			s.opts.Events.Emit(Event{RunID: runID, ActionID: action.ID, Run: state, Reason: reason, Detail: detail, At: time.Now()})
		}
	}
	emit(models.RunPending, models.ReasonNone, string(action.Kind))
	emit(models.RunDispatching, models.ReasonNone, "")

	ids, err := s.store.List(ctx)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("%w: %v", ErrListAccounts, err)
	}
	ids = dedupe(ids)

	agg := NewAggregator(runID, action.ID, ids, startedAt)
	if len(ids) == 0 {
		log.Info().Str("run_id", runID).Int("action_id", action.ID).Msg("[SCHEDULER] нет аккаунтов для запуска")
		summary := agg.Seal(models.RunCompleted, time.Now())
		emit(models.RunCompleted, models.ReasonNone, "no accounts")
		return summary, nil
	}

	window := time.Duration(action.TimeWindowSeconds) * s.opts.TimeUnit
	runCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var limiter *rate.Limiter
	if s.opts.ConnectsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.ConnectsPerSecond), 1)
	}
	sem := semaphore.NewWeighted(int64(s.opts.MaxConcurrency))

	// Результаты принимаются под deliverMu, а OnResult и приёмники вызываются
	// одной горутиной через буфер: медленный приёмник не держит воркеров.
	// Каждый аккаунт принимается не больше одного раза, поэтому буфера хватает.
	var deliverMu sync.Mutex
	accepted := make(chan models.ExecutionResult, len(ids))
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for res := range accepted {
			if ro.OnResult != nil {
				ro.OnResult(res)
			}
			s.appendToSinks(ctx, runID, action.ID, res)
		}
	}()
	deliver := func(res models.ExecutionResult) {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if !agg.Add(res) {
			log.Debug().Str("run_id", runID).Str("account", res.AccountID).Msg("[SCHEDULER] поздний или повторный результат отброшен")
			return
		}
		accepted <- res
	}

	emit(models.RunRunning, models.ReasonNone, fmt.Sprintf("%d accounts", len(ids)))

	var wg sync.WaitGroup
	for _, id := range ids {
		w := &worker{
			runID:     runID,
			action:    action,
			accountID: id,
			store:     s.store,
			gen:       s.gen,
			jitter:    s.jitter,
			opts:      s.opts,
			events:    s.opts.Events,
			sem:       sem,
			limiter:   limiter,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			wctx, wcancel := context.WithCancel(runCtx)
			defer wcancel()
			deliver(w.run(wctx))
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-runCtx.Done():
		grace := time.NewTimer(s.opts.GracePeriod)
		select {
		case <-done:
		case <-grace.C:
			log.Warn().Str("run_id", runID).Msg("[SCHEDULER] воркеры не отчитались за отведённое время")
		}
		grace.Stop()
	}

	// Аккаунты без отчёта фиксируются планировщиком.
	reason := contextReason(runCtx)
	for _, id := range agg.Missing() {
		deliver(models.ExecutionResult{
			AccountID: id,
			Outcome:   models.OutcomeFailed,
			Reason:    reason,
			Detail:    "worker did not report before the deadline",
			At:        time.Now(),
		})
	}

	state := models.RunCompleted
	if agg.interrupted() {
		state = models.RunTimedOut
	}
	deliverMu.Lock()
	summary := agg.Seal(state, time.Now())
	close(accepted)
	deliverMu.Unlock()
	<-drained

	log.Info().Str("run_id", runID).Int("action_id", action.ID).Str("state", string(state)).
		Int("succeeded", summary.Succeeded).Int("skipped", summary.Skipped).Int("failed", summary.Failed).
		Int("performed", summary.Performed).Msg("[SCHEDULER] запуск завершён")
	emit(state, models.ReasonNone, "")
	return summary, nil
}

// appendToSinks передаёт результат получателям. Их ошибки не влияют на запуск.
func (s *Scheduler) appendToSinks(ctx context.Context, runID string, actionID int, res models.ExecutionResult) {
	if len(s.opts.Sinks) == 0 {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	for _, sink := range s.opts.Sinks {
		if err := sink.Append(sctx, runID, actionID, res); err != nil {
			log.Error().Err(err).Str("run_id", runID).Str("account", res.AccountID).Msg("[SCHEDULER] не удалось передать результат")
		}
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
