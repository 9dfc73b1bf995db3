package orchestrator

import (
	"time"

	"atg_engage/models"

	"github.com/rs/zerolog"
)

// WorkerState: состояние воркера одного аккаунта.
type WorkerState string

const (
	WorkerIdle          WorkerState = "idle"
	WorkerWaitingJitter WorkerState = "waiting_jitter"
	// WorkerQueued: воркер ждёт свободный слот параллелизма или токен темпа подключений.
	WorkerQueued     WorkerState = "queued"
	WorkerConnecting WorkerState = "connecting"
	WorkerExecuting  WorkerState = "executing"
	WorkerReporting  WorkerState = "reporting"
	WorkerDone       WorkerState = "done"
	WorkerFailed     WorkerState = "failed"
)

// Event описывает один переход состояния запуска или воркера.
// Для событий запуска AccountID пуст, для событий воркера пуст Run.
type Event struct {
	RunID      string
	ActionID   int
	AccountID  string
	Run        models.RunState
	Worker     WorkerState
	Reason     models.Reason
	Count      int
	RetryAfter time.Duration
	Detail     string
	At         time.Time
}

// EventSink принимает события переходов. Вызывается из горутин воркеров,
// поэтому реализация должна быть потокобезопасной.
type EventSink interface {
	Emit(ev Event)
}

// EventSinkFunc позволяет использовать функцию как EventSink.
type EventSinkFunc func(ev Event)

func (f EventSinkFunc) Emit(ev Event) { f(ev) }

// MultiEvents рассылает событие всем получателям по очереди.
type MultiEvents []EventSink

func (m MultiEvents) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// LogEvents пишет каждое событие одной записью zerolog.
type LogEvents struct {
	Logger zerolog.Logger
}

// NewLogEvents создаёт получатель событий поверх логгера.
func NewLogEvents(l zerolog.Logger) *LogEvents {
	return &LogEvents{Logger: l}
}

func (l *LogEvents) Emit(ev Event) {
	level := zerolog.InfoLevel
	switch {
	case ev.Worker == WorkerFailed || ev.Run == models.RunTimedOut:
		level = zerolog.WarnLevel
	case ev.Worker == WorkerWaitingJitter || ev.Worker == WorkerQueued || ev.Worker == WorkerConnecting || ev.Worker == WorkerReporting:
		level = zerolog.DebugLevel
	}

	e := l.Logger.WithLevel(level).
		Str("run_id", ev.RunID).
		Int("action_id", ev.ActionID)
	if ev.AccountID != "" {
		e = e.Str("account", ev.AccountID).Str("state", string(ev.Worker))
	} else {
		e = e.Str("run_state", string(ev.Run))
	}
	if ev.Reason != models.ReasonNone {
		e = e.Str("reason", string(ev.Reason))
	}
	if ev.Count > 0 {
		e = e.Int("count", ev.Count)
	}
	if ev.RetryAfter > 0 {
		e = e.Dur("retry_after", ev.RetryAfter)
	}
	if ev.Detail != "" {
		e = e.Str("detail", ev.Detail)
	}
	if ev.AccountID != "" {
		e.Msg("[WORKER] переход состояния")
		return
	}
	e.Msg("[SCHEDULER] переход состояния")
}
