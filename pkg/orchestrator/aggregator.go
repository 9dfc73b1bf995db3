package orchestrator

import (
	"sync"
	"time"

	"atg_engage/models"
)

// Aggregator собирает результаты воркеров одного запуска.
// Итоговая сводка доступна только после Seal, промежуточное состояние наружу не отдаётся.
type Aggregator struct {
	mu sync.Mutex

	runID     string
	actionID  int
	startedAt time.Time

	expected map[string]struct{}
	order    []string
	reported map[string]struct{}
	results  []models.ExecutionResult

	succeeded, skipped, failed, performed int

	sealed  bool
	summary models.RunSummary
}

// NewAggregator создаёт агрегатор для заданного набора аккаунтов.
func NewAggregator(runID string, actionID int, accounts []string, startedAt time.Time) *Aggregator {
	a := &Aggregator{
		runID:     runID,
		actionID:  actionID,
		startedAt: startedAt,
		expected:  make(map[string]struct{}, len(accounts)),
		reported:  make(map[string]struct{}, len(accounts)),
		results:   make([]models.ExecutionResult, 0, len(accounts)),
	}
	for _, id := range accounts {
		if _, ok := a.expected[id]; ok {
			continue
		}
		a.expected[id] = struct{}{}
		a.order = append(a.order, id)
	}
	return a
}

// Add учитывает результат. Возвращает false, если сводка уже зафиксирована,
// аккаунт не входит в запуск или уже отчитался.
func (a *Aggregator) Add(res models.ExecutionResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		return false
	}
	if _, ok := a.expected[res.AccountID]; !ok {
		return false
	}
	if _, dup := a.reported[res.AccountID]; dup {
		return false
	}
	a.reported[res.AccountID] = struct{}{}
	a.results = append(a.results, res)

	switch res.Outcome {
	case models.OutcomeSucceeded:
		a.succeeded++
	case models.OutcomeSkipped:
		a.skipped++
	default:
		a.failed++
	}
	a.performed += res.Count
	return true
}

// Missing возвращает аккаунты, которые ещё не отчитались, в порядке запуска.
func (a *Aggregator) Missing() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, id := range a.order {
		if _, ok := a.reported[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// interrupted сообщает, что хотя бы один воркер прерван дедлайном или отменой.
func (a *Aggregator) interrupted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.results {
		if r.Reason == models.ReasonDeadlineExceeded || r.Reason == models.ReasonCancelled {
			return true
		}
	}
	return len(a.reported) < len(a.expected)
}

// Seal фиксирует сводку. Повторные вызовы возвращают ту же сводку.
func (a *Aggregator) Seal(state models.RunState, finishedAt time.Time) models.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return a.copySummary()
	}
	a.sealed = true
	a.summary = models.RunSummary{
		RunID:      a.runID,
		ActionID:   a.actionID,
		State:      state,
		NoAccounts: len(a.expected) == 0,
		Total:      len(a.expected),
		Succeeded:  a.succeeded,
		Skipped:    a.skipped,
		Failed:     a.failed,
		Performed:  a.performed,
		Results:    cloneResults(a.results),
		StartedAt:  a.startedAt,
		FinishedAt: finishedAt,
	}
	return a.copySummary()
}

func (a *Aggregator) copySummary() models.RunSummary {
	s := a.summary
	s.Results = cloneResults(a.summary.Results)
	return s
}

func cloneResults(in []models.ExecutionResult) []models.ExecutionResult {
	out := make([]models.ExecutionResult, len(in))
	copy(out, in)
	return out
}
