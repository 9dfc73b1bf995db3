package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"atg_engage/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reactionAction(desired int) models.Action {
	return models.Action{ID: 1, Channel: "news", Kind: models.ActionReaction, DesiredCount: desired, TimeWindowSeconds: 2000}
}

func commentAction(tones map[models.Tone]int) models.Action {
	return models.Action{ID: 2, Channel: "news", Kind: models.ActionComment, ToneCounts: tones, TimeWindowSeconds: 2000}
}

func byAccount(summary models.RunSummary) map[string]models.ExecutionResult {
	out := make(map[string]models.ExecutionResult, len(summary.Results))
	for _, r := range summary.Results {
		out[r.AccountID] = r
	}
	return out
}

func assertConsistent(t *testing.T, summary models.RunSummary, listed int) {
	t.Helper()
	assert.Equal(t, listed, summary.Total)
	assert.Equal(t, listed, summary.Succeeded+summary.Skipped+summary.Failed)
	assert.Len(t, summary.Results, listed)
	performed := 0
	for _, r := range summary.Results {
		performed += r.Count
	}
	assert.Equal(t, performed, summary.Performed)
}

func TestRunInvalidAction(t *testing.T) {
	s := NewScheduler(&fakeStore{}, nil, fastOptions())
	_, err := s.Run(context.Background(), models.Action{Kind: models.ActionView, TimeWindowSeconds: 10})
	require.ErrorIs(t, err, ErrInvalidAction)
}

func TestRunListFailure(t *testing.T) {
	s := NewScheduler(&fakeStore{listErr: errors.New("db down")}, nil, fastOptions())
	_, err := s.Run(context.Background(), reactionAction(1))
	require.ErrorIs(t, err, ErrListAccounts)
}

func TestRunNoAccounts(t *testing.T) {
	s := NewScheduler(&fakeStore{}, nil, fastOptions())
	summary, err := s.Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	assert.True(t, summary.NoAccounts)
	assert.Equal(t, models.RunCompleted, summary.State)
	assert.Zero(t, summary.Total)
	assert.NotNil(t, summary.Results)
	assert.NotEmpty(t, summary.RunID)
}

func TestRunReactionAllAccountsSucceed(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), allowed: []string{"👍", "🔥"}}
	store := &fakeStore{ids: accounts(5), gw: gw}
	s := NewScheduler(store, nil, fastOptions())

	summary, err := s.Run(context.Background(), reactionAction(3))
	require.NoError(t, err)
	assertConsistent(t, summary, 5)
	assert.Equal(t, models.RunCompleted, summary.State)
	assert.Equal(t, 5, summary.Succeeded)
	for _, r := range summary.Results {
		assert.LessOrEqual(t, r.Count, 3)
		// Два поста проходят фильтр: свежие, не сервисные, не ответы.
		assert.Equal(t, 2, r.Count)
	}
	for _, r := range gw.reactions {
		assert.Contains(t, []string{"👍", "🔥"}, r.Payload)
		assert.Contains(t, []int{10, 8}, r.PostID)
	}
	assert.Equal(t, store.acquired.Load(), store.released.Load())
}

func TestRunReactionCappedByDesiredCount(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	store := &fakeStore{ids: accounts(2), gw: gw}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	for _, r := range summary.Results {
		assert.Equal(t, 1, r.Count)
	}
	// Без списка разрешённых реакций используется набор по умолчанию.
	for _, r := range gw.reactions {
		assert.Contains(t, FallbackReactions, r.Payload)
	}
}

func TestRunReactionsDisabledIsSkipped(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), allowedErr: ErrReactionsDisabled}
	store := &fakeStore{ids: accounts(2), gw: gw}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), reactionAction(3))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	for _, r := range summary.Results {
		assert.Equal(t, models.ReasonReactionsDisabled, r.Reason)
	}
}

func TestRunRateLimitedOnceThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	gw.submitFn = func(ctx context.Context, post models.Post) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return RateLimited(5 * time.Millisecond)
		}
		return nil
	}
	rec := &recorder{}
	opts := fastOptions()
	opts.Events = rec
	store := &fakeStore{ids: accounts(1), gw: gw}

	summary, err := NewScheduler(store, nil, opts).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.OutcomeSucceeded, summary.Results[0].Outcome)
	assert.Equal(t, 1, summary.Results[0].Count)
	assert.Equal(t, 2, calls)

	var limited []Event
	for _, ev := range rec.snapshot() {
		if ev.Reason == models.ReasonRateLimited {
			limited = append(limited, ev)
		}
	}
	require.Len(t, limited, 1)
	assert.Equal(t, 5*time.Millisecond, limited[0].RetryAfter)
}

func TestRunRateLimitedEverySendFails(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	gw.submitFn = func(ctx context.Context, post models.Post) error {
		return RateLimited(time.Millisecond)
	}
	store := &fakeStore{ids: accounts(1), gw: gw}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), reactionAction(2))
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, models.OutcomeFailed, summary.Results[0].Outcome)
	assert.Equal(t, models.ReasonRateLimited, summary.Results[0].Reason)
	assert.Zero(t, summary.Results[0].Count)
}

func TestRunCommentToneQuotas(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), discussion: &DiscussionRef{ChatID: 77}}
	gen := &fakeGenerator{}
	store := &fakeStore{ids: accounts(2), gw: gw}
	action := commentAction(map[models.Tone]int{models.TonePositive: 2, models.ToneNeutral: 1})

	summary, err := NewScheduler(store, gen, fastOptions()).Run(context.Background(), action)
	require.NoError(t, err)
	assertConsistent(t, summary, 2)
	assert.Equal(t, 2, summary.Succeeded)
	for _, r := range summary.Results {
		assert.Equal(t, 3, r.Count)
		assert.Equal(t, map[models.Tone]int{models.TonePositive: 2, models.ToneNeutral: 1}, r.ToneCounts)
	}

	// Ответы и сервисные посты не комментируются.
	perPost := map[int]int{}
	for _, c := range gw.comments {
		perPost[c.PostID]++
	}
	assert.Equal(t, map[int]int{10: 4, 8: 2}, perPost)
	assert.Equal(t, 15, gw.fetchedLimits[0])
	for _, req := range gen.reqs {
		assert.Contains(t, []string{"новость", "анонс"}, req.PostContent)
	}
}

func TestRunCommentNoDiscussionIsSkipped(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	store := &fakeStore{ids: accounts(2), gw: gw}
	summary, err := NewScheduler(store, &fakeGenerator{}, fastOptions()).
		Run(context.Background(), commentAction(map[models.Tone]int{models.TonePositive: 2}))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, models.RunCompleted, summary.State)
	for _, r := range summary.Results {
		assert.Equal(t, models.OutcomeSkipped, r.Outcome)
		assert.Equal(t, models.ReasonNoDiscussion, r.Reason)
	}
	assert.Empty(t, gw.comments)
}

func TestRunCommentGenerationFallback(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), discussion: &DiscussionRef{ChatID: 77}}
	gen := &fakeGenerator{fail: true}
	store := &fakeStore{ids: accounts(1), gw: gw}
	summary, err := NewScheduler(store, gen, fastOptions()).
		Run(context.Background(), commentAction(map[models.Tone]int{models.ToneQuestion: 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	// Одна попытка и две повторные генерации.
	assert.Equal(t, 3, gen.calls)
	require.Len(t, gw.comments, 1)
	assert.Equal(t, FallbackText(models.ToneQuestion, 0), gw.comments[0].Payload)
}

func TestRunCommentPermissionDeniedAborts(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), discussion: &DiscussionRef{ChatID: 77}}
	gw.submitFn = func(ctx context.Context, post models.Post) error {
		return ErrPermissionDenied
	}
	gen := &fakeGenerator{}
	store := &fakeStore{ids: accounts(1), gw: gw}
	summary, err := NewScheduler(store, gen, fastOptions()).
		Run(context.Background(), commentAction(map[models.Tone]int{models.TonePositive: 3}))
	require.NoError(t, err)
	assert.Equal(t, models.ReasonPermissionDenied, summary.Results[0].Reason)
	assert.Equal(t, 1, gen.calls)
}

func TestRunCustomPromptPassedToGenerator(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), discussion: &DiscussionRef{ChatID: 77}}
	gen := &fakeGenerator{}
	action := commentAction(map[models.Tone]int{models.TonePositive: 1})
	action.CustomPrompt = "напиши коротко"
	_, err := NewScheduler(&fakeStore{ids: accounts(1), gw: gw}, gen, fastOptions()).Run(context.Background(), action)
	require.NoError(t, err)
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "напиши коротко", gen.reqs[0].CustomPrompt)
}

func TestRunViewMarksPosts(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	store := &fakeStore{ids: accounts(3), gw: gw}
	action := models.Action{ID: 3, Channel: "news", Kind: models.ActionView, DesiredCount: 4, TimeWindowSeconds: 2000}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	for _, r := range summary.Results {
		// Из четырёх последних постов один сервисный.
		assert.Equal(t, 3, r.Count)
	}
	assert.Equal(t, 9, summary.Performed)
}

func TestRunSessionUnavailable(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	ids := accounts(3)
	store := &fakeStore{ids: ids, gw: gw, unavailable: map[string]bool{ids[1]: true}}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	assertConsistent(t, summary, 3)
	res := byAccount(summary)
	assert.Equal(t, models.OutcomeFailed, res[ids[1]].Outcome)
	assert.Equal(t, models.ReasonSessionUnavailable, res[ids[1]].Reason)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, models.RunCompleted, summary.State)
}

func TestRunPanicIsInternal(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	gw.joinFn = func(ctx context.Context) error { panic("boom") }
	store := &fakeStore{ids: accounts(2), gw: gw}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	for _, r := range summary.Results {
		assert.Equal(t, models.ReasonInternal, r.Reason)
	}
	assert.Equal(t, store.acquired.Load(), store.released.Load())
}

func TestRunDeadlineTimesOut(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	gw.joinFn = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	store := &fakeStore{ids: accounts(3), gw: gw}
	action := reactionAction(1)
	action.TimeWindowSeconds = 30

	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, models.RunTimedOut, summary.State)
	assertConsistent(t, summary, 3)
	for _, r := range summary.Results {
		assert.Equal(t, models.OutcomeFailed, r.Outcome)
		assert.Equal(t, models.ReasonDeadlineExceeded, r.Reason)
	}
	assert.Equal(t, store.acquired.Load(), store.released.Load())
}

func TestRunStuckWorkerRecordedAfterGrace(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	gw.joinFn = func(ctx context.Context) error {
		<-release
		return nil
	}
	store := &fakeStore{ids: accounts(2), gw: gw}
	opts := fastOptions()
	opts.GracePeriod = 20 * time.Millisecond
	action := reactionAction(1)
	action.TimeWindowSeconds = 20

	var delivered []models.ExecutionResult
	summary, err := NewScheduler(store, nil, opts).RunWith(context.Background(), action, RunOptions{
		OnResult: func(res models.ExecutionResult) { delivered = append(delivered, res) },
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunTimedOut, summary.State)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, delivered, 2)
	for _, r := range summary.Results {
		assert.Equal(t, models.ReasonDeadlineExceeded, r.Reason)
	}
}

func TestRunParentCancelled(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	ctx, cancel := context.WithCancel(context.Background())
	gw.joinFn = func(jctx context.Context) error {
		cancel()
		<-jctx.Done()
		return jctx.Err()
	}
	store := &fakeStore{ids: accounts(2), gw: gw}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(ctx, reactionAction(1))
	require.NoError(t, err)
	assert.Equal(t, models.RunTimedOut, summary.State)
	for _, r := range summary.Results {
		assert.Equal(t, models.ReasonCancelled, r.Reason)
	}
}

// activeTracker считает воркеров, которые по событиям находятся в Connecting или Executing.
type activeTracker struct {
	mu     sync.Mutex
	active map[string]bool
	max    int
	queued int
}

func (a *activeTracker) Emit(ev Event) {
	if ev.AccountID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	switch ev.Worker {
	case WorkerQueued:
		a.queued++
	case WorkerConnecting, WorkerExecuting:
		a.active[ev.AccountID] = true
	default:
		delete(a.active, ev.AccountID)
	}
	if len(a.active) > a.max {
		a.max = len(a.active)
	}
}

func TestRunConcurrencyBound(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now()), joinDelay: 20 * time.Millisecond}
	store := &fakeStore{ids: accounts(5), gw: gw}
	tracker := &activeTracker{active: map[string]bool{}}
	opts := fastOptions()
	opts.MaxConcurrency = 2
	opts.Events = tracker

	summary, err := NewScheduler(store, nil, opts).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Succeeded)
	assert.LessOrEqual(t, store.maxActive.Load(), int32(2))
	assert.Equal(t, int32(2), store.maxActive.Load())

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.LessOrEqual(t, tracker.max, 2, "по событиям в Connecting/Executing больше воркеров, чем слотов")
	assert.Equal(t, 2, tracker.max)
	assert.Equal(t, 5, tracker.queued)
}

func TestRunDuplicateAccountsRunOnce(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	store := &fakeStore{ids: []string{"a", "b", "a"}, gw: gw}
	summary, err := NewScheduler(store, nil, fastOptions()).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)
	assertConsistent(t, summary, 2)
}

// Медленный приёмник результатов не должен превращать отчитавшихся воркеров в просроченных.
func TestRunSlowSinkDoesNotDelayAcceptance(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	store := &fakeStore{ids: accounts(3), gw: gw}
	var mu sync.Mutex
	var stored []models.ExecutionResult
	opts := fastOptions()
	opts.GracePeriod = 10 * time.Millisecond
	opts.Sinks = []ResultSink{
		sinkFunc(func(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error {
			time.Sleep(60 * time.Millisecond)
			mu.Lock()
			defer mu.Unlock()
			stored = append(stored, res)
			return nil
		}),
	}
	action := reactionAction(1)
	action.TimeWindowSeconds = 60

	summary, err := NewScheduler(store, nil, opts).Run(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, summary.State)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Zero(t, summary.Failed)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stored, 3)
	for _, res := range stored {
		assert.Equal(t, models.OutcomeSucceeded, res.Outcome)
	}
}

func TestRunSinksAndProgress(t *testing.T) {
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	store := &fakeStore{ids: accounts(3), gw: gw}
	var mu sync.Mutex
	appended := map[string]int{}
	opts := fastOptions()
	opts.Sinks = []ResultSink{
		sinkFunc(func(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error {
			mu.Lock()
			defer mu.Unlock()
			appended[res.AccountID]++
			assert.Equal(t, 1, actionID)
			assert.NotEmpty(t, runID)
			return nil
		}),
		sinkFunc(func(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error {
			return errors.New("sink unavailable")
		}),
	}
	progress := 0
	summary, err := NewScheduler(store, nil, opts).RunWith(context.Background(), reactionAction(1), RunOptions{
		OnResult: func(models.ExecutionResult) { progress++ },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 3, progress)
	assert.Len(t, appended, 3)
	for _, n := range appended {
		assert.Equal(t, 1, n)
	}
}

func TestRunEmitsRunStates(t *testing.T) {
	rec := &recorder{}
	opts := fastOptions()
	opts.Events = rec
	gw := &fakeGateway{posts: channelPosts(time.Now())}
	_, err := NewScheduler(&fakeStore{ids: accounts(1), gw: gw}, nil, opts).Run(context.Background(), reactionAction(1))
	require.NoError(t, err)

	var runStates []models.RunState
	var workerStates []WorkerState
	for _, ev := range rec.snapshot() {
		if ev.AccountID == "" {
			runStates = append(runStates, ev.Run)
		} else if ev.Reason == models.ReasonNone {
			workerStates = append(workerStates, ev.Worker)
		}
	}
	assert.Equal(t, []models.RunState{models.RunPending, models.RunDispatching, models.RunRunning, models.RunCompleted}, runStates)
	assert.Equal(t, []WorkerState{WorkerWaitingJitter, WorkerQueued, WorkerConnecting, WorkerExecuting, WorkerReporting, WorkerDone}, workerStates)
}
