package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"atg_engage/models"
)

type sent struct {
	PostID  int
	Payload string
}

// fakeGateway: общий для всех аккаунтов шлюз с настраиваемым поведением.
type fakeGateway struct {
	mu sync.Mutex

	posts         []models.Post
	discussion    *DiscussionRef
	allowed       []string
	allowedErr    error
	joinFn        func(ctx context.Context) error
	submitFn      func(ctx context.Context, post models.Post) error
	joinDelay     time.Duration
	comments      []sent
	reactions     []sent
	views         []sent
	fetchedLimits []int
}

func (g *fakeGateway) JoinIfNeeded(ctx context.Context, channel string) error {
	if g.joinDelay > 0 {
		select {
		case <-time.After(g.joinDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if g.joinFn != nil {
		return g.joinFn(ctx)
	}
	return nil
}

func (g *fakeGateway) ResolveDiscussion(ctx context.Context, channel string) (DiscussionRef, error) {
	if g.discussion == nil {
		return DiscussionRef{}, ErrNoDiscussion
	}
	return *g.discussion, nil
}

func (g *fakeGateway) FetchRecentPosts(ctx context.Context, channel string, limit int) ([]models.Post, error) {
	g.mu.Lock()
	g.fetchedLimits = append(g.fetchedLimits, limit)
	g.mu.Unlock()
	if limit < len(g.posts) {
		return g.posts[:limit], nil
	}
	return g.posts, nil
}

func (g *fakeGateway) submit(ctx context.Context, post models.Post) error {
	if g.submitFn != nil {
		return g.submitFn(ctx, post)
	}
	return nil
}

func (g *fakeGateway) SubmitComment(ctx context.Context, discussion DiscussionRef, post models.Post, text string) error {
	if err := g.submit(ctx, post); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.comments = append(g.comments, sent{PostID: post.ID, Payload: text})
	return nil
}

func (g *fakeGateway) SubmitReaction(ctx context.Context, post models.Post, emoji string) error {
	if err := g.submit(ctx, post); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reactions = append(g.reactions, sent{PostID: post.ID, Payload: emoji})
	return nil
}

func (g *fakeGateway) MarkViewed(ctx context.Context, post models.Post) error {
	if err := g.submit(ctx, post); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.views = append(g.views, sent{PostID: post.ID})
	return nil
}

func (g *fakeGateway) AllowedReactions(ctx context.Context, channel string) ([]string, error) {
	return g.allowed, g.allowedErr
}

// fakeStore выдаёт сессии поверх одного шлюза и считает параллельные подключения.
type fakeStore struct {
	ids         []string
	listErr     error
	gw          ChannelGateway
	unavailable map[string]bool

	active    atomic.Int32
	maxActive atomic.Int32
	acquired  atomic.Int32
	released  atomic.Int32

	mu   sync.Mutex
	held map[string]bool
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	return s.ids, s.listErr
}

func (s *fakeStore) Acquire(ctx context.Context, id string) (Session, error) {
	if s.unavailable[id] {
		return nil, ErrSessionUnavailable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = make(map[string]bool)
	}
	if s.held[id] {
		return nil, ErrSessionUnavailable
	}
	s.held[id] = true
	s.acquired.Add(1)
	return &fakeSession{id: id, store: s}, nil
}

type fakeSession struct {
	id    string
	store *fakeStore
	once  sync.Once
}

func (s *fakeSession) AccountID() string { return s.id }

func (s *fakeSession) Run(ctx context.Context, fn func(ctx context.Context, gw ChannelGateway) error) error {
	n := s.store.active.Add(1)
	defer s.store.active.Add(-1)
	for {
		m := s.store.maxActive.Load()
		if n <= m || s.store.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	return fn(ctx, s.store.gw)
}

func (s *fakeSession) Release() {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.held, s.id)
		s.store.mu.Unlock()
		s.store.released.Add(1)
	})
}

type fakeGenerator struct {
	mu    sync.Mutex
	fail  bool
	reqs  []TextRequest
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, req TextRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.reqs = append(g.reqs, req)
	if g.fail {
		return "", ErrGenerationFailed
	}
	return "ответ " + string(req.Tone), nil
}

// recorder собирает события запуска.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Emit(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type sinkFunc func(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error

func (f sinkFunc) Append(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error {
	return f(ctx, runID, actionID, res)
}

// fastOptions: настройки с миллисекундной единицей времени и без пауз.
func fastOptions() Options {
	return Options{
		MaxConcurrency:      5,
		TimeUnit:            time.Millisecond,
		GracePeriod:         50 * time.Millisecond,
		SendIntervalSeconds: map[models.ActionKind]int{},
		Seed:                42,
		Retry: RetryPolicy{
			RateLimitRetries:  1,
			TransientRetries:  2,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        5 * time.Millisecond,
			GenerationRetries: 2,
		},
	}
}

func accounts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune('a'+i)) + "-acc"
	}
	return out
}

func channelPosts(now time.Time) []models.Post {
	return []models.Post{
		{ID: 10, Text: "новость", Date: now.Add(-time.Hour)},
		{ID: 9, Text: "ответ", Reply: true, Date: now.Add(-2 * time.Hour)},
		{ID: 8, Text: "анонс", Date: now.Add(-3 * time.Hour)},
		{ID: 7, Service: true, Date: now.Add(-4 * time.Hour)},
		{ID: 6, Text: "старый", Date: now.Add(-72 * time.Hour)},
	}
}
