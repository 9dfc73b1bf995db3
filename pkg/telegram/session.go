package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"atg_engage/pkg/orchestrator"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AccountLocks не даёт двум воркерам одновременно использовать один аккаунт.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAccountLocks создаёт пустой реестр блокировок.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*sync.Mutex)}
}

// TryLock захватывает аккаунт. Если он уже занят, возвращается ошибка.
func (l *AccountLocks) TryLock(accountID string) error {
	l.mu.Lock()
	lock, ok := l.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[accountID] = lock
	}
	l.mu.Unlock()

	if !lock.TryLock() {
		log.Debug().Str("account", accountID).Msg("[MUTEX] аккаунт занят")
		return fmt.Errorf("%w: account %s is already in use", orchestrator.ErrSessionUnavailable, accountID)
	}
	return nil
}

// Unlock освобождает аккаунт.
func (l *AccountLocks) Unlock(accountID string) {
	l.mu.Lock()
	lock := l.locks[accountID]
	l.mu.Unlock()
	if lock != nil {
		lock.Unlock()
	}
}

// Session: подключение аккаунта к Telegram, удерживающее блокировку до Release.
type Session struct {
	id     string
	client *telegram.Client
	unlock func()
	once   sync.Once
	log    zerolog.Logger
}

var _ orchestrator.Session = (*Session)(nil)

// NewSession оборачивает клиент. unlock вызывается один раз при Release.
func NewSession(accountID string, client *telegram.Client, unlock func()) *Session {
	return &Session{
		id:     accountID,
		client: client,
		unlock: unlock,
		log:    log.With().Str("account", accountID).Logger(),
	}
}

func (s *Session) AccountID() string { return s.id }

// Run подключается к Telegram, проверяет авторизацию и выполняет fn со шлюзом.
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, gw orchestrator.ChannelGateway) error) error {
	started := false
	err := s.client.Run(ctx, func(ctx context.Context) error {
		status, err := s.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("%w: auth status: %v", orchestrator.ErrSessionUnavailable, mapError(err))
		}
		if !status.Authorized {
			return fmt.Errorf("%w: account %s is not authorized", orchestrator.ErrSessionUnavailable, s.id)
		}
		started = true
		return fn(ctx, NewGateway(tg.NewClient(s.client), s.log))
	})
	if err != nil && !started && ctx.Err() == nil {
		// Не удалось подключиться: соединение или ключ авторизации.
		mapped := mapError(err)
		var rl *orchestrator.RateLimitedError
		if errors.Is(mapped, orchestrator.ErrTransientNetwork) || errors.Is(mapped, orchestrator.ErrSessionUnavailable) ||
			errors.As(mapped, &rl) {
			return mapped
		}
		return fmt.Errorf("%w: %v", orchestrator.ErrSessionUnavailable, err)
	}
	return err
}

// Release освобождает аккаунт. Повторный вызов ничего не делает.
func (s *Session) Release() {
	s.once.Do(func() {
		if s.unlock != nil {
			s.unlock()
		}
	})
}
