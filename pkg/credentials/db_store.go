// Package credentials перечисляет аккаунты и выдаёт их сессии Telegram.
package credentials

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"
	"atg_engage/pkg/telegram"

	"github.com/gotd/td/session"
	"github.com/rs/zerolog/log"
)

// AccountSource: чтение аккаунтов из БД.
type AccountSource interface {
	GetAuthorizedAccounts(ctx context.Context) ([]models.Account, error)
	GetAccountByID(ctx context.Context, id int) (*models.Account, error)
}

// DBStore берёт авторизованные аккаунты из БД, а сессии — из таблицы account_session.
type DBStore struct {
	accounts AccountSource
	sessions *sql.DB
	locks    *telegram.AccountLocks
	now      func() time.Time
}

var _ orchestrator.CredentialStore = (*DBStore)(nil)

// NewDBStore создаёт хранилище. sessions может быть nil, тогда сессии живут в памяти.
func NewDBStore(accounts AccountSource, sessions *sql.DB, locks *telegram.AccountLocks) *DBStore {
	if locks == nil {
		locks = telegram.NewAccountLocks()
	}
	return &DBStore{accounts: accounts, sessions: sessions, locks: locks, now: time.Now}
}

// List возвращает id авторизованных аккаунтов, которые не находятся во флуд-бане.
func (s *DBStore) List(ctx context.Context) ([]string, error) {
	accounts, err := s.accounts.GetAuthorizedAccounts(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ids := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		if acc.InFloodWait(now) {
			log.Debug().Int("account", acc.ID).Time("until", *acc.FloodWaitUntil).Msg("[CREDENTIALS] аккаунт во флуд-бане, пропускаем")
			continue
		}
		ids = append(ids, strconv.Itoa(acc.ID))
	}
	return ids, nil
}

// Acquire захватывает аккаунт и готовит клиент с сессией из БД.
func (s *DBStore) Acquire(ctx context.Context, accountID string) (orchestrator.Session, error) {
	id, err := strconv.Atoi(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad account id %q", orchestrator.ErrSessionUnavailable, accountID)
	}
	if err := s.locks.TryLock(accountID); err != nil {
		return nil, err
	}
	unlock := func() { s.locks.Unlock(accountID) }

	acc, err := s.accounts.GetAccountByID(ctx, id)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("%w: load account %d: %v", orchestrator.ErrSessionUnavailable, id, err)
	}
	if !acc.IsAuthorized {
		unlock()
		return nil, fmt.Errorf("%w: account %d is not authorized", orchestrator.ErrSessionUnavailable, id)
	}

	var storage session.Storage
	if s.sessions != nil {
		storage = &telegram.DBSessionStorage{DB: s.sessions, AccountID: acc.ID}
	}
	client, err := telegram.NewClient(*acc, storage)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrSessionUnavailable, err)
	}
	return telegram.NewSession(accountID, client, unlock), nil
}
