package credentials

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"
	"atg_engage/pkg/telegram"

	"github.com/gotd/td/session"
)

const sessionExt = ".session"

// DirStore берёт аккаунты из каталога с файлами *.session.
// Поддерживаются JSON-сессии gotd и SQLite-сессии Pyrogram.
// Id аккаунта: имя файла без расширения.
type DirStore struct {
	dir     string
	apiID   int
	apiHash string
	locks   *telegram.AccountLocks
}

var _ orchestrator.CredentialStore = (*DirStore)(nil)

func NewDirStore(dir string, apiID int, apiHash string, locks *telegram.AccountLocks) *DirStore {
	if locks == nil {
		locks = telegram.NewAccountLocks()
	}
	return &DirStore{dir: dir, apiID: apiID, apiHash: apiHash, locks: locks}
}

// List возвращает имена файлов сессий в алфавитном порядке.
func (s *DirStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}
	ids := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), sessionExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), sessionExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Acquire захватывает аккаунт и готовит клиент с файловой сессией.
func (s *DirStore) Acquire(ctx context.Context, accountID string) (orchestrator.Session, error) {
	if accountID == "" || strings.ContainsAny(accountID, `/\`) {
		return nil, fmt.Errorf("%w: bad account id %q", orchestrator.ErrSessionUnavailable, accountID)
	}
	path := filepath.Join(s.dir, accountID+sessionExt)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrSessionUnavailable, err)
	}
	if err := s.locks.TryLock(accountID); err != nil {
		return nil, err
	}
	storage, err := s.storage(ctx, path)
	if err != nil {
		s.locks.Unlock(accountID)
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrSessionUnavailable, err)
	}
	acc := models.Account{Phone: accountID, ApiID: s.apiID, ApiHash: s.apiHash, IsAuthorized: true}
	client, err := telegram.NewClient(acc, storage)
	if err != nil {
		s.locks.Unlock(accountID)
		return nil, fmt.Errorf("%w: %v", orchestrator.ErrSessionUnavailable, err)
	}
	return telegram.NewSession(accountID, client, func() { s.locks.Unlock(accountID) }), nil
}

// storage выбирает хранилище сессии по формату файла.
// Сессия Pyrogram конвертируется в память, файл остаётся только для чтения.
func (s *DirStore) storage(ctx context.Context, path string) (session.Storage, error) {
	pyrogram, err := isSQLite(path)
	if err != nil {
		return nil, err
	}
	if pyrogram {
		return loadPyrogramSession(ctx, path)
	}
	return &session.FileStorage{Path: path}, nil
}
