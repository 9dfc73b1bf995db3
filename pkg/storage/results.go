package storage

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"

	"github.com/rs/zerolog/log"
)

// ResultStore сохраняет результаты аккаунтов и сводки запусков.
type ResultStore struct {
	db *DB
}

var _ orchestrator.ResultSink = (*ResultStore)(nil)

func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db}
}

// Append записывает результат аккаунта. Повторная запись того же аккаунта в запуске игнорируется.
func (s *ResultStore) Append(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error {
	var tones []byte
	if len(res.ToneCounts) > 0 {
		var err error
		if tones, err = json.Marshal(res.ToneCounts); err != nil {
			return err
		}
	}
	_, err := s.db.Conn.ExecContext(ctx, `
        INSERT INTO execution_results (run_id, action_id, account_id, outcome, reason, detail, count, tone_counts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (run_id, account_id) DO NOTHING`,
		runID, actionID, res.AccountID, string(res.Outcome), string(res.Reason), res.Detail, res.Count, tones, res.At,
	)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("account", res.AccountID).Msg("[DB] ошибка сохранения результата")
	}
	return err
}

// SaveRunSummary записывает итог запуска.
func (s *ResultStore) SaveRunSummary(ctx context.Context, sum models.RunSummary) error {
	_, err := s.db.Conn.ExecContext(ctx, `
        INSERT INTO action_runs (run_id, action_id, state, no_accounts, total, succeeded, skipped, failed, performed, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (run_id) DO UPDATE SET state = EXCLUDED.state, finished_at = EXCLUDED.finished_at`,
		sum.RunID, sum.ActionID, string(sum.State), sum.NoAccounts, sum.Total, sum.Succeeded, sum.Skipped,
		sum.Failed, sum.Performed, sum.StartedAt, sum.FinishedAt,
	)
	return err
}

// ListRuns возвращает сводки запусков действия, новые первыми. Results не заполняются.
func (s *ResultStore) ListRuns(ctx context.Context, actionID int) ([]models.RunSummary, error) {
	rows, err := s.db.Conn.QueryContext(ctx, `
        SELECT run_id, action_id, state, no_accounts, total, succeeded, skipped, failed, performed, started_at, finished_at
        FROM action_runs WHERE action_id = $1 ORDER BY started_at DESC`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.RunSummary{}
	for rows.Next() {
		var (
			sum   models.RunSummary
			state string
		)
		if err := rows.Scan(&sum.RunID, &sum.ActionID, &state, &sum.NoAccounts, &sum.Total, &sum.Succeeded,
			&sum.Skipped, &sum.Failed, &sum.Performed, &sum.StartedAt, &sum.FinishedAt); err != nil {
			return nil, err
		}
		sum.State = models.RunState(state)
		runs = append(runs, sum)
	}
	return runs, rows.Err()
}

// FloodWaitRecorder отмечает флуд-бан аккаунта при событии RateLimited.
type FloodWaitRecorder struct {
	db  *DB
	now func() time.Time
}

var _ orchestrator.EventSink = (*FloodWaitRecorder)(nil)

func NewFloodWaitRecorder(db *DB) *FloodWaitRecorder {
	return &FloodWaitRecorder{db: db, now: time.Now}
}

func (r *FloodWaitRecorder) Emit(ev orchestrator.Event) {
	if ev.Reason != models.ReasonRateLimited || ev.RetryAfter <= 0 || ev.AccountID == "" {
		return
	}
	id, err := strconv.Atoi(ev.AccountID)
	if err != nil {
		// Аккаунты из каталога сессий в БД не хранятся.
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	until := r.now().Add(ev.RetryAfter)
	if err := r.db.MarkFloodBan(ctx, id, until); err != nil {
		log.Error().Err(err).Int("account", id).Msg("[DB] не удалось отметить флуд-бан")
		return
	}
	log.Warn().Int("account", id).Time("until", until).Msg("[DB] аккаунт во флуд-бане")
}
