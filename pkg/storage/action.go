package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"atg_engage/models"

	"github.com/rs/zerolog/log"
)

// ErrActionNotFound сообщает, что действия с таким id нет.
var ErrActionNotFound = errors.New("action not found")

const actionColumns = `id, channel, kind, desired_count, time_window_seconds, spread_percent,
    tone_counts, custom_prompt, start_delay_seconds, send_interval_seconds`

func scanAction(row rowScanner) (models.Action, error) {
	var (
		a     models.Action
		kind  string
		tones []byte
	)
	err := row.Scan(&a.ID, &a.Channel, &kind, &a.DesiredCount, &a.TimeWindowSeconds, &a.SpreadPercent,
		&tones, &a.CustomPrompt, &a.StartDelaySeconds, &a.SendIntervalSeconds)
	if err != nil {
		return a, err
	}
	a.Kind = models.ActionKind(kind)
	if len(tones) > 0 {
		if err := json.Unmarshal(tones, &a.ToneCounts); err != nil {
			return a, fmt.Errorf("decode tone_counts: %w", err)
		}
	}
	return a, nil
}

func encodeTones(tones map[models.Tone]int) ([]byte, error) {
	if tones == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(tones)
}

// CreateAction сохраняет действие после проверки полей.
func (db *DB) CreateAction(ctx context.Context, a models.Action) (*models.Action, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	tones, err := encodeTones(a.ToneCounts)
	if err != nil {
		return nil, err
	}
	err = db.Conn.QueryRowContext(ctx, `
        INSERT INTO actions (channel, kind, desired_count, time_window_seconds, spread_percent,
                             tone_counts, custom_prompt, start_delay_seconds, send_interval_seconds)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id`,
		a.Channel, string(a.Kind), a.DesiredCount, a.TimeWindowSeconds, a.SpreadPercent,
		tones, a.CustomPrompt, a.StartDelaySeconds, a.SendIntervalSeconds,
	).Scan(&a.ID)
	if err != nil {
		log.Error().Err(err).Msg("[DB] ошибка при создании действия")
		return nil, err
	}
	log.Info().Int("action_id", a.ID).Str("kind", string(a.Kind)).Msg("[DB] действие создано")
	return &a, nil
}

// GetAction возвращает действие по id.
func (db *DB) GetAction(ctx context.Context, id int) (*models.Action, error) {
	a, err := scanAction(db.Conn.QueryRowContext(ctx, "SELECT "+actionColumns+" FROM actions WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActions возвращает все действия в порядке создания.
func (db *DB) ListActions(ctx context.Context) ([]models.Action, error) {
	rows, err := db.Conn.QueryContext(ctx, "SELECT "+actionColumns+" FROM actions ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []models.Action{}
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// UpdateAction применяет частичное обновление и сохраняет результат.
func (db *DB) UpdateAction(ctx context.Context, id int, u models.ActionUpdate) (*models.Action, error) {
	current, err := db.GetAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Empty() {
		return current, nil
	}
	updated := models.ApplyActionUpdate(*current, u)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	tones, err := encodeTones(updated.ToneCounts)
	if err != nil {
		return nil, err
	}
	res, err := db.Conn.ExecContext(ctx, `
        UPDATE actions SET channel = $1, kind = $2, desired_count = $3, time_window_seconds = $4,
               spread_percent = $5, tone_counts = $6, custom_prompt = $7,
               start_delay_seconds = $8, send_interval_seconds = $9
        WHERE id = $10`,
		updated.Channel, string(updated.Kind), updated.DesiredCount, updated.TimeWindowSeconds,
		updated.SpreadPercent, tones, updated.CustomPrompt,
		updated.StartDelaySeconds, updated.SendIntervalSeconds, id,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrActionNotFound
	}
	return &updated, nil
}

// DeleteAction удаляет действие. Результаты прошлых запусков остаются.
func (db *DB) DeleteAction(ctx context.Context, id int) error {
	res, err := db.Conn.ExecContext(ctx, "DELETE FROM actions WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrActionNotFound
	}
	return nil
}
