package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"atg_engage/models"

	"github.com/rs/zerolog/log"
)

const accountColumns = `
    a.id, a.phone, a.api_id, a.api_hash, a.is_authorized, a.floodwait_until, a.proxy_id,
    p.id, p.ip, p.port, p.login, p.password, p.is_active
    FROM accounts a
    LEFT JOIN proxy p ON a.proxy_id = p.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (models.Account, error) {
	var (
		account       models.Account
		floodUntil    sql.NullTime
		proxyRef      sql.NullInt64
		proxyID       sql.NullInt64
		proxyIP       sql.NullString
		proxyPort     sql.NullInt64
		proxyLogin    sql.NullString
		proxyPassword sql.NullString
		proxyActive   sql.NullBool
	)
	err := row.Scan(
		&account.ID,
		&account.Phone,
		&account.ApiID,
		&account.ApiHash,
		&account.IsAuthorized,
		&floodUntil,
		&proxyRef,
		&proxyID,
		&proxyIP,
		&proxyPort,
		&proxyLogin,
		&proxyPassword,
		&proxyActive,
	)
	if err != nil {
		return account, err
	}
	if floodUntil.Valid {
		t := floodUntil.Time
		account.FloodWaitUntil = &t
	}
	if proxyID.Valid {
		ref := int(proxyRef.Int64)
		account.ProxyID = &ref
		account.Proxy = &models.Proxy{
			ID:       int(proxyID.Int64),
			IP:       proxyIP.String,
			Port:     int(proxyPort.Int64),
			Login:    proxyLogin.String,
			Password: proxyPassword.String,
			IsActive: proxyActive.Valid && proxyActive.Bool,
		}
	}
	return account, nil
}

// GetAuthorizedAccounts возвращает авторизованные аккаунты в порядке id.
func (db *DB) GetAuthorizedAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := db.Conn.QueryContext(ctx, "SELECT"+accountColumns+" WHERE a.is_authorized = true ORDER BY a.id")
	if err != nil {
		log.Error().Err(err).Msg("[DB] не удалось получить авторизованные аккаунты")
		return nil, fmt.Errorf("get authorized accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			log.Warn().Err(err).Msg("[DB] пропущена запись аккаунта")
			continue
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get authorized accounts: %w", err)
	}
	log.Debug().Int("count", len(accounts)).Msg("[DB] найдены авторизованные аккаунты")
	return accounts, nil
}

// GetAccountByID возвращает аккаунт вместе с прокси.
func (db *DB) GetAccountByID(ctx context.Context, id int) (*models.Account, error) {
	account, err := scanAccount(db.Conn.QueryRowContext(ctx, "SELECT"+accountColumns+" WHERE a.id = $1", id))
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// MarkFloodBan фиксирует время окончания флуд-бана для аккаунта.
func (db *DB) MarkFloodBan(ctx context.Context, accountID int, until time.Time) error {
	_, err := db.Conn.ExecContext(ctx, "UPDATE accounts SET floodwait_until = $1 WHERE id = $2", until, accountID)
	return err
}
