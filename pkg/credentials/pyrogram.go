package credentials

import (
	"bytes"
	"context"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram/dcs"
	_ "modernc.org/sqlite"
)

var sqliteHeader = []byte("SQLite format 3\x00")

// isSQLite сообщает, что файл сессии сохранён Pyrogram (SQLite), а не gotd (JSON).
func isSQLite(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(sqliteHeader))
	if _, err := io.ReadFull(f, head); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return bytes.Equal(head, sqliteHeader), nil
}

// loadPyrogramSession переносит ключ авторизации из файла Pyrogram в сессию gotd в памяти.
// Сам файл не изменяется.
func loadPyrogramSession(ctx context.Context, path string) (*session.StorageMemory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open pyrogram session: %w", err)
	}
	defer db.Close()

	var (
		dcID    int
		authKey []byte
	)
	err = db.QueryRowContext(ctx, "SELECT dc_id, auth_key FROM sessions LIMIT 1").Scan(&dcID, &authKey)
	if err != nil {
		return nil, fmt.Errorf("read pyrogram session: %w", err)
	}
	if len(authKey) != 256 {
		return nil, fmt.Errorf("pyrogram session: auth key has %d bytes", len(authKey))
	}

	addr, err := dcAddr(dcID)
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(authKey)
	data := &session.Data{
		DC:        dcID,
		Addr:      addr,
		AuthKey:   authKey,
		AuthKeyID: sum[12:],
	}

	storage := new(session.StorageMemory)
	if err := (&session.Loader{Storage: storage}).Save(ctx, data); err != nil {
		return nil, fmt.Errorf("convert pyrogram session: %w", err)
	}
	return storage, nil
}

// dcAddr возвращает IPv4-адрес продового DC.
func dcAddr(id int) (string, error) {
	for _, opt := range dcs.Prod().Options {
		if opt.ID == id && !opt.Ipv6 && !opt.MediaOnly && !opt.CDN {
			return net.JoinHostPort(opt.IPAddress, strconv.Itoa(opt.Port)), nil
		}
	}
	return "", fmt.Errorf("unknown dc %d", id)
}
