package telegram

import (
	"fmt"

	"atg_engage/models"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/dcs"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/proxy"
)

// NewClient создаёт клиент Telegram для аккаунта с указанным хранилищем сессии.
// Если у аккаунта задан прокси, соединения идут через SOCKS5.
func NewClient(acc models.Account, storage session.Storage) (*telegram.Client, error) {
	if storage == nil {
		storage = &session.StorageMemory{}
	}
	opts := telegram.Options{
		SessionStorage: storage,
		NoUpdates:      true,
	}
	if p := acc.Proxy; p != nil && p.IsActive {
		var auth *proxy.Auth
		if p.Login != "" || p.Password != "" {
			auth = &proxy.Auth{User: p.Login, Password: p.Password}
		}
		d, err := proxy.SOCKS5("tcp", p.Addr(), auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("proxy dialer: %w", err)
		}
		dc, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("proxy dialer missing context")
		}
		opts.Resolver = dcs.Plain(dcs.PlainOptions{Dial: dc.DialContext})
		log.Debug().Str("account", acc.Phone).Str("proxy", p.Addr()).Msg("[PROXY] подключение через прокси")
	}
	return telegram.NewClient(acc.ApiID, acc.ApiHash, opts), nil
}
