package models

import "time"

// Account: авторизованный аккаунт Telegram, от имени которого выполняются действия.
type Account struct {
	ID             int        `json:"id"`
	Phone          string     `json:"phone"`
	ApiID          int        `json:"api_id"`
	ApiHash        string     `json:"api_hash"`
	IsAuthorized   bool       `json:"is_authorized"`
	FloodWaitUntil *time.Time `json:"floodwait_until,omitempty"`
	ProxyID        *int       `json:"proxy_id"`
	Proxy          *Proxy     `json:"proxy"`
}

// InFloodWait сообщает, что аккаунт ещё отбывает флуд-бан на момент now.
func (a Account) InFloodWait(now time.Time) bool {
	return a.FloodWaitUntil != nil && a.FloodWaitUntil.After(now)
}
