package models

import "fmt"

// Proxy описывает SOCKS5-прокси, через который подключается аккаунт.
type Proxy struct {
	ID       int    `json:"id"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Login    string `json:"login"`
	Password string `json:"password"`
	IsActive bool   `json:"is_active"`
}

// Addr возвращает адрес прокси в формате host:port.
func (p Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.IP, p.Port)
}
