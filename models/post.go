package models

import (
	"strings"
	"time"
)

// Post: пост канала в том виде, в котором его видит аккаунт.
type Post struct {
	ID           int       `json:"id"`
	ChatID       int64     `json:"chat_id"`
	DiscussionID *int      `json:"discussion_id,omitempty"` // ID ветки обсуждения, если она есть
	Text         string    `json:"text,omitempty"`
	MediaKind    string    `json:"media_kind,omitempty"`
	Service      bool      `json:"service"`
	Reply        bool      `json:"reply"`
	Forwarded    bool      `json:"forwarded"`
	Date         time.Time `json:"date"`
}

// Eligible сообщает, можно ли использовать пост как цель действия.
// Служебные сообщения и ответы не подходят.
func (p Post) Eligible() bool {
	return !p.Service && !p.Reply
}

// Reactable дополнительно отсекает пересланные и слишком старые посты.
func (p Post) Reactable(now time.Time, maxAge time.Duration) bool {
	if !p.Eligible() || p.Forwarded {
		return false
	}
	return p.Date.IsZero() || now.Sub(p.Date) <= maxAge
}

// mediaDescriptions переводит тип вложения в короткое описание для генерации текста.
var mediaDescriptions = map[string]string{
	"photo":    "Фото",
	"video":    "Видео",
	"document": "Документ",
	"audio":    "Аудио",
}

// Content возвращает текст поста или описание вложения, если текста нет.
func (p Post) Content() string {
	if text := strings.TrimSpace(p.Text); text != "" {
		if p.MediaKind != "" {
			if desc, ok := mediaDescriptions[p.MediaKind]; ok {
				return desc + " контент: " + text
			}
		}
		return text
	}
	if desc, ok := mediaDescriptions[p.MediaKind]; ok {
		return desc
	}
	return "Медиа-пост"
}
