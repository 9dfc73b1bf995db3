package models

import (
	"fmt"
	"strings"
)

// ActionKind: закрытый набор типов действий. Новые типы добавляются
// только вместе с веткой в обработчике воркера.
type ActionKind string

const (
	ActionComment  ActionKind = "comment"
	ActionReaction ActionKind = "reaction"
	ActionView     ActionKind = "view"
)

// Valid сообщает, относится ли значение к известным типам действий.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionComment, ActionReaction, ActionView:
		return true
	}
	return false
}

// Tone определяет окраску генерируемого комментария.
type Tone string

const (
	TonePositive Tone = "positive"
	ToneNeutral  Tone = "neutral"
	ToneCritical Tone = "critical"
	ToneQuestion Tone = "question"
)

// ToneOrder задаёт порядок обработки тонов при комментировании.
var ToneOrder = []Tone{TonePositive, ToneNeutral, ToneCritical, ToneQuestion}

// Valid сообщает, является ли тон одним из поддерживаемых.
func (t Tone) Valid() bool {
	switch t {
	case TonePositive, ToneNeutral, ToneCritical, ToneQuestion:
		return true
	}
	return false
}

// Action описывает одно действие, которое выполняется всеми аккаунтами.
// Время задаётся в секундах.
type Action struct {
	ID                  int          `json:"id"`
	Channel             string       `json:"channel"`
	Kind                ActionKind   `json:"kind"`
	DesiredCount        int          `json:"desired_count"`
	TimeWindowSeconds   int          `json:"time_window_seconds"`
	SpreadPercent       int          `json:"spread_percent"`
	ToneCounts          map[Tone]int `json:"tone_counts,omitempty"`
	CustomPrompt        string       `json:"custom_prompt,omitempty"`
	StartDelaySeconds   int          `json:"start_delay_seconds,omitempty"`
	SendIntervalSeconds int          `json:"send_interval_seconds,omitempty"`
}

// Validate проверяет ограничения полей до запуска.
func (a Action) Validate() error {
	if strings.TrimSpace(a.Channel) == "" {
		return fmt.Errorf("channel is required")
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	if a.DesiredCount < 0 {
		return fmt.Errorf("desired_count must be >= 0")
	}
	if a.TimeWindowSeconds <= 0 {
		return fmt.Errorf("time_window_seconds must be > 0")
	}
	if a.SpreadPercent < 0 || a.SpreadPercent > 100 {
		return fmt.Errorf("spread_percent must be within 0..100")
	}
	if a.StartDelaySeconds < 0 || a.SendIntervalSeconds < 0 {
		return fmt.Errorf("delays must be >= 0")
	}
	for tone, n := range a.ToneCounts {
		if !tone.Valid() {
			return fmt.Errorf("unknown tone %q", tone)
		}
		if n < 0 {
			return fmt.Errorf("tone %s count must be >= 0", tone)
		}
	}
	return nil
}

// Clone возвращает копию действия, чтобы запуск не зависел от изменений карты тонов.
func (a Action) Clone() Action {
	c := a
	if a.ToneCounts != nil {
		c.ToneCounts = make(map[Tone]int, len(a.ToneCounts))
		for k, v := range a.ToneCounts {
			c.ToneCounts[k] = v
		}
	}
	return c
}

// ActionUpdate содержит только изменяемые поля. nil означает «не менять».
type ActionUpdate struct {
	Channel             *string      `json:"channel"`
	Kind                *ActionKind  `json:"kind"`
	DesiredCount        *int         `json:"desired_count"`
	TimeWindowSeconds   *int         `json:"time_window_seconds"`
	SpreadPercent       *int         `json:"spread_percent"`
	ToneCounts          map[Tone]int `json:"tone_counts"`
	CustomPrompt        *string      `json:"custom_prompt"`
	StartDelaySeconds   *int         `json:"start_delay_seconds"`
	SendIntervalSeconds *int         `json:"send_interval_seconds"`
}

// Empty сообщает, что обновление ничего не меняет.
func (u ActionUpdate) Empty() bool {
	return u.Channel == nil && u.Kind == nil && u.DesiredCount == nil &&
		u.TimeWindowSeconds == nil && u.SpreadPercent == nil && u.ToneCounts == nil &&
		u.CustomPrompt == nil && u.StartDelaySeconds == nil && u.SendIntervalSeconds == nil
}

// ApplyActionUpdate переносит заданные поля обновления в копию действия.
// Карта тонов заменяется целиком, отдельные тоны не сливаются.
func ApplyActionUpdate(a Action, u ActionUpdate) Action {
	out := a.Clone()
	if u.Channel != nil {
		out.Channel = *u.Channel
	}
	if u.Kind != nil {
		out.Kind = *u.Kind
	}
	if u.DesiredCount != nil {
		out.DesiredCount = *u.DesiredCount
	}
	if u.TimeWindowSeconds != nil {
		out.TimeWindowSeconds = *u.TimeWindowSeconds
	}
	if u.SpreadPercent != nil {
		out.SpreadPercent = *u.SpreadPercent
	}
	if u.ToneCounts != nil {
		out.ToneCounts = make(map[Tone]int, len(u.ToneCounts))
		for k, v := range u.ToneCounts {
			out.ToneCounts[k] = v
		}
	}
	if u.CustomPrompt != nil {
		out.CustomPrompt = *u.CustomPrompt
	}
	if u.StartDelaySeconds != nil {
		out.StartDelaySeconds = *u.StartDelaySeconds
	}
	if u.SendIntervalSeconds != nil {
		out.SendIntervalSeconds = *u.SendIntervalSeconds
	}
	return out
}
