package orchestrator

import (
	"context"

	"atg_engage/models"
)

// DiscussionRef указывает на чат обсуждения, привязанный к каналу.
type DiscussionRef struct {
	ChatID int64
	Title  string
}

// ChannelGateway: операции с каналом от имени одного аккаунта.
type ChannelGateway interface {
	JoinIfNeeded(ctx context.Context, channel string) error
	ResolveDiscussion(ctx context.Context, channel string) (DiscussionRef, error)
	FetchRecentPosts(ctx context.Context, channel string, limit int) ([]models.Post, error)
	SubmitComment(ctx context.Context, discussion DiscussionRef, post models.Post, text string) error
	SubmitReaction(ctx context.Context, post models.Post, emoji string) error
	MarkViewed(ctx context.Context, post models.Post) error
	AllowedReactions(ctx context.Context, channel string) ([]string, error)
}

// TextRequest: входные данные для генерации комментария.
// Непустой CustomPrompt заменяет промпт по тону.
type TextRequest struct {
	Tone         models.Tone
	PostContent  string
	CustomPrompt string
}

// TextGenerator генерирует текст комментария.
type TextGenerator interface {
	Generate(ctx context.Context, req TextRequest) (string, error)
}

// Session: подключение аккаунта, выданное хранилищем в монопольное пользование.
type Session interface {
	AccountID() string
	// Run подключается от имени аккаунта и выполняет fn с готовым шлюзом.
	Run(ctx context.Context, fn func(ctx context.Context, gw ChannelGateway) error) error
	// Release возвращает сессию хранилищу. Повторный вызов безопасен.
	Release()
}

// CredentialStore перечисляет аккаунты и выдаёт их сессии.
// Acquire для одного и того же id не может одновременно завершиться успехом дважды.
type CredentialStore interface {
	List(ctx context.Context) ([]string, error)
	Acquire(ctx context.Context, accountID string) (Session, error)
}

// ResultSink получает каждый результат по мере готовности (сохранение, публикация).
type ResultSink interface {
	Append(ctx context.Context, runID string, actionID int, res models.ExecutionResult) error
}
