package telegram

import (
	"context"
	"fmt"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"

	"github.com/gotd/td/tg"
)

// AllowedReactions возвращает эмодзи, разрешённые в канале.
// nil без ошибки означает, что подходит любой стандартный набор.
func (g *Gateway) AllowedReactions(ctx context.Context, channel string) ([]string, error) {
	ch, err := g.resolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	full, err := g.api.ChannelsGetFullChannel(ctx, inputChannel(ch))
	if err != nil {
		return nil, mapError(err)
	}
	info, ok := full.FullChat.(*tg.ChannelFull)
	if !ok {
		return nil, fmt.Errorf("unexpected chat full type %T", full.FullChat)
	}
	reactions, ok := info.GetAvailableReactions()
	if !ok {
		return nil, nil
	}
	return allowedEmoji(reactions)
}

// allowedEmoji разбирает настройку реакций канала.
func allowedEmoji(reactions tg.ChatReactionsClass) ([]string, error) {
	switch r := reactions.(type) {
	case *tg.ChatReactionsNone:
		return nil, orchestrator.ErrReactionsDisabled
	case *tg.ChatReactionsSome:
		var out []string
		for _, rc := range r.Reactions {
			if emoji, ok := rc.(*tg.ReactionEmoji); ok {
				out = append(out, emoji.Emoticon)
			}
		}
		if len(out) == 0 {
			// Разрешены только пользовательские эмодзи, которые аккаунт может не иметь.
			return nil, orchestrator.ErrReactionsDisabled
		}
		return out, nil
	default:
		// ChatReactionsAll и неизвестные варианты: подходит стандартный набор.
		return nil, nil
	}
}

// SubmitReaction ставит реакцию emoji на пост канала.
func (g *Gateway) SubmitReaction(ctx context.Context, post models.Post, emoji string) error {
	ch, err := g.channelByID(post.ChatID)
	if err != nil {
		return err
	}
	_, err = g.api.MessagesSendReaction(ctx, &tg.MessagesSendReactionRequest{
		Peer:        inputPeer(ch),
		MsgID:       post.ID,
		Reaction:    []tg.ReactionClass{&tg.ReactionEmoji{Emoticon: emoji}},
		AddToRecent: true,
	})
	if err != nil {
		return mapError(err)
	}
	g.log.Debug().Int64("channel_id", ch.ID).Int("post_id", post.ID).Str("emoji", emoji).Msg("[TG] реакция отправлена")
	return nil
}
