package telegram

import (
	"context"
	"fmt"

	"atg_engage/pkg/orchestrator"

	"github.com/gotd/td/tg"
)

// ResolveDiscussion находит чат обсуждения, привязанный к каналу, и вступает в него.
func (g *Gateway) ResolveDiscussion(ctx context.Context, channel string) (orchestrator.DiscussionRef, error) {
	ch, err := g.resolveChannel(ctx, channel)
	if err != nil {
		return orchestrator.DiscussionRef{}, err
	}
	full, err := g.api.ChannelsGetFullChannel(ctx, inputChannel(ch))
	if err != nil {
		return orchestrator.DiscussionRef{}, mapError(err)
	}
	linked, err := linkedChat(full)
	if err != nil {
		return orchestrator.DiscussionRef{}, err
	}
	g.remember("", linked)

	if linked.Left {
		if err := g.join(ctx, linked); err != nil {
			return orchestrator.DiscussionRef{}, err
		}
	}
	return orchestrator.DiscussionRef{ChatID: linked.ID, Title: linked.Title}, nil
}

// linkedChat возвращает чат обсуждения из полной информации о канале.
func linkedChat(full *tg.MessagesChatFull) (*tg.Channel, error) {
	info, ok := full.FullChat.(*tg.ChannelFull)
	if !ok {
		return nil, fmt.Errorf("unexpected chat full type %T", full.FullChat)
	}
	linkedID, ok := info.GetLinkedChatID()
	if !ok || linkedID == 0 {
		return nil, orchestrator.ErrNoDiscussion
	}
	for _, raw := range full.Chats {
		if ch, ok := raw.(*tg.Channel); ok && ch.ID == linkedID {
			return ch, nil
		}
	}
	return nil, fmt.Errorf("%w: linked chat %d missing from response", orchestrator.ErrNoDiscussion, linkedID)
}

// discussionRoot находит в ответе MessagesGetDiscussionMessage корневое сообщение
// обсуждения поста в чате discussionID.
func discussionRoot(msgs []tg.MessageClass, discussionID int64) (*tg.Message, error) {
	for _, raw := range msgs {
		m, ok := raw.(*tg.Message)
		if !ok {
			continue
		}
		peer, ok := m.PeerID.(*tg.PeerChannel)
		if !ok || peer.ChannelID != discussionID {
			continue
		}
		if m.ReplyTo == nil {
			return m, nil
		}
	}
	return nil, fmt.Errorf("discussion post message not found")
}
