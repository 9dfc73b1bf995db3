package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"atg_engage/models"

	"github.com/gotd/td/tg"
)

// extractUsername извлекает username из ссылки на канал.
// Поддерживаются формы https://t.me/name, t.me/name, @name и name.
func extractUsername(channel string) (string, error) {
	s := strings.TrimSpace(channel)
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "t.me/")
	s = strings.TrimPrefix(s, "telegram.me/")
	s = strings.TrimPrefix(s, "@")
	if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	if s == "" || strings.HasPrefix(s, "+") || strings.Contains(s, ".") {
		return "", fmt.Errorf("invalid channel reference %q", channel)
	}
	return s, nil
}

// findChannel находит вещательный канал в списке чатов, пропуская мегагруппы.
func findChannel(chats []tg.ChatClass) (*tg.Channel, error) {
	for _, peer := range chats {
		if ch, ok := peer.(*tg.Channel); ok {
			if ch.Megagroup {
				continue
			}
			if ch.Broadcast {
				return ch, nil
			}
		}
	}
	return nil, fmt.Errorf("broadcast channel not found")
}

func inputChannel(ch *tg.Channel) *tg.InputChannel {
	return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

func inputPeer(ch *tg.Channel) *tg.InputPeerChannel {
	return &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
}

// historyMessages достаёт сообщения из ответа MessagesGetHistory.
func historyMessages(history tg.MessagesMessagesClass) ([]tg.MessageClass, error) {
	switch h := history.(type) {
	case *tg.MessagesChannelMessages:
		return h.Messages, nil
	case *tg.MessagesMessagesSlice:
		return h.Messages, nil
	case *tg.MessagesMessages:
		return h.Messages, nil
	default:
		return nil, fmt.Errorf("unexpected messages type %T", history)
	}
}

// toPosts переводит сообщения канала в посты, новые первыми.
func toPosts(channelID int64, msgs []tg.MessageClass) []models.Post {
	posts := make([]models.Post, 0, len(msgs))
	for _, raw := range msgs {
		switch m := raw.(type) {
		case *tg.Message:
			_, forwarded := m.GetFwdFrom()
			_, reply := m.GetReplyTo()
			posts = append(posts, models.Post{
				ID:        m.ID,
				ChatID:    channelID,
				Text:      m.Message,
				MediaKind: mediaKind(m),
				Reply:     reply,
				Forwarded: forwarded,
				Date:      time.Unix(int64(m.Date), 0),
			})
		case *tg.MessageService:
			posts = append(posts, models.Post{
				ID:      m.ID,
				ChatID:  channelID,
				Service: true,
				Date:    time.Unix(int64(m.Date), 0),
			})
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ID > posts[j].ID
	})
	return posts
}

// mediaKind определяет тип вложения для описания поста без текста.
func mediaKind(m *tg.Message) string {
	media, ok := m.GetMedia()
	if !ok {
		return ""
	}
	switch md := media.(type) {
	case *tg.MessageMediaPhoto:
		return "photo"
	case *tg.MessageMediaDocument:
		doc, ok := md.GetDocument()
		if !ok {
			return "document"
		}
		d, ok := doc.(*tg.Document)
		if !ok {
			return "document"
		}
		for _, attr := range d.Attributes {
			switch attr.(type) {
			case *tg.DocumentAttributeVideo:
				return "video"
			case *tg.DocumentAttributeAudio:
				return "audio"
			}
		}
		return "document"
	default:
		return ""
	}
}

// resolveChannel находит канал по ссылке и кэширует результат в шлюзе.
func (g *Gateway) resolveChannel(ctx context.Context, channel string) (*tg.Channel, error) {
	username, err := extractUsername(channel)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	ch, ok := g.byName[username]
	g.mu.Unlock()
	if ok {
		return ch, nil
	}

	resolved, err := g.api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, mapError(err)
	}
	ch, err = findChannel(resolved.GetChats())
	if err != nil {
		return nil, err
	}
	g.remember(username, ch)
	return ch, nil
}

func (g *Gateway) remember(username string, ch *tg.Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if username != "" {
		g.byName[username] = ch
	}
	g.byID[ch.ID] = ch
}

func (g *Gateway) channelByID(id int64) (*tg.Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("channel %d is not resolved in this session", id)
	}
	return ch, nil
}

// JoinIfNeeded подписывает аккаунт на канал. Если аккаунт уже подписан, ошибки нет.
func (g *Gateway) JoinIfNeeded(ctx context.Context, channel string) error {
	ch, err := g.resolveChannel(ctx, channel)
	if err != nil {
		return err
	}
	if !ch.Left {
		return nil
	}
	return g.join(ctx, ch)
}

func (g *Gateway) join(ctx context.Context, ch *tg.Channel) error {
	_, err := g.api.ChannelsJoinChannel(ctx, inputChannel(ch))
	if err = mapJoinError(err); err != nil {
		g.log.Warn().Err(err).Int64("channel_id", ch.ID).Msg("[TG] не удалось вступить в канал")
		return err
	}
	return nil
}

// FetchRecentPosts возвращает до limit последних сообщений канала, новые первыми.
func (g *Gateway) FetchRecentPosts(ctx context.Context, channel string, limit int) ([]models.Post, error) {
	ch, err := g.resolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	history, err := g.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  inputPeer(ch),
		Limit: limit,
	})
	if err != nil {
		return nil, mapError(err)
	}
	msgs, err := historyMessages(history)
	if err != nil {
		return nil, err
	}
	return toPosts(ch.ID, msgs), nil
}
