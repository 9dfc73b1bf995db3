package telegram

import (
	"context"

	"atg_engage/models"

	"github.com/gotd/td/tg"
)

// MarkViewed увеличивает счётчик просмотров поста.
func (g *Gateway) MarkViewed(ctx context.Context, post models.Post) error {
	ch, err := g.channelByID(post.ChatID)
	if err != nil {
		return err
	}
	_, err = g.api.MessagesGetMessagesViews(ctx, &tg.MessagesGetMessagesViewsRequest{
		Peer:      inputPeer(ch),
		ID:        []int{post.ID},
		Increment: true,
	})
	return mapError(err)
}
