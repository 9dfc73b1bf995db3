package telegram

import (
	"context"
	"math/rand/v2"

	"atg_engage/models"
	"atg_engage/pkg/orchestrator"

	"github.com/gotd/td/tg"
)

// SubmitComment отправляет text ответом на пост в чате обсуждения.
func (g *Gateway) SubmitComment(ctx context.Context, discussion orchestrator.DiscussionRef, post models.Post, text string) error {
	ch, err := g.channelByID(post.ChatID)
	if err != nil {
		return err
	}
	chat, err := g.channelByID(discussion.ChatID)
	if err != nil {
		return err
	}

	replyTo := 0
	if post.DiscussionID != nil {
		replyTo = *post.DiscussionID
	} else {
		msg, err := g.api.MessagesGetDiscussionMessage(ctx, &tg.MessagesGetDiscussionMessageRequest{
			Peer:  inputPeer(ch),
			MsgID: post.ID,
		})
		if err != nil {
			return mapError(err)
		}
		root, err := discussionRoot(msg.Messages, chat.ID)
		if err != nil {
			return err
		}
		replyTo = root.ID
	}

	_, err = g.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     inputPeer(chat),
		ReplyTo:  &tg.InputReplyToMessage{ReplyToMsgID: replyTo},
		Message:  text,
		RandomID: rand.Int64(),
	})
	if err != nil {
		return mapError(err)
	}
	g.log.Info().Int64("chat_id", chat.ID).Int("post_id", post.ID).Msg("[TG] комментарий отправлен")
	return nil
}
