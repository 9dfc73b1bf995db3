package orchestrator

import (
	"context"
)

// view отмечает просмотренными до DesiredCount последних постов канала.
func (w *worker) view(ctx context.Context, gw ChannelGateway) error {
	if w.action.DesiredCount <= 0 {
		return nil
	}
	channel := w.action.Channel
	if err := w.call(ctx, func(ctx context.Context) error { return gw.JoinIfNeeded(ctx, channel) }); err != nil {
		return err
	}

	posts, err := w.fetchPosts(ctx, gw, w.action.DesiredCount)
	if err != nil {
		return err
	}
	found := false
	for _, post := range posts {
		if w.tally.count >= w.action.DesiredCount {
			break
		}
		if post.Service {
			continue
		}
		found = true
		if w.tally.sends > 0 {
			if err := w.pause(ctx); err != nil {
				return err
			}
		}
		w.tally.sends++
		err := w.call(ctx, func(ctx context.Context) error {
			return gw.MarkViewed(ctx, post)
		})
		if err != nil {
			if stop := w.softFail(ctx, err); stop != nil {
				return stop
			}
			continue
		}
		w.addCount("")
	}
	if !found {
		return ErrNoEligiblePosts
	}
	return nil
}
