package orchestrator

import (
	"context"
	"errors"
	"time"

	"atg_engage/models"

	"github.com/rs/zerolog/log"
)

// FallbackReactions используются, когда список разрешённых реакций получить не удалось.
var FallbackReactions = []string{"👍", "❤", "🔥", "🎉"}

// reaction ставит реакции на свежие посты канала, не более DesiredCount.
func (w *worker) reaction(ctx context.Context, gw ChannelGateway) error {
	if w.action.DesiredCount <= 0 {
		return nil
	}
	channel := w.action.Channel
	if err := w.call(ctx, func(ctx context.Context) error { return gw.JoinIfNeeded(ctx, channel) }); err != nil {
		return err
	}

	var allowed []string
	err := w.call(ctx, func(ctx context.Context) error {
		r, err := gw.AllowedReactions(ctx, channel)
		allowed = r
		return err
	})
	switch {
	case err != nil && (errors.Is(err, ErrReactionsDisabled) || abortsWorker(ctx, err)):
		return err
	case err != nil || len(allowed) == 0:
		log.Debug().Err(err).Str("account", w.accountID).Msg("[WORKER] нет списка реакций, используем набор по умолчанию")
		allowed = FallbackReactions
	}

	posts, err := w.fetchPosts(ctx, gw, w.opts.ReactionHistory)
	if err != nil {
		return err
	}
	now := time.Now()
	var candidates []models.Post
	for _, p := range posts {
		if p.Reactable(now, w.opts.ReactionMaxAge) {
			candidates = append(candidates, p)
		}
		if len(candidates) >= w.opts.ReactionCandidates {
			break
		}
	}
	if len(candidates) == 0 {
		return ErrNoEligiblePosts
	}

	for _, post := range candidates {
		if w.tally.count >= w.action.DesiredCount {
			break
		}
		if w.tally.sends > 0 {
			if err := w.pause(ctx); err != nil {
				return err
			}
		}
		w.tally.sends++
		emoji := allowed[w.jitter.Intn(len(allowed))]
		err := w.call(ctx, func(ctx context.Context) error {
			return gw.SubmitReaction(ctx, post, emoji)
		})
		if err != nil {
			if stop := w.softFail(ctx, err); stop != nil {
				return stop
			}
			continue
		}
		w.addCount("")
	}
	return nil
}
