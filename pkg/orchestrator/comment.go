package orchestrator

import (
	"context"

	"atg_engage/models"
)

// comment оставляет комментарии под последними постами канала в его обсуждении.
// Квота каждого тона — цель для этого аккаунта, между аккаунтами она не делится.
func (w *worker) comment(ctx context.Context, gw ChannelGateway) error {
	total := 0
	for _, tone := range models.ToneOrder {
		if n := w.action.ToneCounts[tone]; n > 0 {
			total += n
		}
	}
	if total == 0 {
		return nil
	}

	channel := w.action.Channel
	if err := w.call(ctx, func(ctx context.Context) error { return gw.JoinIfNeeded(ctx, channel) }); err != nil {
		return err
	}

	var discussion DiscussionRef
	err := w.call(ctx, func(ctx context.Context) error {
		d, err := gw.ResolveDiscussion(ctx, channel)
		discussion = d
		return err
	})
	if err != nil {
		return err
	}

	posts, err := w.fetchPosts(ctx, gw, w.opts.CommentCandidates)
	if err != nil {
		return err
	}
	var candidates []models.Post
	for _, p := range posts {
		if p.Eligible() {
			candidates = append(candidates, p)
		}
		if len(candidates) >= w.opts.CommentCandidates {
			break
		}
	}
	if len(candidates) == 0 {
		return ErrNoEligiblePosts
	}

	for _, tone := range models.ToneOrder {
		quota := w.action.ToneCounts[tone]
		if quota <= 0 {
			continue
		}
		for _, idx := range distribute(quota, len(candidates)) {
			if w.tally.sends > 0 {
				if err := w.pause(ctx); err != nil {
					return err
				}
			}
			post := candidates[idx]
			seq := w.tally.sends
			w.tally.sends++

			text, fallback, err := w.opts.Retry.Generate(ctx, w.gen, TextRequest{
				Tone:         tone,
				PostContent:  post.Content(),
				CustomPrompt: w.action.CustomPrompt,
			}, seq)
			if err != nil {
				return err
			}
			if fallback {
				w.emit(Event{Reason: models.ReasonGenerationFailed, Detail: "использована запасная фраза", Count: w.tally.count})
			}

			err = w.call(ctx, func(ctx context.Context) error {
				return gw.SubmitComment(ctx, discussion, post, text)
			})
			if err != nil {
				if stop := w.softFail(ctx, err); stop != nil {
					return stop
				}
				continue
			}
			w.addCount(tone)
		}
	}
	return nil
}

// distribute раскладывает quota отправок по n постам по кругу.
// Каждый пост получает quota/n, остаток достаётся самым свежим постам (в начале списка).
// Возвращает индексы постов в порядке отправки.
func distribute(quota, n int) []int {
	if quota <= 0 || n <= 0 {
		return nil
	}
	per := make([]int, n)
	for i := range per {
		per[i] = quota / n
		if i < quota%n {
			per[i]++
		}
	}
	plan := make([]int, 0, quota)
	for round := 0; len(plan) < quota; round++ {
		for i := 0; i < n; i++ {
			if per[i] > round {
				plan = append(plan, i)
			}
		}
	}
	return plan
}

// fetchPosts запрашивает последние посты канала по политике повторов.
func (w *worker) fetchPosts(ctx context.Context, gw ChannelGateway, limit int) ([]models.Post, error) {
	var posts []models.Post
	err := w.call(ctx, func(ctx context.Context) error {
		p, err := gw.FetchRecentPosts(ctx, w.action.Channel, limit)
		posts = p
		return err
	})
	return posts, err
}
