package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgreddit/internal/fetcher"
	"tgreddit/internal/model"
	"tgreddit/internal/reddit"
	"tgreddit/internal/storage"
)

const (
	msgNoSuchSubreddit = "No such subreddit"
	msgInternalError   = "Something went wrong"
)

func (b *Bot) handleHelp(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, helpText)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseSubscriptionArgs(args)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("%v\nUsage: /sub <subreddit> [limit=N] [time=P] [filter=T]", err))
		return
	}

	name, err := b.source.SubredditName(ctx, parsed.Subreddit)
	if err != nil {
		b.replyError(ctx, chatID, "look up subreddit", err)
		return
	}

	sub := &model.Subscription{
		ChatID:    chatID,
		Subreddit: name,
		Limit:     parsed.Limit,
		Time:      parsed.Time,
		Filter:    parsed.Filter,
	}
	if err := b.store.AddSubscription(ctx, sub); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			b.reply(ctx, chatID, fmt.Sprintf("Already subscribed to r/%s", name))
			return
		}
		b.replyError(ctx, chatID, "add subscription", err)
		return
	}

	b.log.Info("subscribed", "chat_id", chatID, "subreddit", name)
	b.reply(ctx, chatID, fmt.Sprintf("Subscribed to r/%s", name))
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64, args string) {
	name, err := ParseSubredditName(args)
	if err != nil {
		b.reply(ctx, chatID, "Usage: /unsub <subreddit>")
		return
	}

	removed, err := b.store.RemoveSubscription(ctx, chatID, name)
	if err != nil {
		b.replyError(ctx, chatID, "remove subscription", err)
		return
	}
	if !removed {
		b.reply(ctx, chatID, fmt.Sprintf("Not subscribed to r/%s", name))
		return
	}

	b.log.Info("unsubscribed", "chat_id", chatID, "subreddit", name)
	b.reply(ctx, chatID, fmt.Sprintf("Unsubscribed from r/%s", name))
}

func (b *Bot) handleListSubscriptions(ctx context.Context, chatID int64) {
	subs, err := b.store.ListSubscriptions(ctx, chatID)
	if err != nil {
		b.replyError(ctx, chatID, "list subscriptions", err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, FormatSubscriptionList(subs))
	msg.DisableWebPagePreview = true
	if kb := subscriptionKeyboard(subs); kb != nil {
		msg.ReplyMarkup = kb
	}
	if err := b.send(ctx, msg); err != nil {
		b.log.Error("send subscription list", "chat_id", chatID, "error", err)
	}
}

// handleGet delivers the current top posts once, without recording them as seen.
func (b *Bot) handleGet(ctx context.Context, chatID int64, args string) {
	parsed, err := ParseSubscriptionArgs(args)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("%v\nUsage: /get <subreddit> [limit=N] [time=P] [filter=T]", err))
		return
	}
	if b.dispatcher == nil {
		b.replyError(ctx, chatID, "get posts", errors.New("no dispatcher configured"))
		return
	}

	params := b.cfg.ListingDefaults().Resolve(parsed.Limit, parsed.Time, parsed.Filter)
	posts, err := b.source.Fetch(ctx, parsed.Subreddit, params)
	if err != nil {
		b.replyError(ctx, chatID, "get posts", err)
		return
	}

	matched, _ := fetcher.FilterPosts(posts, params.Filter)
	if len(matched) == 0 {
		b.reply(ctx, chatID, "No posts found")
		return
	}

	for i := range matched {
		if err := b.dispatcher.Dispatch(ctx, chatID, &matched[i]); err != nil {
			b.log.Error("deliver post", "chat_id", chatID, "post_id", matched[i].ID, "error", err)
			b.reply(ctx, chatID, msgInternalError)
		}
	}
}

func (b *Bot) replyError(ctx context.Context, chatID int64, op string, err error) {
	if errors.Is(err, reddit.ErrNotFound) {
		b.reply(ctx, chatID, msgNoSuchSubreddit)
		return
	}
	b.log.Error(op, "chat_id", chatID, "error", err)
	b.reply(ctx, chatID, msgInternalError)
}
