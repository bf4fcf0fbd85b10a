package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
)

const (
	actionGet   = "get"
	actionUnsub = "unsub"
)

// subscriptionKeyboard builds one row of quick actions per subscription.
func subscriptionKeyboard(subs []model.Subscription) *tgbotapi.InlineKeyboardMarkup {
	if len(subs) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(subs))
	for _, s := range subs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Get r/"+s.Subreddit, actionGet+":"+s.Subreddit),
			tgbotapi.NewInlineKeyboardButtonData("Unsubscribe", actionUnsub+":"+s.Subreddit),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, subreddit, ok := strings.Cut(cb.Data, ":")
	if !ok || subreddit == "" {
		return
	}

	b.log.Info("callback",
		"action", action,
		"subreddit", subreddit,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case actionGet:
		b.handleGet(ctx, chatID, subreddit)
	case actionUnsub:
		b.handleUnsubscribe(ctx, chatID, subreddit)
	default:
		return
	}
	metrics.Commands.WithLabelValues(fmt.Sprintf("callback_%s", action)).Inc()
}
