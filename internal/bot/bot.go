package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"tgreddit/internal/config"
	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
	"tgreddit/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
	UploadFiles(endpoint string, params tgbotapi.Params, files []tgbotapi.RequestFile) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// PostSource looks up subreddits and their classified top posts.
type PostSource interface {
	Fetch(ctx context.Context, subreddit string, params model.ListingParams) ([]model.Post, error)
	SubredditName(ctx context.Context, name string) (string, error)
}

// PostDispatcher delivers a post to a chat.
type PostDispatcher interface {
	Dispatch(ctx context.Context, chatID int64, post *model.Post) error
}

// Bot is the Telegram bot that handles user commands and sends posts.
type Bot struct {
	api        telegramAPI
	store      storage.Storage
	source     PostSource
	dispatcher PostDispatcher
	cfg        *config.Config
	limiter    *rate.Limiter
	log        *slog.Logger
}

// maxConcurrentCommands limits how many commands are handled at once.
const maxConcurrentCommands = 8

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, source PostSource, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := newAPI(token, tgbotapi.APIEndpoint, cfg.TelegramTimeout)
	if err != nil {
		return nil, err
	}
	log.Info("authorized on telegram", "username", api.Self.UserName)
	return newBot(api, store, source, cfg, log), nil
}

// newAPI connects to the Bot API at endpoint. Every request, uploads
// included, is bounded by timeout.
func newAPI(token, endpoint string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

func newBot(api telegramAPI, store storage.Storage, source PostSource, cfg *config.Config, log *slog.Logger) *Bot {
	limit := rate.Inf
	if cfg.TelegramRateLimit > 0 {
		limit = rate.Limit(cfg.TelegramRateLimit)
	}
	return &Bot{
		api:     api,
		store:   store,
		source:  source,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// SetDispatcher sets the dispatcher used by /get. The dispatcher usually
// sends through this Bot, so it is wired after construction.
func (b *Bot) SetDispatcher(d PostDispatcher) {
	b.dispatcher = d
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// or the update channel closes. Commands are handled concurrently; Run
// returns only after the handlers it started have finished.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(config.LongPollTimeout / time.Second)

	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()
	slots := make(chan struct{}, maxConcurrentCommands)
	spawn := func(fn func()) {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-slots }()
			fn()
		}()
	}

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return errors.New("telegram update channel closed")
			}
			if cb := update.CallbackQuery; cb != nil {
				if cb.From == nil || !b.cfg.IsUserAllowed(cb.From.ID) {
					continue
				}
				spawn(func() { b.handleCallback(ctx, cb) })
				continue
			}
			msg := update.Message
			if msg == nil || !msg.IsCommand() {
				continue
			}
			if msg.From == nil || !b.cfg.IsUserAllowed(msg.From.ID) {
				b.reply(ctx, msg.Chat.ID, "Access denied.")
				continue
			}
			spawn(func() { b.handleCommand(ctx, msg) })
		}
	}
}

// Serve runs the update loop as a supervised service.
func (b *Bot) Serve(ctx context.Context) error {
	return b.Run(ctx)
}

func (b *Bot) String() string {
	return "telegram-bot"
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if err := b.send(ctx, msg); err != nil {
		b.log.Error("send reply", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start", "help":
		b.handleHelp(ctx, chatID)
	case "sub":
		b.handleSubscribe(ctx, chatID, args)
	case "unsub":
		b.handleUnsubscribe(ctx, chatID, args)
	case "listsubs":
		b.handleListSubscriptions(ctx, chatID)
	case "get":
		b.handleGet(ctx, chatID, args)
	default:
		b.reply(ctx, chatID, "Unknown command. Use /help for a list of commands.")
		return
	}
	metrics.Commands.WithLabelValues(cmd).Inc()
}
