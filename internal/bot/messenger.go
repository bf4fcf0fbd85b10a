package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tgreddit/internal/delivery"
)

var _ delivery.Messenger = (*Bot)(nil)

func (b *Bot) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.Send(c)
	return err
}

// SendText sends an HTML message.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string, disablePreview bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = disablePreview
	if err := b.send(ctx, msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendPhoto uploads the image at path with an HTML caption.
func (b *Bot) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if err := b.send(ctx, photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// SendVideo uploads the video at path. Width and height are passed so
// clients render the right aspect ratio before playback.
func (b *Bot) SendVideo(ctx context.Context, chatID int64, path string, width, height int, caption string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("width", width)
	params.AddNonZero("height", height)
	params.AddNonEmpty("caption", caption)
	if caption != "" {
		params.AddNonEmpty("parse_mode", tgbotapi.ModeHTML)
	}
	params.AddBool("supports_streaming", true)

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	files := []tgbotapi.RequestFile{{Name: "video", Data: tgbotapi.FilePath(path)}}
	if _, err := b.api.UploadFiles("sendVideo", params, files); err != nil {
		return fmt.Errorf("send video: %w", err)
	}
	return nil
}

// SendAlbum sends items as one media group captioned on the first item.
// A single item is sent on its own since albums need at least two.
func (b *Bot) SendAlbum(ctx context.Context, chatID int64, items []delivery.AlbumItem, caption string) error {
	switch len(items) {
	case 0:
		return nil
	case 1:
		if items[0].IsVideo {
			return b.SendVideo(ctx, chatID, items[0].Path, 0, 0, caption)
		}
		return b.SendPhoto(ctx, chatID, items[0].Path, caption)
	}

	group := make([]interface{}, 0, len(items))
	for i, it := range items {
		var text, mode string
		if i == 0 && caption != "" {
			text, mode = caption, tgbotapi.ModeHTML
		}
		if it.IsVideo {
			v := tgbotapi.NewInputMediaVideo(tgbotapi.FilePath(it.Path))
			v.Caption, v.ParseMode = text, mode
			v.SupportsStreaming = true
			group = append(group, v)
			continue
		}
		p := tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(it.Path))
		p.Caption, p.ParseMode = text, mode
		group = append(group, p)
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, group)); err != nil {
		return fmt.Errorf("send album: %w", err)
	}
	return nil
}
