// Package delivery sends posts to chats through the pipeline matching their type.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tgreddit/internal/media"
	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
)

// maxAlbumSize is the largest media group Telegram accepts.
const maxAlbumSize = 10

// AlbumItem is one file of a media group.
type AlbumItem struct {
	Path    string
	IsVideo bool
}

// Messenger sends messages to a chat. Text and captions are Telegram HTML.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, disablePreview bool) error
	SendPhoto(ctx context.Context, chatID int64, path, caption string) error
	SendVideo(ctx context.Context, chatID int64, path string, width, height int, caption string) error
	SendAlbum(ctx context.Context, chatID int64, items []AlbumItem, caption string) error
}

// Error reports a failed delivery of a post.
type Error struct {
	PostID string
	Type   model.PostType
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("deliver %s post %s: %v", e.Type, e.PostID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Dispatcher routes posts to the video, image, gallery or text pipeline.
type Dispatcher struct {
	messenger Messenger
	videos    media.Downloader
	files     media.Downloader
	format    Formatter
	log       *slog.Logger
}

// New creates a Dispatcher. videos handles video posts, files handles
// images and gallery items.
func New(m Messenger, videos, files media.Downloader, linksBaseURL string, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: m,
		videos:    videos,
		files:     files,
		format:    NewFormatter(linksBaseURL),
		log:       log,
	}
}

// Dispatch delivers post to chatID. Temporary files are removed before it
// returns. Failures are returned as *Error and are not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, chatID int64, post *model.Post) error {
	start := time.Now()

	var err error
	switch post.Type {
	case model.PostTypeVideo:
		err = d.sendVideo(ctx, chatID, post)
	case model.PostTypeImage:
		err = d.sendImage(ctx, chatID, post)
	case model.PostTypeGallery:
		err = d.sendGallery(ctx, chatID, post)
	case model.PostTypeLink, model.PostTypeUnknown:
		err = d.messenger.SendText(ctx, chatID, d.format.LinkMessage(post), false)
	case model.PostTypeSelfText:
		err = d.messenger.SendText(ctx, chatID, d.format.Caption(post), true)
	default:
		err = fmt.Errorf("unsupported post type %q", post.Type)
	}

	metrics.DeliveryDuration.WithLabelValues(string(post.Type)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Deliveries.WithLabelValues(string(post.Type), metrics.OutcomeFailure).Inc()
		return &Error{PostID: post.ID, Type: post.Type, Err: err}
	}
	metrics.Deliveries.WithLabelValues(string(post.Type), metrics.OutcomeSuccess).Inc()
	d.log.Debug("delivered post", "chat_id", chatID, "post_id", post.ID, "type", post.Type)
	return nil
}

// VideoURL returns the address handed to the video downloader: the comment
// page for native videos, the linked URL for crossposts and external hosts.
func (d *Dispatcher) VideoURL(post *model.Post) string {
	if post.IsVideo && !post.IsCrosspost() {
		return DefaultLinksBaseURL + post.Permalink
	}
	return post.URL
}

func (d *Dispatcher) sendVideo(ctx context.Context, chatID int64, post *model.Post) error {
	f, err := d.videos.Download(ctx, d.VideoURL(post))
	if err != nil {
		return err
	}
	defer d.cleanup(f)

	return d.messenger.SendVideo(ctx, chatID, f.Path, f.Width, f.Height, d.format.Caption(post))
}

func (d *Dispatcher) sendImage(ctx context.Context, chatID int64, post *model.Post) error {
	f, err := d.files.Download(ctx, post.URL)
	if err != nil {
		return err
	}
	defer d.cleanup(f)

	return d.messenger.SendPhoto(ctx, chatID, f.Path, d.format.Caption(post))
}

// sendGallery downloads every item in declared order and sends them as
// albums, captioning only the first.
func (d *Dispatcher) sendGallery(ctx context.Context, chatID int64, post *model.Post) error {
	if len(post.GalleryItems) == 0 {
		return errors.New("gallery has no media items")
	}

	files := make(map[string]*media.File, len(post.GalleryItems))
	defer func() {
		for _, f := range files {
			d.cleanup(f)
		}
	}()

	items := make([]AlbumItem, 0, len(post.GalleryItems))
	for _, gi := range post.GalleryItems {
		key := gi.Key()
		if _, ok := files[key]; ok {
			continue
		}
		f, err := d.files.Download(ctx, gi.URL)
		if err != nil {
			return fmt.Errorf("gallery item %s: %w", gi.ID, err)
		}
		files[key] = f
		items = append(items, AlbumItem{Path: f.Path, IsVideo: gi.IsVideo})
	}

	caption := d.format.Caption(post)
	for start := 0; start < len(items); start += maxAlbumSize {
		end := min(start+maxAlbumSize, len(items))
		if err := d.messenger.SendAlbum(ctx, chatID, items[start:end], caption); err != nil {
			return err
		}
		caption = ""
	}
	return nil
}

func (d *Dispatcher) cleanup(f *media.File) {
	if err := f.Close(); err != nil {
		d.log.Warn("remove temporary media", "path", f.Path, "error", err)
	}
}
