// Package fetcher loads subreddit listings and classifies their posts.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"tgreddit/internal/classifier"
	"tgreddit/internal/model"
	"tgreddit/internal/reddit"
)

// Source is the content source the fetcher reads from.
type Source interface {
	TopPosts(ctx context.Context, subreddit string, limit int, period model.TimePeriod) ([]model.Post, error)
	PostByID(ctx context.Context, id string) (*model.Post, error)
	SubredditAbout(ctx context.Context, name string) (*reddit.About, error)
}

// Fetcher downloads top listings and assigns each post its type.
type Fetcher struct {
	source     Source
	classifier *classifier.Classifier
	log        *slog.Logger
}

// New creates a Fetcher.
func New(source Source, c *classifier.Classifier, log *slog.Logger) *Fetcher {
	return &Fetcher{source: source, classifier: c, log: log}
}

// Fetch returns the subreddit's top posts in listing order with Type set.
// Listing entries often omit post_hint, so those posts are looked up again
// individually. A failed lookup keeps the listing copy.
func (f *Fetcher) Fetch(ctx context.Context, subreddit string, params model.ListingParams) ([]model.Post, error) {
	posts, err := f.source.TopPosts(ctx, subreddit, params.Limit, params.Time)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}

	for i := range posts {
		if posts[i].PostHint == nil {
			full, err := f.source.PostByID(ctx, posts[i].ID)
			if err != nil {
				f.log.Warn("refetch post", "post_id", posts[i].ID, "subreddit", subreddit, "error", err)
			} else {
				posts[i] = *full
			}
		}
		posts[i].Type = f.classifier.Classify(&posts[i])
	}
	return posts, nil
}

// FilterPosts splits posts into those matching filter and the rest, keeping
// order. A nil filter matches everything.
func FilterPosts(posts []model.Post, filter *model.PostType) (matched, rejected []model.Post) {
	if filter == nil {
		return posts, nil
	}
	for _, p := range posts {
		if p.Type == *filter {
			matched = append(matched, p)
		} else {
			rejected = append(rejected, p)
		}
	}
	return matched, rejected
}

// SubredditName resolves name to the subreddit's canonical display name.
func (f *Fetcher) SubredditName(ctx context.Context, name string) (string, error) {
	about, err := f.source.SubredditAbout(ctx, name)
	if err != nil {
		return "", fmt.Errorf("look up r/%s: %w", name, err)
	}
	return about.Name, nil
}
