// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"tgreddit/internal/model"
)

// ErrConflict is returned when a chat is already subscribed to a subreddit.
var ErrConflict = errors.New("subscription already exists")

// Storage is the interface for all persistence operations.
type Storage interface {
	AddSubscription(ctx context.Context, sub *model.Subscription) error
	RemoveSubscription(ctx context.Context, chatID int64, subreddit string) (bool, error)
	ListSubscriptions(ctx context.Context, chatID int64) ([]model.Subscription, error)
	ListAllSubscriptions(ctx context.Context) ([]model.Subscription, error)

	IsPostSeen(ctx context.Context, chatID int64, postID string) (bool, error)
	HasAnySeenPost(ctx context.Context, chatID int64, subreddit string) (bool, error)
	MarkPostSeen(ctx context.Context, chatID int64, post *model.Post) error

	Close() error
}

// Options tunes storage behaviour.
type Options struct {
	// OverwriteSubscriptions makes AddSubscription replace an existing
	// subscription instead of returning ErrConflict.
	OverwriteSubscriptions bool
}
