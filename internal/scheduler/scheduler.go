// Package scheduler polls subscriptions and dispatches new posts.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
	"tgreddit/internal/storage"
)

// Fetcher returns the classified top posts of a subreddit.
type Fetcher interface {
	Fetch(ctx context.Context, subreddit string, params model.ListingParams) ([]model.Post, error)
}

// Dispatcher delivers a single post to a chat.
type Dispatcher interface {
	Dispatch(ctx context.Context, chatID int64, post *model.Post) error
}

const (
	defaultInterval        = 10 * time.Minute
	defaultDeliveryTimeout = 15 * time.Minute
)

// Options configures a Scheduler.
type Options struct {
	Interval        time.Duration
	SkipInitialSend bool
	Defaults        model.ListingDefaults
	// DeliveryTimeout bounds the delivery of a single post, including
	// media download and upload.
	DeliveryTimeout time.Duration
}

// Scheduler periodically checks every subscription for new posts.
type Scheduler struct {
	store      storage.Storage
	fetcher    Fetcher
	dispatcher Dispatcher
	log        *slog.Logger

	tick            time.Duration
	deliveryTimeout time.Duration
	skipInitialSend bool
	defaults        model.ListingDefaults
}

// New creates a Scheduler.
func New(store storage.Storage, f Fetcher, d Dispatcher, opts Options, log *slog.Logger) *Scheduler {
	tick := opts.Interval
	if tick <= 0 {
		tick = defaultInterval
	}
	deliveryTimeout := opts.DeliveryTimeout
	if deliveryTimeout <= 0 {
		deliveryTimeout = defaultDeliveryTimeout
	}
	return &Scheduler{
		store:           store,
		fetcher:         f,
		dispatcher:      d,
		log:             log,
		tick:            tick,
		deliveryTimeout: deliveryTimeout,
		skipInitialSend: opts.SkipInitialSend,
		defaults:        opts.Defaults,
	}
}

// SetTickInterval overrides the pause between poll cycles.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run polls immediately and then again each interval after the previous
// cycle finishes. It blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.checkAll(ctx)

		timer := time.NewTimer(s.tick)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// Serve runs the scheduler as a supervised service.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.Run(ctx)
	return ctx.Err()
}

func (s *Scheduler) String() string {
	return "scheduler"
}

// checkAll runs one poll cycle. Cancellation is observed between
// subscriptions; a subscription already in progress runs to completion.
func (s *Scheduler) checkAll(ctx context.Context) {
	start := time.Now()
	log := s.log.With("cycle", uuid.NewString())

	subs, err := s.store.ListAllSubscriptions(ctx)
	if err != nil {
		log.Error("list subscriptions", "error", err)
		return
	}
	metrics.Subscriptions.Set(float64(len(subs)))
	log.Debug("poll cycle started", "subscriptions", len(subs))

	for _, sub := range subs {
		if ctx.Err() != nil {
			log.Info("poll cycle interrupted")
			return
		}
		s.processSubscription(context.WithoutCancel(ctx), log, sub)
	}

	metrics.PollCycles.Inc()
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	log.Debug("poll cycle finished", "duration", time.Since(start))
}

func (s *Scheduler) processSubscription(ctx context.Context, log *slog.Logger, sub model.Subscription) {
	log = log.With("chat_id", sub.ChatID, "subreddit", sub.Subreddit)
	params := s.defaults.Resolve(sub.Limit, sub.Time, sub.Filter)

	posts, err := s.fetcher.Fetch(ctx, sub.Subreddit, params)
	if err != nil {
		log.Error("fetch posts", "error", err)
		metrics.FetchErrors.WithLabelValues(sub.Subreddit).Inc()
		return
	}

	// Decided once, before any post of this listing is recorded.
	hasSeen, err := s.store.HasAnySeenPost(ctx, sub.ChatID, sub.Subreddit)
	if err != nil {
		log.Error("check seen history", "error", err)
		return
	}
	firstRun := !hasSeen && s.skipInitialSend

	sent := 0
	for i := range posts {
		post := &posts[i]
		seen, err := s.store.IsPostSeen(ctx, sub.ChatID, post.ID)
		if err != nil {
			log.Error("check seen", "post_id", post.ID, "error", err)
			continue
		}
		if seen {
			continue
		}

		switch {
		case firstRun:
			metrics.PostsSkipped.WithLabelValues("initial").Inc()
		case params.Filter != nil && post.Type != *params.Filter:
			metrics.PostsSkipped.WithLabelValues("filtered").Inc()
		default:
			if err := s.deliver(ctx, sub.ChatID, post); err != nil {
				log.Error("deliver post", "post_id", post.ID, "type", post.Type, "error", err)
			} else {
				sent++
			}
		}

		if err := s.store.MarkPostSeen(ctx, sub.ChatID, post); err != nil {
			log.Error("mark seen", "post_id", post.ID, "error", err)
		}
	}

	if firstRun && len(posts) > 0 {
		log.Info("recorded initial posts without sending", "count", len(posts))
	}
	if sent > 0 {
		log.Info("sent posts", "count", sent)
	}
}

func (s *Scheduler) deliver(ctx context.Context, chatID int64, post *model.Post) error {
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	return s.dispatcher.Dispatch(ctx, chatID, post)
}
