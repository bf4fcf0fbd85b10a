// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// PostType is the media shape of a post, which selects its delivery pipeline.
type PostType string

// Supported post types.
const (
	PostTypeVideo    PostType = "video"
	PostTypeImage    PostType = "image"
	PostTypeLink     PostType = "link"
	PostTypeSelfText PostType = "self_text"
	PostTypeGallery  PostType = "gallery"
	PostTypeUnknown  PostType = "unknown"
)

var postTypes = []PostType{
	PostTypeVideo, PostTypeImage, PostTypeLink, PostTypeSelfText, PostTypeGallery, PostTypeUnknown,
}

// ParsePostType parses a post type name case-insensitively.
func ParsePostType(s string) (PostType, error) {
	v := PostType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range postTypes {
		if v == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("invalid post type %q", s)
}

// TimePeriod is the window a top listing is computed over.
type TimePeriod string

// Supported time periods.
const (
	TimeHour  TimePeriod = "hour"
	TimeDay   TimePeriod = "day"
	TimeWeek  TimePeriod = "week"
	TimeMonth TimePeriod = "month"
	TimeYear  TimePeriod = "year"
	TimeAll   TimePeriod = "all"
)

var timePeriods = []TimePeriod{TimeHour, TimeDay, TimeWeek, TimeMonth, TimeYear, TimeAll}

// ParseTimePeriod parses a time period name case-insensitively.
func ParseTimePeriod(s string) (TimePeriod, error) {
	v := TimePeriod(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range timePeriods {
		if v == p {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid time period %q", s)
}

// Subscription binds a chat to a subreddit with optional listing overrides.
type Subscription struct {
	ChatID    int64
	Subreddit string
	Limit     *int
	Time      *TimePeriod
	Filter    *PostType
	CreatedAt time.Time
}

// SeenPost records that a post was handled for a chat.
type SeenPost struct {
	PostID    string
	ChatID    int64
	Subreddit string
	SeenAt    time.Time
}

// GalleryItem is one media entry of a gallery post, in declared order.
// MediaID names the underlying media; one media may appear under
// several item IDs.
type GalleryItem struct {
	ID      string
	MediaID string
	URL     string
	IsVideo bool
}

// Post is a single subreddit submission as returned by the content source.
type Post struct {
	ID               string
	Created          float64
	Subreddit        string
	Title            string
	URL              string
	Permalink        string
	PostHint         *string
	IsSelf           bool
	IsVideo          bool
	IsGallery        *bool
	Ups              int
	CrosspostParents []Post
	GalleryItems     []GalleryItem

	// Type is set by the classifier and never taken from the source.
	Type PostType
}

// Key identifies the media behind the item.
func (g GalleryItem) Key() string {
	if g.MediaID != "" {
		return g.MediaID
	}
	return g.ID
}

// IsCrosspost reports whether the post carries crosspost parents.
func (p *Post) IsCrosspost() bool {
	return len(p.CrosspostParents) > 0
}

// ListingParams are the effective parameters for fetching a top listing.
type ListingParams struct {
	Limit  int
	Time   TimePeriod
	Filter *PostType
}

// Hard defaults used when neither a subscription nor the configuration
// sets a listing parameter.
const (
	DefaultLimit = 1
	DefaultTime  = TimeDay
)

// ListingDefaults are the configured fallbacks for listing parameters.
// Zero values fall back to DefaultLimit and DefaultTime.
type ListingDefaults struct {
	Limit  int
	Time   TimePeriod
	Filter *PostType
}

// Resolve picks each parameter from the override when set, then from the
// configured default, then from the hard default.
func (d ListingDefaults) Resolve(limit *int, period *TimePeriod, filter *PostType) ListingParams {
	p := ListingParams{Limit: DefaultLimit, Time: DefaultTime, Filter: d.Filter}
	if d.Limit > 0 {
		p.Limit = d.Limit
	}
	if d.Time != "" {
		p.Time = d.Time
	}
	if limit != nil {
		p.Limit = *limit
	}
	if period != nil {
		p.Time = *period
	}
	if filter != nil {
		p.Filter = filter
	}
	return p
}
