package bot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"tgreddit/internal/model"
)

// maxListingLimit is the largest page size the listing API serves.
const maxListingLimit = 100

var subredditNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SubscriptionArgs holds the parsed arguments of /sub and /get.
type SubscriptionArgs struct {
	Subreddit string
	Limit     *int
	Time      *model.TimePeriod
	Filter    *model.PostType
}

// ParseSubscriptionArgs parses "<subreddit> [limit=N] [time=P] [filter=T]".
// The subreddit may be written with an r/ or /r/ prefix.
func ParseSubscriptionArgs(args string) (SubscriptionArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return SubscriptionArgs{}, fmt.Errorf("subreddit is required")
	}

	name, err := ParseSubredditName(parts[0])
	if err != nil {
		return SubscriptionArgs{}, err
	}
	out := SubscriptionArgs{Subreddit: name}

	for _, opt := range parts[1:] {
		key, value, ok := strings.Cut(opt, "=")
		if !ok || value == "" {
			return SubscriptionArgs{}, fmt.Errorf("invalid option %q, expected key=value", opt)
		}
		switch strings.ToLower(key) {
		case "limit":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > maxListingLimit {
				return SubscriptionArgs{}, fmt.Errorf("limit must be between 1 and %d", maxListingLimit)
			}
			out.Limit = &n
		case "time":
			p, err := model.ParseTimePeriod(value)
			if err != nil {
				return SubscriptionArgs{}, fmt.Errorf("time must be one of hour, day, week, month, year, all")
			}
			out.Time = &p
		case "filter":
			t, err := model.ParsePostType(value)
			if err != nil {
				return SubscriptionArgs{}, fmt.Errorf("filter must be one of video, image, link, self_text, gallery, unknown")
			}
			out.Filter = &t
		default:
			return SubscriptionArgs{}, fmt.Errorf("unknown option %q", key)
		}
	}
	return out, nil
}

// ParseSubredditName strips an r/ or /r/ prefix and validates the name.
func ParseSubredditName(s string) (string, error) {
	name := strings.TrimSpace(s)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "r/") {
		name = name[2:]
	}
	name = strings.TrimSuffix(name, "/")
	if !subredditNameRe.MatchString(name) {
		return "", fmt.Errorf("invalid subreddit name %q", s)
	}
	return name, nil
}
