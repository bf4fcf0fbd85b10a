package bot

import (
	"fmt"
	"strings"

	"tgreddit/internal/model"
)

const helpText = `Subreddit commands:
/sub <subreddit> [limit=N] [time=P] [filter=T] — subscribe to top posts
/unsub <subreddit> — unsubscribe
/listsubs — show your subscriptions
/get <subreddit> [limit=N] [time=P] [filter=T] — fetch top posts once

Options:
limit — number of top posts per check (1-100)
time — hour | day | week | month | year | all
filter — video | image | link | self_text | gallery`

// FormatSubscriptionList formats a chat's subscriptions for display.
func FormatSubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "You have no subscriptions yet. Use /sub <subreddit> to add one."
	}
	var b strings.Builder
	b.WriteString("Your subscriptions:\n")
	for _, s := range subs {
		fmt.Fprintf(&b, "\nr/%s", s.Subreddit)
		if s.Limit != nil {
			fmt.Fprintf(&b, " limit=%d", *s.Limit)
		}
		if s.Time != nil {
			fmt.Fprintf(&b, " time=%s", *s.Time)
		}
		if s.Filter != nil {
			fmt.Fprintf(&b, " filter=%s", *s.Filter)
		}
	}
	return b.String()
}
