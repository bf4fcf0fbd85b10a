package delivery

import (
	"fmt"
	"html"
	"strings"

	"tgreddit/internal/model"
)

// DefaultLinksBaseURL is the host used for subreddit and comment links.
const DefaultLinksBaseURL = "https://www.reddit.com"

// Formatter renders post captions and messages as Telegram HTML.
type Formatter struct {
	base string
}

// NewFormatter creates a Formatter linking to base, or to Reddit when empty.
func NewFormatter(base string) Formatter {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultLinksBaseURL
	}
	return Formatter{base: base}
}

// SubredditURL returns the link to the subreddit.
func (f Formatter) SubredditURL(subreddit string) string {
	return f.base + "/r/" + subreddit
}

// CommentsURL returns the link to the post's comment page.
func (f Formatter) CommentsURL(p *model.Post) string {
	return f.base + p.Permalink
}

// Caption renders the title followed by subreddit and comment links.
func (f Formatter) Caption(p *model.Post) string {
	return html.EscapeString(p.Title) + "\n" + f.footer(p)
}

// LinkMessage renders the title as a link to the post's external URL.
func (f Formatter) LinkMessage(p *model.Post) string {
	return anchor(p.URL, p.Title) + "\n" + f.footer(p)
}

func (f Formatter) footer(p *model.Post) string {
	return fmt.Sprintf("%s [%s]",
		anchor(f.SubredditURL(p.Subreddit), "/r/"+p.Subreddit),
		anchor(f.CommentsURL(p), "comments"),
	)
}

func anchor(href, text string) string {
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(text) + `</a>`
}
