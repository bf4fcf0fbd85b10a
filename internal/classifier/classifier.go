// Package classifier derives the media shape of a post from its metadata.
package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"tgreddit/internal/model"
)

// DefaultVideoHosts are third-party hosts whose links are fetched with the
// video downloader. A rule is either a bare host or host/*suffix, where the
// suffix must end the URL path.
var DefaultVideoHosts = []string{"i.imgur.com/*.gifv", "gfycat.com"}

type hostRule struct {
	host       string
	pathSuffix string
}

func (r hostRule) match(u *url.URL) bool {
	if !strings.EqualFold(u.Hostname(), r.host) {
		return false
	}
	return r.pathSuffix == "" || strings.HasSuffix(u.Path, r.pathSuffix)
}

// Classifier assigns a PostType to posts. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	rules []hostRule
}

// New creates a Classifier that treats links to videoHosts as videos.
func New(videoHosts []string) (*Classifier, error) {
	rules := make([]hostRule, 0, len(videoHosts))
	for _, h := range videoHosts {
		r, err := parseHostRule(h)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return &Classifier{rules: rules}, nil
}

// ValidateHostRule reports whether s is a well-formed video host rule.
func ValidateHostRule(s string) error {
	_, err := parseHostRule(s)
	return err
}

func parseHostRule(s string) (hostRule, error) {
	s = strings.TrimSpace(s)
	host, pattern, hasPath := strings.Cut(s, "/")
	if host == "" || strings.ContainsAny(host, ":*") {
		return hostRule{}, fmt.Errorf("invalid video host rule %q", s)
	}
	if !hasPath {
		return hostRule{host: host}, nil
	}
	suffix, ok := strings.CutPrefix(pattern, "*")
	if !ok || suffix == "" || strings.Contains(suffix, "*") {
		return hostRule{}, fmt.Errorf("invalid video host rule %q: path must be *suffix", s)
	}
	return hostRule{host: host, pathSuffix: suffix}, nil
}

// Classify returns the post type. The first matching rule wins: video,
// image hint, link hint, self post, gallery, otherwise unknown.
func (c *Classifier) Classify(p *model.Post) model.PostType {
	switch {
	case c.isVideo(p):
		return model.PostTypeVideo
	case hint(p) == "image":
		return model.PostTypeImage
	case hint(p) == "link" || hint(p) == "rich:video":
		return model.PostTypeLink
	case p.IsSelf:
		return model.PostTypeSelfText
	case p.IsGallery != nil && *p.IsGallery:
		return model.PostTypeGallery
	default:
		return model.PostTypeUnknown
	}
}

// isVideo reports whether the post is a video itself or crossposts a
// parent that classifies as video. Parents are classified in full, so a
// chain of crossposts resolves down to the original post.
func (c *Classifier) isVideo(p *model.Post) bool {
	if p.IsVideo || c.isVideoHost(p.URL) {
		return true
	}
	for i := range p.CrosspostParents {
		if c.Classify(&p.CrosspostParents[i]) == model.PostTypeVideo {
			return true
		}
	}
	return false
}

func (c *Classifier) isVideoHost(raw string) bool {
	if raw == "" || len(c.rules) == 0 {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	for _, r := range c.rules {
		if r.match(u) {
			return true
		}
	}
	return false
}

func hint(p *model.Post) string {
	if p.PostHint == nil {
		return ""
	}
	return *p.PostHint
}
