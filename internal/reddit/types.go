package reddit

import (
	"strconv"

	"tgreddit/internal/model"
)

type thing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

type listing struct {
	Children []thing[postData] `json:"children"`
}

type aboutData struct {
	DisplayName string `json:"display_name"`
	Title       string `json:"title"`
	Over18      bool   `json:"over18"`
}

// About describes a subreddit.
type About struct {
	Name   string
	Title  string
	Over18 bool
}

type postData struct {
	ID                  string                   `json:"id"`
	CreatedUTC          float64                  `json:"created_utc"`
	Subreddit           string                   `json:"subreddit"`
	Title               string                   `json:"title"`
	URL                 string                   `json:"url"`
	Permalink           string                   `json:"permalink"`
	PostHint            *string                  `json:"post_hint"`
	IsSelf              bool                     `json:"is_self"`
	IsVideo             bool                     `json:"is_video"`
	IsGallery           *bool                    `json:"is_gallery"`
	Ups                 int                      `json:"ups"`
	CrosspostParentList []postData               `json:"crosspost_parent_list"`
	GalleryData         *galleryData             `json:"gallery_data"`
	MediaMetadata       map[string]mediaMetadata `json:"media_metadata"`
}

type galleryData struct {
	Items []struct {
		MediaID string `json:"media_id"`
		ID      int64  `json:"id"`
	} `json:"items"`
}

type mediaMetadata struct {
	Status string `json:"status"`
	Kind   string `json:"e"`
	Mime   string `json:"m"`
	Source struct {
		URL string `json:"u"`
		GIF string `json:"gif"`
		MP4 string `json:"mp4"`
		X   int    `json:"x"`
		Y   int    `json:"y"`
	} `json:"s"`
}

func (d postData) toModel() model.Post {
	p := model.Post{
		ID:           d.ID,
		Created:      d.CreatedUTC,
		Subreddit:    d.Subreddit,
		Title:        d.Title,
		URL:          d.URL,
		Permalink:    d.Permalink,
		PostHint:     d.PostHint,
		IsSelf:       d.IsSelf,
		IsVideo:      d.IsVideo,
		IsGallery:    d.IsGallery,
		Ups:          d.Ups,
		GalleryItems: d.galleryItems(),
	}
	for _, parent := range d.CrosspostParentList {
		p.CrosspostParents = append(p.CrosspostParents, parent.toModel())
	}
	return p
}

// galleryItems resolves gallery entries to media URLs in declared order.
// Entries without usable metadata are dropped.
func (d postData) galleryItems() []model.GalleryItem {
	if d.GalleryData == nil {
		return nil
	}
	var items []model.GalleryItem
	for _, it := range d.GalleryData.Items {
		meta, ok := d.MediaMetadata[it.MediaID]
		if !ok || (meta.Status != "" && meta.Status != "valid") {
			continue
		}
		item := model.GalleryItem{ID: it.MediaID, MediaID: it.MediaID}
		if it.ID != 0 {
			item.ID = strconv.FormatInt(it.ID, 10)
		}
		switch {
		case meta.Kind == "AnimatedImage" && meta.Source.MP4 != "":
			item.URL, item.IsVideo = meta.Source.MP4, true
		case meta.Kind == "AnimatedImage" && meta.Source.GIF != "":
			item.URL = meta.Source.GIF
		default:
			item.URL = meta.Source.URL
		}
		if item.URL == "" {
			continue
		}
		items = append(items, item)
	}
	return items
}
