package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/questboard/internal/storage"
)

// listing mirrors the JSON listing shape served by forum feeds.
type listing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string `json:"title"`
				Selftext  string `json:"selftext"`
				URL       string `json:"url"`
				Permalink string `json:"permalink"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// FeedSource reads a JSON listing feed.
type FeedSource struct {
	name   string
	url    string
	client *http.Client
}

// NewFeedSource creates a FeedSource. A nil client gets a 20s timeout.
func NewFeedSource(name, feedURL string, client *http.Client) *FeedSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &FeedSource{name: name, url: feedURL, client: client}
}

func (f *FeedSource) Name() string { return f.name }

// Fetch decodes the feed. Posts without an outbound url fall back to their
// permalink resolved against the feed host.
func (f *FeedSource) Fetch(ctx context.Context) ([]storage.Quest, error) {
	base, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("parsing feed url: %w", err)
	}

	resp, err := get(ctx, f.client, f.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	quests := make([]storage.Quest, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		link := strings.TrimSpace(c.Data.URL)
		if link == "" && c.Data.Permalink != "" {
			u, err := base.Parse(c.Data.Permalink)
			if err != nil {
				continue
			}
			link = u.String()
		}
		quests = append(quests, storage.Quest{
			URL:         link,
			Title:       c.Data.Title,
			Description: c.Data.Selftext,
			Source:      f.name,
		})
	}
	return quests, nil
}
