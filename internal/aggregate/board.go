package aggregate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kalambet/questboard/internal/storage"
)

const userAgent = "questboard/1.0"

// Listing boards have shipped several layouts; each selector list covers them.
const (
	boardRowSelector    = "li.cl-search-result, li.result-row, div.cl-search-result"
	boardTitleSelector  = ".title, a.result-title, .posting-title"
	boardPriceSelector  = ".price, .result-price"
	boardRegionSelector = ".result-hood"
)

// BoardSource scrapes an HTML classifieds listing page.
type BoardSource struct {
	name   string
	url    string
	client *http.Client
}

// NewBoardSource creates a BoardSource. A nil client gets a 20s timeout.
func NewBoardSource(name, pageURL string, client *http.Client) *BoardSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &BoardSource{name: name, url: pageURL, client: client}
}

func (b *BoardSource) Name() string { return b.name }

// Fetch downloads the listing page and extracts one quest per result row.
func (b *BoardSource) Fetch(ctx context.Context) ([]storage.Quest, error) {
	base, err := url.Parse(b.url)
	if err != nil {
		return nil, fmt.Errorf("parsing board url: %w", err)
	}

	resp, err := get(ctx, b.client, b.url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing board html: %w", err)
	}
	return parseBoard(doc, base, b.name), nil
}

func parseBoard(doc *goquery.Document, base *url.URL, source string) []storage.Quest {
	var quests []storage.Quest
	doc.Find(boardRowSelector).Each(func(_ int, row *goquery.Selection) {
		title := row.Find(boardTitleSelector).First()
		text := strings.TrimSpace(title.Text())
		if text == "" {
			return
		}

		href, ok := title.Attr("href")
		if !ok {
			href, ok = title.Find("a[href]").First().Attr("href")
		}
		if !ok {
			href, ok = row.Find("a[href]").First().Attr("href")
		}
		if !ok {
			return
		}
		link, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}

		q := storage.Quest{
			URL:    link.String(),
			Title:  text,
			Source: source,
			Region: strings.TrimSpace(row.Find(boardRegionSelector).First().Text()),
		}
		if price := strings.TrimSpace(row.Find(boardPriceSelector).First().Text()); price != "" {
			q.Reward = ExtractReward(price)
		}
		quests = append(quests, q)
	})
	return quests
}

func get(ctx context.Context, client *http.Client, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: unexpected status %d", target, resp.StatusCode)
	}
	return resp, nil
}
