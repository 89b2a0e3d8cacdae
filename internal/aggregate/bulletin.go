package aggregate

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kalambet/questboard/internal/storage"
)

var (
	bulletinURL   = regexp.MustCompile(`https?://\S+`)
	bulletinBreak = regexp.MustCompile(`\n\s*\n`)
)

// BulletinSource reads quests from a PDF bulletin on disk. Entries are
// separated by blank lines: the first line is the title, the first line
// holding an http(s) URL is the link and the rest is the description.
type BulletinSource struct {
	name string
	path string
}

func NewBulletinSource(name, path string) *BulletinSource {
	return &BulletinSource{name: name, path: path}
}

func (b *BulletinSource) Name() string { return b.name }

func (b *BulletinSource) Fetch(ctx context.Context) ([]storage.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, fmt.Errorf("reading bulletin: %w", err)
	}
	text, err := extractPDFText(data)
	if err != nil {
		return nil, err
	}
	return parseBulletin(text, b.name), nil
}

func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("pdf reader: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("pdf plaintext: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("pdf read: %w", err)
	}
	return string(b), nil
}

func parseBulletin(text, source string) []storage.Quest {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var quests []storage.Quest
	for _, block := range bulletinBreak.Split(text, -1) {
		var (
			title string
			link  string
			desc  []string
		)
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case title == "":
				title = line
			case link == "" && bulletinURL.MatchString(line):
				link = bulletinURL.FindString(line)
			default:
				desc = append(desc, line)
			}
		}
		if title == "" || link == "" {
			continue
		}
		quests = append(quests, storage.Quest{
			URL:         link,
			Title:       title,
			Description: strings.Join(desc, " "),
			Source:      source,
		})
	}
	return quests
}
