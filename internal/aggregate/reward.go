package aggregate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kalambet/questboard/internal/storage"
)

// rewardPatterns are tried in order; the first match wins. Group 1 is the
// amount, group 2 an optional thousands suffix.
var rewardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\s?(\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)([kK]\b)?`),
	regexp.MustCompile(`\b(\d+(?:\.\d{1,2})?)\s?([kK])?\s?\$`),
	regexp.MustCompile(`(?i)\b(\d+(?:\.\d{1,2})?)\s?()(?:dollars|usd)\b`),
}

// ExtractReward finds a monetary amount in text and returns it as "$N".
// Text without a recognizable amount yields storage.PlaceholderReward.
func ExtractReward(text string) string {
	for _, re := range rewardPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		amount := strings.ReplaceAll(m[1], ",", "")
		if m[2] != "" {
			v, err := strconv.ParseFloat(amount, 64)
			if err != nil {
				continue
			}
			amount = strconv.FormatFloat(v*1000, 'f', -1, 64)
		}
		return "$" + amount
	}
	return storage.PlaceholderReward
}

// Normalize trims a fetched quest, fills in the reward from its text when
// missing and validates it.
func Normalize(q storage.Quest) (storage.Quest, error) {
	q.URL = strings.TrimSpace(q.URL)
	q.Title = strings.Join(strings.Fields(q.Title), " ")
	q.Description = strings.TrimSpace(q.Description)
	q.Source = strings.TrimSpace(q.Source)
	q.Region = strings.Trim(strings.TrimSpace(q.Region), "()")
	q.Reward = strings.TrimSpace(q.Reward)
	if q.Reward == "" || q.Reward == storage.PlaceholderReward {
		q.Reward = ExtractReward(q.Text())
	}
	if q.GearRequired == nil {
		q.GearRequired = []string{}
	}
	if err := q.Validate(); err != nil {
		return storage.Quest{}, err
	}
	return q, nil
}
