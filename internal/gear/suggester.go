// Package gear suggests equipment for a quest from a keyword taxonomy.
package gear

import (
	"sort"
	"strings"
)

const (
	maxSuggestions = 3
	maxRanked      = 5
	maxItems       = 3
)

// Suggestion is a ranked gear category with a match-density confidence in [0,1].
type Suggestion struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Items      []string `json:"items"`
}

// Suggester matches free text against a Taxonomy. It is safe for concurrent use.
type Suggester struct {
	taxonomy *Taxonomy
}

// NewSuggester creates a Suggester. A nil taxonomy uses DefaultTaxonomy.
func NewSuggester(t *Taxonomy) *Suggester {
	if t == nil {
		t = DefaultTaxonomy()
	}
	return &Suggester{taxonomy: t}
}

// Suggest returns at most three gear labels for text. Categories whose common
// keywords match come first, ordered by hit count and then taxonomy order;
// subcategory matches follow as "category - subcategory". Empty text yields an
// empty slice.
func (s *Suggester) Suggest(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return []string{}
	}

	type hit struct {
		name  string
		count int
		order int
	}
	var cats []hit
	var subs []string
	for i, c := range s.taxonomy.Categories {
		if n := countHits(text, c.Common); n > 0 {
			cats = append(cats, hit{name: c.Name, count: n, order: i})
		}
		for _, sub := range c.subcategories {
			if countHits(text, c.Specific[sub]) > 0 {
				subs = append(subs, c.Name+" - "+sub)
			}
		}
	}
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].count != cats[j].count {
			return cats[i].count > cats[j].count
		}
		return cats[i].order < cats[j].order
	})

	out := make([]string, 0, maxSuggestions)
	for _, c := range cats {
		if len(out) == maxSuggestions {
			return out
		}
		out = append(out, c.name)
	}
	for _, sub := range subs {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, sub)
	}
	return out
}

// Rank counts keyword hits per category across common and specific keywords,
// normalizes them into confidences and returns at most five categories ordered
// by confidence and then category priority. Empty text yields an empty slice.
func (s *Suggester) Rank(text string) []Suggestion {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return []Suggestion{}
	}

	type scored struct {
		cat  *Category
		hits int
	}
	var (
		matched []scored
		total   int
	)
	for i := range s.taxonomy.Categories {
		c := &s.taxonomy.Categories[i]
		n := countHits(text, c.Common)
		for _, sub := range c.subcategories {
			n += countHits(text, c.Specific[sub])
		}
		if n > 0 {
			matched = append(matched, scored{cat: c, hits: n})
			total += n
		}
	}
	if total == 0 {
		return []Suggestion{}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].hits != matched[j].hits {
			return matched[i].hits > matched[j].hits
		}
		return matched[i].cat.Priority < matched[j].cat.Priority
	})

	out := make([]Suggestion, 0, min(len(matched), maxRanked))
	for _, m := range matched {
		if len(out) == maxRanked {
			break
		}
		items := m.cat.Items
		if len(items) > maxItems {
			items = items[:maxItems]
		}
		out = append(out, Suggestion{
			Category:   m.cat.Name,
			Confidence: float64(m.hits) / float64(total),
			Items:      append([]string{}, items...),
		})
	}
	return out
}
