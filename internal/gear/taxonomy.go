package gear

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_taxonomy.yaml
var defaultTaxonomyYAML []byte

// Category is one top-level gear category.
type Category struct {
	Name     string              `yaml:"name"`
	Priority int                 `yaml:"priority"`
	Common   []string            `yaml:"common"`
	Specific map[string][]string `yaml:"specific"`
	Items    []string            `yaml:"items"`

	subcategories []string // sorted keys of Specific
}

// Taxonomy is an ordered list of categories. Order matters: it breaks ties
// between categories with the same number of hits.
type Taxonomy struct {
	Categories []Category `yaml:"categories"`
}

// DefaultTaxonomy returns the built-in taxonomy.
func DefaultTaxonomy() *Taxonomy {
	t, err := ParseTaxonomy(defaultTaxonomyYAML)
	if err != nil {
		panic(fmt.Sprintf("gear: invalid built-in taxonomy: %v", err))
	}
	return t
}

// LoadTaxonomy reads a taxonomy YAML file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy %s: %w", path, err)
	}
	t, err := ParseTaxonomy(data)
	if err != nil {
		return nil, fmt.Errorf("parsing taxonomy %s: %w", path, err)
	}
	return t, nil
}

// ParseTaxonomy decodes and normalizes a taxonomy document.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if len(t.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}

	seen := make(map[string]bool, len(t.Categories))
	for i := range t.Categories {
		c := &t.Categories[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("category %d has no name", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("duplicate category %q", c.Name)
		}
		seen[c.Name] = true
		if c.Priority <= 0 {
			c.Priority = 99
		}
		c.Common = lowerAll(c.Common)
		c.subcategories = c.subcategories[:0]
		for sub, kws := range c.Specific {
			c.Specific[sub] = lowerAll(kws)
			c.subcategories = append(c.subcategories, sub)
		}
		sort.Strings(c.subcategories)
	}
	return &t, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func countHits(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}
