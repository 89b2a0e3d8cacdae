// Package aggregate collects quests from external sources and merges them
// into a single deduplicated batch.
package aggregate

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/questboard/internal/storage"
)

// Source fetches one batch of quests from an external origin.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]storage.Quest, error)
}

// Aggregator runs a fixed set of sources and merges their batches.
type Aggregator struct {
	sources  []Source
	parallel int
}

// New creates an Aggregator over sources. Merge order follows the order
// sources are given here.
func New(sources ...Source) *Aggregator {
	return &Aggregator{sources: sources, parallel: 4}
}

// Sources returns the registered source names in order.
func (a *Aggregator) Sources() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

// Collect fetches every source concurrently and merges the results. A failing
// source is logged and contributes nothing; Collect itself never fails.
func (a *Aggregator) Collect(ctx context.Context) []storage.Quest {
	batches := make([][]storage.Quest, len(a.sources))

	var g errgroup.Group
	g.SetLimit(a.parallel)
	for i, src := range a.sources {
		g.Go(func() error {
			quests, err := src.Fetch(ctx)
			if err != nil {
				slog.Warn("aggregate: source failed", "source", src.Name(), "error", err)
				return nil
			}
			batch := make([]storage.Quest, 0, len(quests))
			for _, q := range quests {
				if q.Source == "" {
					q.Source = src.Name()
				}
				nq, err := Normalize(q)
				if err != nil {
					slog.Debug("aggregate: dropping invalid quest", "source", src.Name(), "error", err)
					continue
				}
				batch = append(batch, nq)
			}
			batches[i] = batch
			slog.Debug("aggregate: source fetched", "source", src.Name(), "quests", len(batch))
			return nil
		})
	}
	_ = g.Wait()

	return Merge(batches)
}

// Merge concatenates batches keeping the first quest seen for each URL.
// Quests without a URL are dropped.
func Merge(batches [][]storage.Quest) []storage.Quest {
	seen := make(map[string]bool)
	out := []storage.Quest{}
	for _, batch := range batches {
		for _, q := range batch {
			url := strings.TrimSpace(q.URL)
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			out = append(out, q)
		}
	}
	return out
}
