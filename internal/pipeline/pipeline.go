// Package pipeline wires aggregation, scoring, gear suggestion and caching
// into a single ingestion run, plus the background jobs around it.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/questboard/internal/scoring"
	"github.com/kalambet/questboard/internal/storage"
)

const tracerName = "github.com/kalambet/questboard/internal/pipeline"

// Collector produces a merged batch of quests.
type Collector interface {
	Collect(ctx context.Context) []storage.Quest
}

// GearSuggester tags quest text with gear labels.
type GearSuggester interface {
	Suggest(text string) []string
}

// QuestCache persists quests one at a time.
type QuestCache interface {
	CacheQuest(q storage.Quest) (storage.CacheStats, error)
}

// Report summarizes one pipeline run.
type Report struct {
	Fetched    int                `json:"fetched"`
	Cached     int                `json:"cached"`
	Failed     int                `json:"failed"`
	Stats      storage.CacheStats `json:"stats"`
	StartedAt  time.Time          `json:"started_at"`
	DurationMs int64              `json:"duration_ms"`
}

// Pipeline runs collect → score → gear → cache.
type Pipeline struct {
	collector Collector
	scorer    scoring.Scorer
	gear      GearSuggester
	cache     QuestCache
	tracer    trace.Tracer
}

// New creates a Pipeline. collector may be nil when only Process is used.
func New(collector Collector, scorer scoring.Scorer, gear GearSuggester, cache QuestCache) *Pipeline {
	return &Pipeline{
		collector: collector,
		scorer:    scorer,
		gear:      gear,
		cache:     cache,
		tracer:    otel.Tracer(tracerName),
	}
}

// Run collects from all sources and processes the merged batch.
func (p *Pipeline) Run(ctx context.Context) Report {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	var quests []storage.Quest
	if p.collector != nil {
		_, cspan := p.tracer.Start(ctx, "pipeline.collect")
		quests = p.collector.Collect(ctx)
		cspan.SetAttributes(attribute.Int("quests", len(quests)))
		cspan.End()
	}
	return p.Process(ctx, quests)
}

// Process scores, tags and caches quests that are already merged. A quest
// that fails to cache is logged and counted; the rest still go through.
func (p *Pipeline) Process(ctx context.Context, quests []storage.Quest) (rep Report) {
	rep.StartedAt = time.Now().UTC()
	rep.Fetched = len(quests)
	defer func() {
		rep.DurationMs = time.Since(rep.StartedAt).Milliseconds()
	}()

	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(attribute.Int("quests", len(quests))))
	defer span.End()

	if len(quests) == 0 {
		return rep
	}

	_, sspan := p.tracer.Start(ctx, "pipeline.score")
	quests = p.scorer.Score(ctx, quests)
	sspan.End()

	for i := range quests {
		if len(quests[i].GearRequired) == 0 {
			quests[i].GearRequired = p.gear.Suggest(quests[i].Text())
		}
	}

	_, wspan := p.tracer.Start(ctx, "pipeline.cache")
	defer wspan.End()
	for _, q := range quests {
		stats, err := p.cache.CacheQuest(q)
		if err != nil {
			slog.Warn("pipeline: caching quest failed", "url", q.URL, "error", err)
			rep.Failed++
			continue
		}
		rep.Cached++
		rep.Stats = stats
	}
	wspan.SetAttributes(attribute.Int("cached", rep.Cached), attribute.Int("failed", rep.Failed))

	slog.Info("pipeline run complete",
		"fetched", rep.Fetched,
		"cached", rep.Cached,
		"failed", rep.Failed,
		"total", rep.Stats.TotalCount,
	)
	return rep
}
