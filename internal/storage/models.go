package storage

import (
	"strings"
	"time"
)

// ApprovalState is the moderation state of a cached quest.
type ApprovalState string

const (
	StatePending  ApprovalState = "pending"
	StateApproved ApprovalState = "approved"
	StateRejected ApprovalState = "rejected"
)

// PlaceholderReward is stored when no reward could be extracted from a listing.
const PlaceholderReward = "TBD"

// EvictionWindow is how long a quest survives without being seen again.
const EvictionWindow = 30 * 24 * time.Hour

// Quest is a single listing as it flows through the pipeline and into the cache.
//
// Zero values are the documented defaults: an empty Source means the origin is
// unknown, Difficulty 0 means unscored, and an empty ApprovalState is written
// as pending on first insert.
type Quest struct {
	ID            string        `json:"id"`
	URL           string        `json:"url"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Source        string        `json:"source"`
	Reward        string        `json:"reward"`
	Difficulty    float64       `json:"difficulty"`
	GearRequired  []string      `json:"gear_required"`
	Region        string        `json:"region,omitempty"`
	ApprovalState ApprovalState `json:"approval_state"`
	CreatedAt     time.Time     `json:"created_at"`
	LastSeen      time.Time     `json:"last_seen"`
}

// Text returns the title and description joined, which is what scoring and
// gear matching look at.
func (q Quest) Text() string {
	return strings.TrimSpace(q.Title + " " + q.Description)
}

// Validate checks the fields required before any write.
func (q Quest) Validate() error {
	if strings.TrimSpace(q.URL) == "" {
		return &ValidationError{Field: "url"}
	}
	if strings.TrimSpace(q.Title) == "" {
		return &ValidationError{Field: "title"}
	}
	return nil
}

// DifficultyCurve is a learned (source, keyword) difficulty association.
type DifficultyCurve struct {
	ID        int64     `json:"id"`
	Category  string    `json:"category"`
	Keyword   string    `json:"keyword"`
	Score     float64   `json:"difficulty_score"`
	CreatedAt time.Time `json:"created_at"`
}

// CacheStats is the snapshot returned by every CacheQuest call.
type CacheStats struct {
	TotalCount      int            `json:"total_quests"`
	BySource        map[string]int `json:"quests_by_source"`
	AvgDifficulty   float64        `json:"avg_difficulty"`
	OldestCreated   time.Time      `json:"oldest_created_at"`
	NewestCreated   time.Time      `json:"newest_created_at"`
	PlaceholderGear int            `json:"placeholder_gear"`
}

// Bookmark links a user to a saved quest.
type Bookmark struct {
	UserID    string    `json:"user_id"`
	QuestID   string    `json:"quest_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceActivity counts quests created by one source within a window.
type SourceActivity struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// ModelRecord is a persisted scoring model artifact.
type ModelRecord struct {
	Name     string
	Payload  []byte
	DocCount int
	FittedAt time.Time
}

// QuestFilter narrows GetQuests. Zero fields do not filter.
type QuestFilter struct {
	Source        string
	Region        string
	State         ApprovalState
	MinDifficulty float64
	MaxDifficulty float64
	Limit         int
	Offset        int
}

func joinGear(items []string) string {
	return strings.Join(items, ", ")
}

func splitGear(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == PlaceholderReward {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
