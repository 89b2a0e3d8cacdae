package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/pipeline"
	"github.com/kalambet/questboard/internal/storage"
)

type mockTrigger struct {
	triggered int
	last      pipeline.Report
	hasLast   bool
}

func (m *mockTrigger) Trigger() { m.triggered++ }

func (m *mockTrigger) Last() (pipeline.Report, bool) { return m.last, m.hasLast }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedQuest(t *testing.T, store *storage.Store, url, title, source string, difficulty float64) storage.Quest {
	t.Helper()
	if _, err := store.CacheQuest(storage.Quest{
		URL:          url,
		Title:        title,
		Source:       source,
		Reward:       "$50",
		Difficulty:   difficulty,
		GearRequired: []string{"drill"},
	}); err != nil {
		t.Fatalf("caching quest: %v", err)
	}
	q, err := store.GetQuestByURL(url)
	if err != nil {
		t.Fatalf("loading quest: %v", err)
	}
	return q
}

func newTestMCPDeps(t *testing.T) (MCPDeps, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	return MCPDeps{
		Store: store,
		Gear:  gear.NewSuggester(nil),
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func TestMCPTool_SearchQuests(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedQuest(t, store, "https://a.test/1", "Mount a TV on brick", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Walk my dog", "board", 1)

	result, err := mcpSearchQuests(deps)(context.Background(), makeCallToolRequest("search_quests", map[string]interface{}{
		"query": "mount tv",
		"limit": 5,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got []questView
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	if got[0].Title != "Mount a TV on brick" {
		t.Errorf("title = %q", got[0].Title)
	}
	if got[0].Rank != "Adventurer" {
		t.Errorf("rank = %q, want Adventurer", got[0].Rank)
	}
}

func TestMCPTool_SearchQuests_EmptyQueryListsRecent(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Clean a yard", "board", 1)

	result, err := mcpSearchQuests(deps)(context.Background(), makeCallToolRequest("search_quests", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []questView
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 quests, got %d", len(got))
	}
}

func TestMCPTool_GetQuest(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	q := seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 4.5)

	result, err := mcpGetQuest(deps)(context.Background(), makeCallToolRequest("get_quest", map[string]interface{}{
		"id": q.ID,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}

	var got questView
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if got.ID != q.ID || got.Rank != "Warlord" {
		t.Errorf("got id=%s rank=%s", got.ID, got.Rank)
	}
}

func TestMCPTool_GetQuest_NotFound(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpGetQuest(deps)(context.Background(), makeCallToolRequest("get_quest", map[string]interface{}{
		"id": "missing",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for unknown id")
	}
	if !strings.Contains(toolText(t, result), "not found") {
		t.Errorf("unexpected message: %s", toolText(t, result))
	}
}

func TestMCPTool_GetQuest_MissingID(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpGetQuest(deps)(context.Background(), makeCallToolRequest("get_quest", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing id")
	}
}

func TestMCPTool_SuggestGear(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSuggestGear(deps)(context.Background(), makeCallToolRequest("suggest_gear", map[string]interface{}{
		"text": "Install a shelf with a drill",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got gearResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got.Suggestions) == 0 || got.Suggestions[0] != "drill" {
		t.Errorf("suggestions = %v, want drill first", got.Suggestions)
	}
	if len(got.Ranked) == 0 {
		t.Error("expected ranked suggestions")
	}
}

func TestMCPTool_SuggestGear_EmptyText(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpSuggestGear(deps)(context.Background(), makeCallToolRequest("suggest_gear", map[string]interface{}{
		"text": "",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for empty text")
	}
}

func TestMCPTool_DifficultyCurves(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	if _, err := store.UpsertCurve("board", "kubernetes", 5); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.UpsertCurve("feed", "painting", 2); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	result, err := mcpDifficultyCurves(deps)(context.Background(), makeCallToolRequest("difficulty_curves", map[string]interface{}{
		"category": "board",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []storage.DifficultyCurve
	if err := json.Unmarshal([]byte(toolText(t, result)), &got); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(got) != 1 || got[0].Keyword != "kubernetes" {
		t.Fatalf("curves = %+v", got)
	}
}

func TestMCPTool_DifficultyCurves_EmptyIsArray(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpDifficultyCurves(deps)(context.Background(), makeCallToolRequest("difficulty_curves", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != "[]" {
		t.Errorf("got %s, want []", got)
	}
}

func TestMCPTool_RunIngest(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpRunIngest(deps)(context.Background(), makeCallToolRequest("run_ingest", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error without a scheduler")
	}

	trigger := &mockTrigger{}
	deps.Ingest = trigger
	result, err = mcpRunIngest(deps)(context.Background(), makeCallToolRequest("run_ingest", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if trigger.triggered != 1 {
		t.Errorf("triggered %d times, want 1", trigger.triggered)
	}
}

func TestMCPResource_Pending(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	approved := seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Clean a yard", "board", 1)
	if err := store.ApproveQuest(approved.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	contents, err := mcpResourcePending(deps)(context.Background(), makeReadResourceRequest("quests://pending"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "quests://pending" || tc.MIMEType != "application/json" {
		t.Errorf("unexpected resource metadata: %s %s", tc.URI, tc.MIMEType)
	}

	var got []questView
	if err := json.Unmarshal([]byte(tc.Text), &got); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Clean a yard" {
		t.Fatalf("pending = %+v", got)
	}
}

func TestMCPResource_Stats(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Clean a yard", "feed", 4)

	contents, err := mcpResourceStats(deps)(context.Background(), makeReadResourceRequest("quests://stats"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)

	var stats storage.CacheStats
	if err := json.Unmarshal([]byte(tc.Text), &stats); err != nil {
		t.Fatalf("failed to parse resource: %v", err)
	}
	if stats.TotalCount != 2 {
		t.Errorf("total = %d, want 2", stats.TotalCount)
	}
	if stats.BySource["feed"] != 1 {
		t.Errorf("by source = %v", stats.BySource)
	}
}

func TestNewMCPServer(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	if s := NewMCPServer(deps, "test"); s == nil {
		t.Fatal("expected server")
	}
}
