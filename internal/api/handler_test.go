package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/questboard/internal/gear"
	"github.com/kalambet/questboard/internal/pipeline"
	"github.com/kalambet/questboard/internal/scoring"
	"github.com/kalambet/questboard/internal/storage"
)

const testToken = "test-token-12345"

func setupAppHandler(t *testing.T, token string, trigger IngestTrigger) (http.Handler, *storage.Store) {
	t.Helper()
	store := openTestStore(t)
	suggester := gear.NewSuggester(nil)
	p := pipeline.New(nil, scoring.NewLexical(store, scoring.LexicalOptions{}), suggester, store)

	handler := NewAppHandler(AppDeps{
		Store:     store,
		Processor: p,
		Ingest:    trigger,
		Gear:      suggester,
		Token:     token,
	})
	return handler, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
}

func TestHealth_NoAuth(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, nil)

	rr := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestAuth_Rejects(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, nil)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"wrong", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodGet, "/quests", "", tt.token))
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func TestAuth_EmptyConfiguredTokenRejectsAll(t *testing.T) {
	h, _ := setupAppHandler(t, "", nil)

	req := httptest.NewRequest(http.MethodGet, "/quests", nil)
	req.Header.Set("Authorization", "Bearer ")
	if rr := serve(h, req); rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestCreateQuests_ScoresTagsAndCaches(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)

	body := `{"quests":[
		{"url":"https://a.test/1","title":"Deploy kubernetes cluster","description":"docker and python, pays $300"},
		{"url":"https://a.test/2","title":"Install a shelf","description":"need a drill","region":"(queens)"},
		{"url":"https://a.test/1","title":"duplicate url"}
	]}`
	rr := serve(h, authReq(http.MethodPost, "/quests", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var rep pipeline.Report
	decodeBody(t, rr, &rep)
	if rep.Fetched != 2 || rep.Cached != 2 {
		t.Fatalf("report = %+v, want 2 fetched and cached", rep)
	}

	q, err := store.GetQuestByURL("https://a.test/1")
	if err != nil {
		t.Fatalf("GetQuestByURL: %v", err)
	}
	if q.Source != "api" {
		t.Errorf("source = %q, want api", q.Source)
	}
	if q.Reward != "$300" {
		t.Errorf("reward = %q, want $300", q.Reward)
	}
	if q.Difficulty < scoring.MinDifficulty || q.Difficulty > scoring.MaxDifficulty {
		t.Errorf("difficulty %v out of range", q.Difficulty)
	}

	shelf, err := store.GetQuestByURL("https://a.test/2")
	if err != nil {
		t.Fatalf("GetQuestByURL: %v", err)
	}
	if shelf.Region != "queens" {
		t.Errorf("region = %q, want queens", shelf.Region)
	}
	if len(shelf.GearRequired) == 0 || shelf.GearRequired[0] != "drill" {
		t.Errorf("gear = %v, want drill first", shelf.GearRequired)
	}
}

func TestCreateQuests_Invalid(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, nil)

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"empty", `{"quests":[]}`},
		{"missing title", `{"quests":[{"url":"https://a.test/1"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, authReq(http.MethodPost, "/quests", tt.body, testToken))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body = %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestListQuests_Filters(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)
	seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Deploy a backend", "feed", 4.5)

	rr := serve(h, authReq(http.MethodGet, "/quests?source=feed", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []questView
	decodeBody(t, rr, &got)
	if len(got) != 1 || got[0].Source != "feed" || got[0].Rank != "Warlord" {
		t.Fatalf("got %+v", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/quests?max_difficulty=3", "", testToken))
	got = nil
	decodeBody(t, rr, &got)
	if len(got) != 1 || got[0].Title != "Fix a fence" {
		t.Fatalf("max_difficulty filter: got %+v", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/quests?q=fence", "", testToken))
	got = nil
	decodeBody(t, rr, &got)
	if len(got) != 1 || got[0].Title != "Fix a fence" {
		t.Fatalf("search: got %+v", got)
	}
}

func TestListQuests_BadParams(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, nil)

	for _, url := range []string{"/quests?state=lost", "/quests?min_difficulty=hard"} {
		rr := serve(h, authReq(http.MethodGet, url, "", testToken))
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, rr.Code)
		}
	}
}

func TestGetQuest(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)
	q := seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)

	rr := serve(h, authReq(http.MethodGet, "/quests/"+q.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got questView
	decodeBody(t, rr, &got)
	if got.ID != q.ID || got.Rank != "Adventurer" {
		t.Errorf("got %+v", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/quests/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing quest: status = %d, want 404", rr.Code)
	}
}

func TestSimilarQuests(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)
	q := seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Paint a fence", "board", 2.5)
	seedQuest(t, store, "https://a.test/3", "Deploy a backend", "feed", 2)

	rr := serve(h, authReq(http.MethodGet, "/quests/"+q.ID+"/similar", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []questView
	decodeBody(t, rr, &got)
	if len(got) != 1 || got[0].Title != "Paint a fence" {
		t.Fatalf("got %+v", got)
	}

	rr = serve(h, authReq(http.MethodGet, "/quests/missing/similar", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestApproveReject(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)
	q := seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)

	rr := serve(h, authReq(http.MethodPost, "/quests/"+q.ID+"/approve", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var got questView
	decodeBody(t, rr, &got)
	if got.ApprovalState != storage.StateApproved {
		t.Errorf("state = %q, want approved", got.ApprovalState)
	}

	rr = serve(h, authReq(http.MethodPost, "/quests/"+q.ID+"/reject", "", testToken))
	if rr.Code != http.StatusConflict {
		t.Errorf("reject after approve: status = %d, want 409", rr.Code)
	}

	rr = serve(h, authReq(http.MethodPost, "/quests/missing/approve", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d, want 404", rr.Code)
	}
}

func TestStats(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)
	seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)
	seedQuest(t, store, "https://a.test/2", "Paint a fence", "board", 4)

	rr := serve(h, authReq(http.MethodGet, "/stats", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var stats storage.CacheStats
	decodeBody(t, rr, &stats)
	if stats.TotalCount != 2 || stats.AvgDifficulty != 3 {
		t.Errorf("stats = %+v", stats)
	}

	rr = serve(h, authReq(http.MethodGet, "/stats/activity?days=1", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("activity status = %d", rr.Code)
	}
	var activity []storage.SourceActivity
	decodeBody(t, rr, &activity)
	if len(activity) != 1 || activity[0].Source != "board" || activity[0].Count != 2 {
		t.Errorf("activity = %+v", activity)
	}
}

func TestCurves(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)

	rr := serve(h, authReq(http.MethodGet, "/curves", "", testToken))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("empty curves body = %s, want []", rr.Body.String())
	}

	if _, err := store.UpsertCurve("board", "kubernetes", 5); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rr = serve(h, authReq(http.MethodGet, "/curves?category=board", "", testToken))
	var curves []storage.DifficultyCurve
	decodeBody(t, rr, &curves)
	if len(curves) != 1 || curves[0].Score != 5 {
		t.Errorf("curves = %+v", curves)
	}
}

func TestGear(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, nil)

	rr := serve(h, authReq(http.MethodPost, "/gear", `{"text":"move a heavy fridge"}`, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp gearResponse
	decodeBody(t, rr, &resp)
	if len(resp.Suggestions) == 0 || resp.Suggestions[0] != "dolly" {
		t.Errorf("suggestions = %v, want dolly first", resp.Suggestions)
	}

	rr = serve(h, authReq(http.MethodPost, "/gear", `{"text":"  "}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("blank text: status = %d, want 400", rr.Code)
	}
}

func TestIngest(t *testing.T) {
	h, _ := setupAppHandler(t, testToken, nil)
	if rr := serve(h, authReq(http.MethodPost, "/ingest", "", testToken)); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no scheduler: status = %d, want 503", rr.Code)
	}

	trigger := &mockTrigger{}
	h, _ = setupAppHandler(t, testToken, trigger)

	if rr := serve(h, authReq(http.MethodGet, "/ingest", "", testToken)); rr.Code != http.StatusNotFound {
		t.Errorf("before first run: status = %d, want 404", rr.Code)
	}

	rr := serve(h, authReq(http.MethodPost, "/ingest", "", testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if trigger.triggered != 1 {
		t.Errorf("triggered = %d, want 1", trigger.triggered)
	}

	trigger.last = pipeline.Report{Fetched: 3, Cached: 3}
	trigger.hasLast = true
	rr = serve(h, authReq(http.MethodGet, "/ingest", "", testToken))
	var rep pipeline.Report
	decodeBody(t, rr, &rep)
	if rep.Cached != 3 {
		t.Errorf("last report = %+v", rep)
	}
}

func TestBookmarks(t *testing.T) {
	h, store := setupAppHandler(t, testToken, nil)
	q := seedQuest(t, store, "https://a.test/1", "Fix a fence", "board", 2)

	rr := serve(h, authReq(http.MethodPut, "/users/alice/bookmarks/"+q.ID, "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("add: status = %d; body = %s", rr.Code, rr.Body.String())
	}
	// Adding twice is a no-op.
	if rr := serve(h, authReq(http.MethodPut, "/users/alice/bookmarks/"+q.ID, "", testToken)); rr.Code != http.StatusOK {
		t.Fatalf("re-add: status = %d", rr.Code)
	}

	rr = serve(h, authReq(http.MethodGet, "/users/alice/bookmarks", "", testToken))
	var got []questView
	decodeBody(t, rr, &got)
	if len(got) != 1 || got[0].ID != q.ID {
		t.Fatalf("bookmarks = %+v", got)
	}

	if rr := serve(h, authReq(http.MethodPut, "/users/alice/bookmarks/missing", "", testToken)); rr.Code != http.StatusNotFound {
		t.Errorf("unknown quest: status = %d, want 404", rr.Code)
	}

	if rr := serve(h, authReq(http.MethodDelete, "/users/alice/bookmarks/"+q.ID, "", testToken)); rr.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rr.Code)
	}
	if rr := serve(h, authReq(http.MethodDelete, "/users/alice/bookmarks/"+q.ID, "", testToken)); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rr.Code)
	}
}
