package storage

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBookmarks_AddListRemove(t *testing.T) {
	s, clk := openTestStoreWithClock(t)
	mustCache(t, s, testQuest("https://example.com/a", "A", "reddit"))
	mustCache(t, s, testQuest("https://example.com/b", "B", "reddit"))
	a, _ := s.GetQuestByURL("https://example.com/a")
	b, _ := s.GetQuestByURL("https://example.com/b")

	if err := s.AddBookmark("alice", a.ID); err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	clk.Advance(time.Minute)
	if err := s.AddBookmark("alice", b.ID); err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	// Duplicate is a no-op.
	if err := s.AddBookmark("alice", b.ID); err != nil {
		t.Fatalf("duplicate AddBookmark: %v", err)
	}

	got, err := s.Bookmarks("alice")
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != a.ID {
		t.Fatalf("Bookmarks = %v, want [B A]", got)
	}

	if err := s.RemoveBookmark("alice", a.ID); err != nil {
		t.Fatalf("RemoveBookmark: %v", err)
	}
	if err := s.RemoveBookmark("alice", a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second RemoveBookmark: err = %v, want ErrNotFound", err)
	}

	other, _ := s.Bookmarks("bob")
	if len(other) != 0 {
		t.Errorf("bob has %d bookmarks, want 0", len(other))
	}
}

func TestAddBookmark_Errors(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddBookmark("alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown quest: err = %v, want ErrNotFound", err)
	}
	var ve *ValidationError
	if err := s.AddBookmark("", "q"); !errors.As(err, &ve) || ve.Field != "user_id" {
		t.Errorf("empty user: err = %v, want ValidationError(user_id)", err)
	}
}

// TestAddBookmark_Concurrent hammers the same bookmark from many goroutines;
// the write path must serialize them into a single row.
func TestAddBookmark_Concurrent(t *testing.T) {
	s := openTestStore(t)
	mustCache(t, s, testQuest("https://example.com/a", "A", "reddit"))
	a, _ := s.GetQuestByURL("https://example.com/a")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.AddBookmark("alice", a.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("AddBookmark: %v", err)
		}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM bookmarks`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("bookmark rows = %d, want 1", n)
	}
}

func TestBookmarks_SkipEvictedQuests(t *testing.T) {
	s, clk := openTestStoreWithClock(t)
	mustCache(t, s, testQuest("https://example.com/a", "A", "reddit"))
	a, _ := s.GetQuestByURL("https://example.com/a")
	s.AddBookmark("alice", a.ID)

	clk.Advance(EvictionWindow + time.Hour)
	s.EvictStale()

	got, err := s.Bookmarks("alice")
	if err != nil {
		t.Fatalf("Bookmarks: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bookmarks, want 0 after eviction", len(got))
	}
}
