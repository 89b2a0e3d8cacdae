package storage

import (
	"testing"
	"time"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func openTestStoreWithClock(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	s := openTestStore(t)
	clk := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	s.SetClock(clk)
	return s, clk
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) != 3 {
		t.Fatalf("applied %d migrations, want 3", len(versions))
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the lookup indexes are created by the migrations.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_quests_source_last_seen", "idx_quests_last_seen", "idx_quests_approval_state", "idx_difficulty_curves_created", "idx_bookmarks_quest"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestSaveAndLoadModel(t *testing.T) {
	s, clk := openTestStoreWithClock(t)

	if _, err := s.LoadModel("tfidf"); err != ErrNotFound {
		t.Fatalf("LoadModel on empty store: err = %v, want ErrNotFound", err)
	}

	if err := s.SaveModel(ModelRecord{Name: "tfidf", Payload: []byte(`{"a":1}`), DocCount: 4}); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}
	clk.Advance(time.Hour)
	if err := s.SaveModel(ModelRecord{Name: "tfidf", Payload: []byte(`{"a":2}`), DocCount: 9}); err != nil {
		t.Fatalf("SaveModel overwrite: %v", err)
	}

	m, err := s.LoadModel("tfidf")
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	if string(m.Payload) != `{"a":2}` {
		t.Errorf("Payload = %s, want {\"a\":2}", m.Payload)
	}
	if m.DocCount != 9 {
		t.Errorf("DocCount = %d, want 9", m.DocCount)
	}
	if !m.FittedAt.Equal(clk.Now()) {
		t.Errorf("FittedAt = %v, want %v", m.FittedAt, clk.Now())
	}
}

func TestPendingMigrations(t *testing.T) {
	ms, err := pendingMigrations()
	if err != nil {
		t.Fatalf("pendingMigrations: %v", err)
	}
	want := []int{1, 2, 3}
	if len(ms) != len(want) {
		t.Fatalf("got %d migrations, want %d", len(ms), len(want))
	}
	for i, m := range ms {
		if m.version != want[i] {
			t.Errorf("migration %d: version = %d, want %d", i, m.version, want[i])
		}
	}

	if _, err := parseMigrationVersion("initial.sql"); err == nil {
		t.Error("expected error for a file name without a version prefix")
	}
}
