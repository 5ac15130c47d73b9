package repo

import (
	"context"
	"testing"
	"time"
)

func TestSessionsStats_EmptyUser(t *testing.T) {
	db := newTestDB(t)
	n, ts, err := SessionsStats(context.Background(), db, "nobody")
	if err != nil {
		t.Fatalf("SessionsStats: %v", err)
	}
	if n != 0 || ts != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", n, ts)
	}
}

func TestSessionsStats_CountsActive_TracksDeletes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seedSession(t, db, "s1", "u1", base)
	s2 := seedSession(t, db, "s2", "u1", base.Add(time.Minute))
	seedSession(t, db, "other", "u2", base.Add(time.Hour))

	n, ts, err := SessionsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("SessionsStats: %v", err)
	}
	if n != 2 || ts == nil || !ts.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected stats: n=%d ts=%v", n, ts)
	}

	// A delete lowers the count and moves the timestamp.
	later := base.Add(2 * time.Minute)
	if err := db.Model(s2).Updates(map[string]any{"status": "deleted", "updated_at": later}).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}
	n, ts, err = SessionsStats(ctx, db, "u1")
	if err != nil {
		t.Fatalf("SessionsStats: %v", err)
	}
	if n != 1 || ts == nil || !ts.Equal(later) {
		t.Fatalf("after delete: n=%d ts=%v", n, ts)
	}
}

func TestSetsStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exID, verID := seedExercise(t, db, "e1", "bench")
	seedSession(t, db, "s1", "u1", base)

	n, ts, err := SetsStats(ctx, db, "s1")
	if err != nil || n != 0 || ts != nil {
		t.Fatalf("empty session: n=%d ts=%v err=%v", n, ts, err)
	}

	seedSet(t, db, "a", "s1", exID, verID, 1, base.Add(time.Second))
	seedSet(t, db, "b", "s1", exID, verID, 2, base.Add(3*time.Second))

	n, ts, err = SetsStats(ctx, db, "s1")
	if err != nil {
		t.Fatalf("SetsStats: %v", err)
	}
	if n != 2 || ts == nil || !ts.Equal(base.Add(3*time.Second)) {
		t.Fatalf("unexpected stats: n=%d ts=%v", n, ts)
	}
}
