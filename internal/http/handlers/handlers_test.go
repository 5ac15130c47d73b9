package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/http/middleware"
	"github.com/tbourn/go-setlogs-backend/internal/ledger"
	"github.com/tbourn/go-setlogs-backend/internal/locking"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
	"github.com/tbourn/go-setlogs-backend/internal/repo/repotest"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// ---------- test server ----------

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := repotest.NewDB(t)
	l := ledger.New(db, ledger.Config{Lease: 10 * time.Second, WaitTimeout: 2 * time.Second, PollInterval: 10 * time.Millisecond})
	core := services.NewCore(db, l, locking.New(db, 5*time.Second), progression.NewCache(db, progression.NewSQLStore(db), time.Second), nil)
	h := New(
		services.NewExerciseService(core, false),
		services.NewSessionService(core, false),
		services.NewSetService(core),
		services.NewProgressionService(core),
		services.NewAuditService(core),
	)

	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/exercises", h.CreateExercise)
	r.GET("/exercises", h.ListExercises)
	r.GET("/exercises/:id", h.GetExercise)
	r.PUT("/exercises/:id", h.UpdateExercise)
	r.GET("/exercises/:id/versions", h.ListExerciseVersions)
	r.GET("/exercise-versions/:versionId", h.GetExerciseVersion)
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.PATCH("/sessions/:id", h.UpdateSession)
	r.DELETE("/sessions/:id", h.DeleteSession)
	r.POST("/sessions/:id/sets", h.CreateSet)
	r.GET("/sessions/:id/sets", h.ListSets)
	r.GET("/sets/:id", h.GetSet)
	r.PATCH("/sets/:id", h.UpdateSet)
	r.DELETE("/sets/:id", h.DeleteSet)
	r.GET("/progression/:exerciseId", h.GetProgression)
	r.GET("/audit", h.GetAuditTrail)
	return r
}

func do(r *gin.Engine, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("json: %v (body=%s)", err, w.Body.String())
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decode(t, w, &er)
	return er.Code
}

func mustCreateExercise(t *testing.T, r *gin.Engine, name string) services.ExerciseView {
	t.Helper()
	w := do(r, http.MethodPost, "/exercises", `{"name":"`+name+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create exercise: %d %s", w.Code, w.Body.String())
	}
	var ex services.ExerciseView
	decode(t, w, &ex)
	return ex
}

func mustCreateSession(t *testing.T, r *gin.Engine) domain.Session {
	t.Helper()
	started := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	w := do(r, http.MethodPost, "/sessions", `{"started_at":"`+started+`"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	var s domain.Session
	decode(t, w, &s)
	return s
}

// ---------- tests ----------

func TestCreateSet_ReplayReturnsIdenticalBytes(t *testing.T) {
	r := newTestServer(t)
	ex := mustCreateExercise(t, r, "Bench Press")
	sess := mustCreateSession(t, r)
	path := "/sessions/" + sess.ID + "/sets"
	body := `{"exercise_id":"` + ex.ID + `","reps":5,"weight_kg":"80"}`

	w1 := do(r, http.MethodPost, path, body, middleware.HeaderIdempotencyKey, "k1")
	if w1.Code != http.StatusCreated {
		t.Fatalf("first: %d %s", w1.Code, w1.Body.String())
	}
	if w1.Header().Get(middleware.HeaderIdempotencyReplayed) != "" {
		t.Fatalf("first response must not be marked replayed")
	}

	w2 := do(r, http.MethodPost, path, body, middleware.HeaderIdempotencyKey, "k1")
	if w2.Code != http.StatusCreated {
		t.Fatalf("replay: %d %s", w2.Code, w2.Body.String())
	}
	if w2.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay header missing")
	}
	if !bytes.Equal(w1.Body.Bytes(), w2.Body.Bytes()) {
		t.Fatalf("replay body differs:\n%s\n%s", w1.Body.String(), w2.Body.String())
	}

	var list ListSetsResponse
	decode(t, do(r, http.MethodGet, path, ""), &list)
	if len(list.Sets) != 1 {
		t.Fatalf("expected one set, got %d", len(list.Sets))
	}

	// Same key, different body.
	w3 := do(r, http.MethodPost, path, `{"exercise_id":"`+ex.ID+`","reps":6,"weight_kg":"80"}`, middleware.HeaderIdempotencyKey, "k1")
	if w3.Code != http.StatusUnprocessableEntity || errCode(t, w3) != ErrCodeIdempotencyConflict {
		t.Fatalf("conflict: %d %s", w3.Code, w3.Body.String())
	}
}

func TestCreateSet_KeyRequired(t *testing.T) {
	r := newTestServer(t)
	ex := mustCreateExercise(t, r, "Squat")
	sess := mustCreateSession(t, r)

	w := do(r, http.MethodPost, "/sessions/"+sess.ID+"/sets", `{"exercise_id":"`+ex.ID+`","reps":5,"weight_kg":"100"}`)
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeValidation {
		t.Fatalf("expected 400 validation_failed, got %d %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/sessions/"+sess.ID+"/sets", `{"exercise_id":`, middleware.HeaderIdempotencyKey, "k2")
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("expected 400 bad_request for malformed JSON, got %d", w.Code)
	}
}

func TestSetPinsVersionAcrossExerciseUpdate(t *testing.T) {
	r := newTestServer(t)
	ex := mustCreateExercise(t, r, "Bench Press")
	sess := mustCreateSession(t, r)
	w := do(r, http.MethodPost, "/sessions/"+sess.ID+"/sets", `{"exercise_id":"`+ex.ID+`","reps":5,"weight_kg":"80"}`, middleware.HeaderIdempotencyKey, "pin")
	if w.Code != http.StatusCreated {
		t.Fatalf("create set: %d %s", w.Code, w.Body.String())
	}
	var set services.SetView
	decode(t, w, &set)

	w = do(r, http.MethodPut, "/exercises/"+ex.ID, `{"name":"Bench Press","default_rep_range":{"min":6,"max":10},"expected_version":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update exercise: %d %s", w.Code, w.Body.String())
	}
	var v2 services.ExerciseView
	decode(t, w, &v2)
	if v2.Version != 2 || v2.Definition.DefaultRepRange == nil {
		t.Fatalf("unexpected v2: %+v", v2)
	}

	w = do(r, http.MethodPut, "/exercises/"+ex.ID, `{"name":"Bench","expected_version":1}`)
	if w.Code != http.StatusConflict || errCode(t, w) != ErrCodeStaleLock {
		t.Fatalf("expected stale_lock, got %d %s", w.Code, w.Body.String())
	}

	var got services.SetView
	decode(t, do(r, http.MethodGet, "/sets/"+set.ID, ""), &got)
	if got.ExerciseVersion != 1 || bytes.Contains(got.Exercise, []byte("default_rep_range")) {
		t.Fatalf("set must keep version 1: %+v", got)
	}

	var hist ListVersionsResponse
	decode(t, do(r, http.MethodGet, "/exercises/"+ex.ID+"/versions", ""), &hist)
	if len(hist.Versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(hist.Versions))
	}
	w = do(r, http.MethodGet, "/exercise-versions/"+hist.Versions[0].ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get version: %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/exercise-versions/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestSessionLocking_ETagAndIfMatch(t *testing.T) {
	r := newTestServer(t)
	sess := mustCreateSession(t, r)

	w := do(r, http.MethodGet, "/sessions/"+sess.ID, "")
	etag := w.Header().Get("ETag")
	if etag != `"`+sess.ID+`:1"` {
		t.Fatalf("unexpected ETag %q", etag)
	}
	if w := do(r, http.MethodGet, "/sessions/"+sess.ID, "", "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	w = do(r, http.MethodPatch, "/sessions/"+sess.ID, `{"notes":"heavy day"}`, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	var updated domain.Session
	decode(t, w, &updated)
	if updated.LockStamp != 2 || updated.Notes != "heavy day" {
		t.Fatalf("unexpected session: %+v", updated)
	}

	// The old ETag lost.
	w = do(r, http.MethodPatch, "/sessions/"+sess.ID, `{"notes":"late"}`, "If-Match", etag)
	if w.Code != http.StatusConflict || errCode(t, w) != ErrCodeStaleLock {
		t.Fatalf("expected stale_lock, got %d %s", w.Code, w.Body.String())
	}

	if w := do(r, http.MethodPatch, "/sessions/"+sess.ID, `{"notes":"x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without stamp, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/sessions/"+sess.ID+"?lock_stamp=1", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on stale delete, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/sessions/"+sess.ID+"?lock_stamp=2", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/sessions/"+sess.ID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}

	// Other users never see the session, even in the audit log.
	w = do(r, http.MethodGet, "/audit?entity_type=session&entity_id="+sess.ID, "", "X-User-ID", "u2")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign audit trail, got %d", w.Code)
	}
	var trail AuditTrailResponse
	decode(t, do(r, http.MethodGet, "/audit?entity_type=session&entity_id="+sess.ID, ""), &trail)
	if len(trail.Entries) != 3 {
		t.Fatalf("expected create/update/delete, got %d entries", len(trail.Entries))
	}
	for i, want := range []string{domain.MutationCreate, domain.MutationUpdate, domain.MutationDelete} {
		if trail.Entries[i].Kind != want {
			t.Fatalf("entry %d kind=%q want %q", i, trail.Entries[i].Kind, want)
		}
	}
}

func TestListSessions_WeakETag(t *testing.T) {
	r := newTestServer(t)
	mustCreateSession(t, r)
	mustCreateSession(t, r)

	w := do(r, http.MethodGet, "/sessions?page=1&page_size=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	var resp ListSessionsResponse
	decode(t, w, &resp)
	if len(resp.Sessions) != 1 || resp.Pagination.Total != 2 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected page: %+v", resp.Pagination)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	if w := do(r, http.MethodGet, "/sessions", "", "If-None-Match", etag); w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}
	mustCreateSession(t, r)
	if w := do(r, http.MethodGet, "/sessions", "", "If-None-Match", etag); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after change, got %d", w.Code)
	}
}

func TestSetUpdateDelete_IfMatch(t *testing.T) {
	r := newTestServer(t)
	ex := mustCreateExercise(t, r, "Row")
	sess := mustCreateSession(t, r)
	w := do(r, http.MethodPost, "/sessions/"+sess.ID+"/sets", `{"exercise_id":"`+ex.ID+`","reps":8,"weight_kg":"60","rpe":"7"}`, middleware.HeaderIdempotencyKey, "row-1")
	var set services.SetView
	decode(t, w, &set)

	w = do(r, http.MethodPatch, "/sets/"+set.ID, `{"reps":10}`, "If-Match", strconv.FormatInt(set.LockStamp, 10))
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") != `"`+set.ID+`:2"` {
		t.Fatalf("unexpected ETag %q", w.Header().Get("ETag"))
	}
	if w := do(r, http.MethodPatch, "/sets/"+set.ID, `{"reps":0,"lock_stamp":2}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reps=0, got %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/sets/"+set.ID, "", "If-Match", `"`+set.ID+`:2"`); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/sets/"+set.ID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestProgression_CacheHeaderAndInvalidation(t *testing.T) {
	r := newTestServer(t)
	ex := mustCreateExercise(t, r, "Squat")
	sess := mustCreateSession(t, r)
	path := "/sessions/" + sess.ID + "/sets"
	do(r, http.MethodPost, path, `{"exercise_id":"`+ex.ID+`","reps":5,"weight_kg":"100"}`, middleware.HeaderIdempotencyKey, "sq-1")

	w := do(r, http.MethodGet, "/progression/"+ex.ID, "")
	if w.Code != http.StatusOK || w.Header().Get(HeaderCache) != "miss" {
		t.Fatalf("first read: %d X-Cache=%q", w.Code, w.Header().Get(HeaderCache))
	}
	var first progression.Aggregate
	decode(t, w, &first)

	w = do(r, http.MethodGet, "/progression/"+ex.ID, "")
	if w.Header().Get(HeaderCache) != "hit" {
		t.Fatalf("second read should hit, got %q", w.Header().Get(HeaderCache))
	}

	do(r, http.MethodPost, path, `{"exercise_id":"`+ex.ID+`","reps":3,"weight_kg":"110"}`, middleware.HeaderIdempotencyKey, "sq-2")
	w = do(r, http.MethodGet, "/progression/"+ex.ID+"?window=30d", "")
	if w.Header().Get(HeaderCache) != "miss" {
		t.Fatalf("read after write must miss, got %q", w.Header().Get(HeaderCache))
	}
	var second progression.Aggregate
	decode(t, w, &second)
	if second.Sets != 2 || second.TotalVolumeKg == first.TotalVolumeKg {
		t.Fatalf("report did not reflect new set: %+v", second)
	}

	if w := do(r, http.MethodGet, "/progression/"+ex.ID+"?window=3x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad window, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/progression/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListExercises_Search(t *testing.T) {
	r := newTestServer(t)
	for _, n := range []string{"Bench Press", "Back Squat", "Incline Bench Press"} {
		mustCreateExercise(t, r, n)
	}
	var resp ListExercisesResponse
	decode(t, do(r, http.MethodGet, "/exercises?q=bench", ""), &resp)
	if resp.Pagination.Total != 2 || resp.Exercises[0].Slug != "bench-press" {
		t.Fatalf("unexpected search result: %+v", resp)
	}
	decode(t, do(r, http.MethodGet, "/exercises", ""), &resp)
	if resp.Pagination.Total != 3 {
		t.Fatalf("expected 3 exercises, got %d", resp.Pagination.Total)
	}
	if w := do(r, http.MethodPost, "/exercises", `{"name":"bench press"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for taken slug, got %d", w.Code)
	}
}

func TestAuditTrail_Validation(t *testing.T) {
	r := newTestServer(t)
	if w := do(r, http.MethodGet, "/audit?entity_type=session", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/audit?entity_type=program&entity_id=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", w.Code)
	}
}

func TestStampFromIfMatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]struct {
		header string
		want   int64
		ok     bool
	}{
		"etag":      {`"abc:7"`, 7, true},
		"weak":      {`W/"abc:3"`, 3, true},
		"bare":      {"12", 12, true},
		"empty":     {"", 0, false},
		"garbage":   {`"abc:x"`, 0, false},
		"non-pos":   {"0", 0, false},
		"uuid-etag": {`"141add05-4415-4938-b5a1-17e0d3171aff:2"`, 2, true},
	}
	for name, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodPatch, "/", nil)
		if tc.header != "" {
			c.Request.Header.Set("If-Match", tc.header)
		}
		got, ok := stampFromIfMatch(c)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("%s: got (%d,%v) want (%d,%v)", name, got, ok, tc.want, tc.ok)
		}
	}
}
