// Session and set HTTP handlers.
//
// Sessions and sets are lock-guarded: reads return lock_stamp and an ETag of
// the form "<id>:<stamp>", and writes must present the stamp they last saw
// (in the body, If-Match, or ?lock_stamp=). Logging a set always requires an
// Idempotency-Key.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

// ListSetsResponse holds the active sets of a session.
type ListSetsResponse struct {
	Sets []services.SetView `json:"sets"`
}

// CreateSession godoc
// @ID          createSession
// @Summary     Start a session
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  false "User ID (demo header)"
// @Param       Idempotency-Key  header  string  false "Idempotency key (required when configured)"
// @Param       body             body    services.SessionInput  true  "Session"
// @Success     201  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     422  {object}  handlers.ErrorResponse "Idempotency key reused with a different body"
// @Router      /sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req services.SessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.sessions.Create(c.Request.Context(), userID(c), req, idem(c))
	if err != nil {
		failErr(c, err)
		return
	}
	writeOutcome(c, out)
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List sessions (paginated)
// @Description Returns a page of the user's sessions, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID      header  string  false "User ID (demo header)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.sessions.ListStats(ctx, uid); err == nil {
		etag := listETag("sessions", uid, count, maxTS)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.sessions.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: items, Pagination: newPagination(page, pageSize, total)})
}

// GetSession godoc
// @ID          getSession
// @Summary     Get a session
// @Tags        Sessions
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Session ID"  format(uuid)
// @Success     200  {object}  domain.Session
// @Header      200  {string}  ETag "\"<id>:<lock_stamp>\""
// @Failure     404  {object}  handlers.ErrorResponse "Session not found"
// @Router      /sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	etag := entityETag(sess.ID, sess.LockStamp)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}
	ok(c, http.StatusOK, sess)
}

// UpdateSession godoc
// @ID          updateSession
// @Summary     Update a session
// @Description Applies the patch if lock_stamp (body or If-Match) is still current.
// @Tags        Sessions
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       If-Match   header  string  false "ETag or lock stamp"
// @Param       id         path    string  true  "Session ID"  format(uuid)
// @Param       body       body    services.SessionPatch  true  "Changes"
// @Success     200  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse "Stale lock stamp"
// @Router      /sessions/{id} [patch]
func (h *Handlers) UpdateSession(c *gin.Context) {
	var req services.SessionPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	stamp, found := lockStamp(c, req.LockStamp)
	if !found {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "lock_stamp or If-Match required")
		return
	}
	req.LockStamp = stamp

	sess, err := h.sessions.Update(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("ETag", entityETag(sess.ID, sess.LockStamp))
	ok(c, http.StatusOK, sess)
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session
// @Description Moves the session and its active sets to the terminal deleted state.
// @Tags        Sessions
// @Param       X-User-ID   header  string  false "User ID (demo header)"
// @Param       If-Match    header  string  false "ETag or lock stamp"
// @Param       id          path    string  true  "Session ID"  format(uuid)
// @Param       lock_stamp  query   int     false "Lock stamp (alternative to If-Match)"
// @Success     204  {string}  string "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse "Stale lock stamp"
// @Router      /sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	stamp, found := lockStamp(c, 0)
	if !found {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "lock_stamp or If-Match required")
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), userID(c), c.Param("id"), stamp); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// CreateSet godoc
// @ID          createSet
// @Summary     Log a set
// @Description Logs a set against the exercise's current version. Idempotency-Key is required; a retry with the same key and body returns the original response.
// @Tags        Sets
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  false "User ID (demo header)"
// @Param       Idempotency-Key  header  string  true  "Idempotency key"
// @Param       id               path    string  true  "Session ID"  format(uuid)
// @Param       body             body    services.SetInput  true  "Set"
// @Success     201  {object}  services.SetView
// @Header      201  {string}  Idempotency-Replayed  "true when served from the idempotency ledger"
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed or key missing"
// @Failure     404  {object}  handlers.ErrorResponse "Session or exercise not found"
// @Failure     409  {object}  handlers.ErrorResponse "In flight or position taken"
// @Failure     422  {object}  handlers.ErrorResponse "Idempotency key reused with a different body"
// @Router      /sessions/{id}/sets [post]
func (h *Handlers) CreateSet(c *gin.Context) {
	var req services.SetInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.sets.Create(c.Request.Context(), userID(c), c.Param("id"), req, idem(c))
	if err != nil {
		failErr(c, err)
		return
	}
	writeOutcome(c, out)
}

// ListSets godoc
// @ID          listSets
// @Summary     List a session's sets
// @Description Returns active sets ordered by exercise and set index, each with its pinned exercise definition.
// @Tags        Sets
// @Produce     json
// @Param       X-User-ID      header  string  false "User ID (demo header)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Session ID"  format(uuid)
// @Success     200  {object}  handlers.ListSetsResponse
// @Success     304  {string}  string "Not Modified"
// @Failure     404  {object}  handlers.ErrorResponse "Session not found"
// @Router      /sessions/{id}/sets [get]
func (h *Handlers) ListSets(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	sessionID := c.Param("id")

	if count, maxTS, err := h.sets.ListStats(ctx, uid, sessionID); err == nil {
		etag := listETag("sets", sessionID, count, maxTS)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	sets, err := h.sets.List(ctx, uid, sessionID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSetsResponse{Sets: sets})
}

// GetSet godoc
// @ID          getSet
// @Summary     Get a set
// @Tags        Sets
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       id         path    string  true  "Set ID"  format(uuid)
// @Success     200  {object}  services.SetView
// @Header      200  {string}  ETag "\"<id>:<lock_stamp>\""
// @Failure     404  {object}  handlers.ErrorResponse "Set not found"
// @Router      /sets/{id} [get]
func (h *Handlers) GetSet(c *gin.Context) {
	set, err := h.sets.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("ETag", entityETag(set.ID, set.LockStamp))
	ok(c, http.StatusOK, set)
}

// UpdateSet godoc
// @ID          updateSet
// @Summary     Update a set
// @Tags        Sets
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  false "User ID (demo header)"
// @Param       If-Match   header  string  false "ETag or lock stamp"
// @Param       id         path    string  true  "Set ID"  format(uuid)
// @Param       body       body    services.SetPatch  true  "Changes"
// @Success     200  {object}  services.SetView
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse "Set not found"
// @Failure     409  {object}  handlers.ErrorResponse "Stale lock stamp"
// @Router      /sets/{id} [patch]
func (h *Handlers) UpdateSet(c *gin.Context) {
	var req services.SetPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	stamp, found := lockStamp(c, req.LockStamp)
	if !found {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "lock_stamp or If-Match required")
		return
	}
	req.LockStamp = stamp

	set, err := h.sets.Update(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("ETag", entityETag(set.ID, set.LockStamp))
	ok(c, http.StatusOK, set)
}

// DeleteSet godoc
// @ID          deleteSet
// @Summary     Delete a set
// @Tags        Sets
// @Param       X-User-ID   header  string  false "User ID (demo header)"
// @Param       If-Match    header  string  false "ETag or lock stamp"
// @Param       id          path    string  true  "Set ID"  format(uuid)
// @Param       lock_stamp  query   int     false "Lock stamp (alternative to If-Match)"
// @Success     204  {string}  string "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Set not found"
// @Failure     409  {object}  handlers.ErrorResponse "Stale lock stamp"
// @Router      /sets/{id} [delete]
func (h *Handlers) DeleteSet(c *gin.Context) {
	stamp, found := lockStamp(c, 0)
	if !found {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "lock_stamp or If-Match required")
		return
	}
	if err := h.sets.Delete(c.Request.Context(), userID(c), c.Param("id"), stamp); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
