// Exercise HTTP handlers.
//
// This file exposes REST endpoints for the versioned exercise catalog:
//   - POST   /exercises                      (create, version 1)
//   - GET    /exercises                      (list or search, paginated)
//   - GET    /exercises/{id}                 (current version)
//   - PUT    /exercises/{id}                 (append a version)
//   - GET    /exercises/{id}/versions        (version chain)
//   - GET    /exercise-versions/{versionId}  (historical payload)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// ListExercisesResponse wraps a page of exercises and pagination information.
type ListExercisesResponse struct {
	Exercises  []services.ExerciseView `json:"exercises"`
	Pagination Pagination              `json:"pagination"`
}

// ListVersionsResponse is an exercise's version chain, oldest first.
type ListVersionsResponse struct {
	Versions []domain.ExerciseVersion `json:"versions"`
}

// CreateExercise godoc
// @ID          createExercise
// @Summary     Create an exercise
// @Description Creates a catalog exercise with its first version. The slug is derived from the name when omitted.
// @Tags        Exercises
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key (required when configured)"
// @Param       body             body    services.ExerciseInput  true  "Exercise definition"
//
// @Success     201  {object}  services.ExerciseView
// @Header      201  {string}  Idempotency-Replayed  "true when served from the idempotency ledger"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     409  {object}  handlers.ErrorResponse  "Request with this key in flight"
// @Failure     422  {object}  handlers.ErrorResponse  "Idempotency key reused with a different body"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /exercises [post]
func (h *Handlers) CreateExercise(c *gin.Context) {
	var req services.ExerciseInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.exercises.Create(c.Request.Context(), userID(c), req, idem(c))
	if err != nil {
		failErr(c, err)
		return
	}
	writeOutcome(c, out)
}

// ListExercises godoc
// @ID          listExercises
// @Summary     List or search exercises
// @Description Returns current exercise definitions ordered by slug, or ranked by similarity when q is set.
// @Tags        Exercises
// @Produce     json
//
// @Param       q          query  string  false "Search text"     example(bench)
// @Param       page       query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListExercisesResponse
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /exercises [get]
func (h *Handlers) ListExercises(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.exercises.ListPage(c.Request.Context(), strings.TrimSpace(c.Query("q")), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListExercisesResponse{Exercises: items, Pagination: newPagination(page, pageSize, total)})
}

// GetExercise godoc
// @ID          getExercise
// @Summary     Get an exercise
// @Description Returns the exercise with its current definition.
// @Tags        Exercises
// @Produce     json
// @Param       id   path      string  true  "Exercise ID"  format(uuid)
// @Success     200  {object}  services.ExerciseView
// @Failure     404  {object}  handlers.ErrorResponse "Exercise not found"
// @Router      /exercises/{id} [get]
func (h *Handlers) GetExercise(c *gin.Context) {
	ex, err := h.exercises.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ex)
}

// UpdateExercise godoc
// @ID          updateExercise
// @Summary     Append an exercise version
// @Description Stores a new definition as the next version. Sets logged earlier keep their version. expected_version guards against lost updates.
// @Tags        Exercises
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"
// @Param       Idempotency-Key  header  string  false "Idempotency key (required when configured)"
// @Param       id               path    string  true  "Exercise ID"  format(uuid)
// @Param       body             body    services.ExerciseUpdate  true  "New definition"
//
// @Success     200  {object}  services.ExerciseView
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     404  {object}  handlers.ErrorResponse "Exercise not found"
// @Failure     409  {object}  handlers.ErrorResponse "Version moved on (stale_lock)"
// @Failure     422  {object}  handlers.ErrorResponse "Idempotency key reused with a different body"
// @Router      /exercises/{id} [put]
func (h *Handlers) UpdateExercise(c *gin.Context) {
	var req services.ExerciseUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.exercises.Update(c.Request.Context(), userID(c), c.Param("id"), req, idem(c))
	if err != nil {
		failErr(c, err)
		return
	}
	writeOutcome(c, out)
}

// ListExerciseVersions godoc
// @ID          listExerciseVersions
// @Summary     List exercise versions
// @Tags        Exercises
// @Produce     json
// @Param       id   path      string  true  "Exercise ID"  format(uuid)
// @Success     200  {object}  handlers.ListVersionsResponse
// @Failure     404  {object}  handlers.ErrorResponse "Exercise not found"
// @Router      /exercises/{id}/versions [get]
func (h *Handlers) ListExerciseVersions(c *gin.Context) {
	vs, err := h.exercises.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListVersionsResponse{Versions: vs})
}

// GetExerciseVersion godoc
// @ID          getExerciseVersion
// @Summary     Get one exercise version
// @Tags        Exercises
// @Produce     json
// @Param       versionId  path      string  true  "Version ID"  format(uuid)
// @Success     200        {object}  domain.ExerciseVersion
// @Failure     404        {object}  handlers.ErrorResponse "Version not found"
// @Router      /exercise-versions/{versionId} [get]
func (h *Handlers) GetExerciseVersion(c *gin.Context) {
	v, err := h.exercises.Version(c.Request.Context(), c.Param("versionId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}
