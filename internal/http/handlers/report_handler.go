// Read-model HTTP handlers: progression reports and audit trails.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
)

// HeaderCache reports whether a progression report came from the cache.
const HeaderCache = "X-Cache"

// AuditTrailResponse is an entity's audit trail in creation order.
type AuditTrailResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// GetProgression godoc
// @ID          getProgression
// @Summary     Progression report
// @Description Aggregates the user's active sets of one exercise over a window anchored to the current UTC day.
// @Tags        Progression
// @Produce     json
// @Param       X-User-ID   header  string  false "User ID (demo header)"
// @Param       exerciseId  path    string  true  "Exercise ID"  format(uuid)
// @Param       window      query   string  false "<n>d, <n>w or all"  default(30d)
// @Success     200  {object}  progression.Aggregate
// @Header      200  {string}  X-Cache "hit or miss"
// @Failure     400  {object}  handlers.ErrorResponse "Invalid window"
// @Failure     404  {object}  handlers.ErrorResponse "Exercise not found"
// @Router      /progression/{exerciseId} [get]
func (h *Handlers) GetProgression(c *gin.Context) {
	window := c.DefaultQuery("window", progression.DefaultWindow)
	rep, err := h.reports.Report(c.Request.Context(), userID(c), c.Param("exerciseId"), window)
	if err != nil {
		failErr(c, err)
		return
	}
	if rep.Hit {
		c.Header(HeaderCache, "hit")
	} else {
		c.Header(HeaderCache, "miss")
	}
	ok(c, http.StatusOK, rep.Aggregate)
}

// GetAuditTrail godoc
// @ID          getAuditTrail
// @Summary     Audit trail of an entity
// @Description Returns every recorded mutation of the entity in creation order. Sessions and sets are visible to their owner only, deleted ones included.
// @Tags        Audit
// @Produce     json
// @Param       X-User-ID    header  string  false "User ID (demo header)"
// @Param       entity_type  query   string  true  "exercise, session or set"
// @Param       entity_id    query   string  true  "Entity ID"
// @Success     200  {object}  handlers.AuditTrailResponse
// @Failure     400  {object}  handlers.ErrorResponse "Missing or unknown entity"
// @Failure     404  {object}  handlers.ErrorResponse "Entity not found"
// @Router      /audit [get]
func (h *Handlers) GetAuditTrail(c *gin.Context) {
	typ := strings.TrimSpace(c.Query("entity_type"))
	id := strings.TrimSpace(c.Query("entity_id"))
	if typ == "" || id == "" {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "entity_type and entity_id are required")
		return
	}
	entries, err := h.audits.Trail(c.Request.Context(), userID(c), typ, id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, AuditTrailResponse{Entries: entries})
}
