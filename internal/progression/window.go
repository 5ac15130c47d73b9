package progression

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// DefaultWindow is used when a report request names no window.
const DefaultWindow = "30d"

// maxWindowDays caps <n>d / <n>w windows at roughly ten years.
const maxWindowDays = 3660

// Window is a reporting window resolved against a day anchor. To is the end
// of the anchor day (exclusive); From is zero for "all".
type Window struct {
	Expr string
	Days int
	From time.Time
	To   time.Time
}

// ParseWindow resolves expr ("30d", "8w", "all"; empty means DefaultWindow)
// against the UTC day containing now.
func ParseWindow(expr string, now time.Time) (Window, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		expr = DefaultWindow
	}
	now = now.UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	if expr == "all" {
		return Window{Expr: expr, To: to}, nil
	}
	if len(expr) < 2 {
		return Window{}, errors.Wrapf(domain.ErrValidation, "invalid window %q", expr)
	}
	n, err := strconv.Atoi(expr[:len(expr)-1])
	if err != nil || n <= 0 {
		return Window{}, errors.Wrapf(domain.ErrValidation, "invalid window %q", expr)
	}
	switch expr[len(expr)-1] {
	case 'd':
	case 'w':
		n *= 7
	default:
		return Window{}, errors.Wrapf(domain.ErrValidation, "invalid window unit in %q", expr)
	}
	if n > maxWindowDays {
		return Window{}, errors.Wrapf(domain.ErrValidation, "window %q is too large", expr)
	}
	return Window{Expr: expr, Days: n, From: to.AddDate(0, 0, -n), To: to}, nil
}

// Key identifies the window in the cache: the expression plus its anchor day, e.g.
// "30d@2026-10-17".
func (w Window) Key() string {
	return w.Expr + "@" + w.To.AddDate(0, 0, -1).Format(time.DateOnly)
}
