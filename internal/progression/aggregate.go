package progression

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// Point is the per-day summary of one exercise.
type Point struct {
	Date        string `json:"date"`
	Sets        int    `json:"sets"`
	Reps        int    `json:"reps"`
	VolumeKg    string `json:"volume_kg"`
	TopWeightKg string `json:"top_weight_kg"`
	EstOneRMKg  string `json:"est_one_rm_kg"`
}

// Aggregate is a progression report for one (user, exercise, window).
// Decimal quantities are fixed two-place strings.
type Aggregate struct {
	ExerciseID    string     `json:"exercise_id"`
	Window        string     `json:"window"`
	From          *time.Time `json:"from,omitempty"`
	To            time.Time  `json:"to"`
	Generation    int64      `json:"generation"`
	Sets          int        `json:"sets"`
	Sessions      int        `json:"sessions"`
	TotalReps     int        `json:"total_reps"`
	TotalVolumeKg string     `json:"total_volume_kg"`
	MaxWeightKg   string     `json:"max_weight_kg"`
	BestOneRMKg   string     `json:"best_est_one_rm_kg"`
	AvgRPE        *string    `json:"avg_rpe,omitempty"`
	TrendKgPerDay string     `json:"trend_kg_per_day"`
	Points        []Point    `json:"points"`
}

var thirty = decimal.NewFromInt(30)

// EstimateOneRM is the Epley estimate weight * (1 + reps/30).
func EstimateOneRM(weight decimal.Decimal, reps int) decimal.Decimal {
	if reps <= 0 {
		return decimal.Zero
	}
	return weight.Add(weight.Mul(decimal.NewFromInt(int64(reps))).Div(thirty))
}

type day struct {
	date   time.Time
	sets   int
	reps   int
	volume decimal.Decimal
	top    decimal.Decimal
	orm    decimal.Decimal
}

// Compute builds the aggregate of sets over w. It is pure: the same sets in
// any order give the same output.
func Compute(exerciseID string, w Window, sets []domain.Set) Aggregate {
	agg := Aggregate{
		ExerciseID: exerciseID,
		Window:     w.Key(),
		To:         w.To,
		Points:     []Point{},
	}
	if !w.From.IsZero() {
		from := w.From
		agg.From = &from
	}

	sessions := map[string]struct{}{}
	days := map[string]*day{}
	volume, maxWeight, best := decimal.Zero, decimal.Zero, decimal.Zero
	rpeSum, rpeN := decimal.Zero, 0

	for _, s := range sets {
		if s.Status != domain.StatusActive {
			continue
		}
		agg.Sets++
		agg.TotalReps += s.Reps
		sessions[s.SessionID] = struct{}{}

		v := s.WeightKg.Mul(decimal.NewFromInt(int64(s.Reps)))
		orm := EstimateOneRM(s.WeightKg, s.Reps)
		volume = volume.Add(v)
		if s.WeightKg.GreaterThan(maxWeight) {
			maxWeight = s.WeightKg
		}
		if orm.GreaterThan(best) {
			best = orm
		}
		if s.RPE.Valid {
			rpeSum = rpeSum.Add(s.RPE.Decimal)
			rpeN++
		}

		pa := s.PerformedAt.UTC()
		date := time.Date(pa.Year(), pa.Month(), pa.Day(), 0, 0, 0, 0, time.UTC)
		k := date.Format(time.DateOnly)
		d, ok := days[k]
		if !ok {
			d = &day{date: date}
			days[k] = d
		}
		d.sets++
		d.reps += s.Reps
		d.volume = d.volume.Add(v)
		if s.WeightKg.GreaterThan(d.top) {
			d.top = s.WeightKg
		}
		if orm.GreaterThan(d.orm) {
			d.orm = orm
		}
	}

	agg.Sessions = len(sessions)
	agg.TotalVolumeKg = volume.StringFixed(2)
	agg.MaxWeightKg = maxWeight.StringFixed(2)
	agg.BestOneRMKg = best.StringFixed(2)
	if rpeN > 0 {
		avg := rpeSum.Div(decimal.NewFromInt(int64(rpeN))).StringFixed(2)
		agg.AvgRPE = &avg
	}

	ordered := make([]*day, 0, len(days))
	for _, d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].date.Before(ordered[j].date) })
	for _, d := range ordered {
		agg.Points = append(agg.Points, Point{
			Date:        d.date.Format(time.DateOnly),
			Sets:        d.sets,
			Reps:        d.reps,
			VolumeKg:    d.volume.StringFixed(2),
			TopWeightKg: d.top.StringFixed(2),
			EstOneRMKg:  d.orm.StringFixed(2),
		})
	}
	agg.TrendKgPerDay = trend(ordered).StringFixed(2)
	return agg
}

// trend is the least-squares slope of daily top weight against days elapsed
// since the first point. Fewer than two points have no trend.
func trend(days []*day) decimal.Decimal {
	if len(days) < 2 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(len(days)))
	var sx, sy, sxy, sxx decimal.Decimal
	first := days[0].date
	for _, d := range days {
		x := decimal.NewFromInt(int64(d.date.Sub(first) / (24 * time.Hour)))
		sx = sx.Add(x)
		sy = sy.Add(d.top)
		sxy = sxy.Add(x.Mul(d.top))
		sxx = sxx.Add(x.Mul(x))
	}
	den := n.Mul(sxx).Sub(sx.Mul(sx))
	if den.IsZero() {
		return decimal.Zero
	}
	return n.Mul(sxy).Sub(sx.Mul(sy)).Div(den)
}
