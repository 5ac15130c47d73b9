package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

func TestParseWindow(t *testing.T) {
	now := time.Date(2026, 10, 17, 15, 4, 5, 0, time.UTC)
	end := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		in   string
		days int
		key  string
	}{
		{"", 30, "30d@2026-10-17"},
		{"7d", 7, "7d@2026-10-17"},
		{"4W", 28, "4w@2026-10-17"},
		{" all ", 0, "all@2026-10-17"},
	}
	for _, tc := range cases {
		w, err := ParseWindow(tc.in, now)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.days, w.Days, tc.in)
		require.Equal(t, tc.key, w.Key(), tc.in)
		require.True(t, w.To.Equal(end), tc.in)
		if tc.days == 0 {
			require.True(t, w.From.IsZero())
		} else {
			require.True(t, w.From.Equal(end.AddDate(0, 0, -tc.days)), tc.in)
		}
	}
}

func TestParseWindow_AnchorsToUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	// 2026-10-18 02:00 at +10 is still the 17th in UTC.
	w, err := ParseWindow("30d", time.Date(2026, 10, 18, 2, 0, 0, 0, loc))
	require.NoError(t, err)
	require.Equal(t, "30d@2026-10-17", w.Key())
}

func TestParseWindow_Invalid(t *testing.T) {
	for _, in := range []string{"d", "0d", "-3d", "10y", "abc", "99999d"} {
		_, err := ParseWindow(in, time.Now())
		require.ErrorIs(t, err, domain.ErrValidation, in)
	}
}
