package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/observability"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// Reap deletes records past the retention window. Completed records are
// removed once they are older than Retention. Pending records are removed
// only when their lease expired more than Retention ago, so a placeholder
// whose mutation may still be running is never touched.
func (l *Ledger) Reap(ctx context.Context) (int64, error) {
	cutoff := l.Now().Add(-l.Cfg.Retention)
	n, err := repo.ReapIdempotency(ctx, l.DB, cutoff, cutoff)
	if err != nil {
		return 0, domain.Unavailable("ledger: reap", err)
	}
	if n > 0 {
		observability.LedgerReaped.Add(float64(n))
	}
	return n, nil
}

// RunReaper calls Reap every interval until ctx is done.
func (l *Ledger) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := l.Reap(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency reap failed")
				continue
			}
			log.Debug().Int64("reaped", n).Msg("idempotency reap")
		}
	}
}
