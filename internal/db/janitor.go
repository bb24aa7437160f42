package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/models"
)

// StartJanitor fails pending payments older than paymentTTL and deletes
// expired tokens every interval until ctx is done.
func StartJanitor(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	paymentTTL time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep(ctx, db, time.Now(), paymentTTL, log)
			}
		}
	}()
}

func sweep(ctx context.Context, db *sql.DB, now time.Time, paymentTTL time.Duration, log *zap.Logger) {
	res, err := db.ExecContext(ctx, `
		UPDATE payments SET status = $1
		 WHERE status = $2
		   AND created_at < $3
	`, string(models.PaymentFailed), string(models.PaymentPending), now.Add(-paymentTTL))
	if err != nil {
		log.Error("failed to expire pending payments", zap.Error(err))
	} else if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("expired pending payments", zap.Int64("expired", rows))
	}

	res, err = db.ExecContext(ctx, `DELETE FROM tokens WHERE expires_at < $1`, now)
	if err != nil {
		log.Error("failed to purge expired tokens", zap.Error(err))
		return
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		log.Info("purged expired tokens", zap.Int64("removed", rows))
	}
}
