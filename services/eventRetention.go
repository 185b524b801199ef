package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"kiosk-gateway/logging"
)

type FileCleaner interface {
	Cleanup(retention time.Duration, now time.Time) (int, error)
}

type RecordPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventRetention removes daily event files, and persisted rows when a
// database sink is configured, once they are older than the retention.
type EventRetention struct {
	files     FileCleaner
	records   RecordPruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *zap.SugaredLogger
}

func NewEventRetention(files FileCleaner, records RecordPruner, retention time.Duration) *EventRetention {
	return &EventRetention{
		files:     files,
		records:   records,
		retention: retention,
		interval:  time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.For("retention"),
	}
}

func (r *EventRetention) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Cleanup(ctx); err != nil {
				r.log.Errorw("Event cleanup failed", "error", err)
			}
		}
	}
}

// Cleanup returns the number of files plus rows removed.
func (r *EventRetention) Cleanup(ctx context.Context) (int, error) {
	now := r.now()
	removed := 0
	if r.files != nil {
		n, err := r.files.Cleanup(r.retention, now)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	if r.records != nil {
		n, err := r.records.DeleteBefore(ctx, now.Add(-r.retention))
		removed += int(n)
		if err != nil {
			return removed, err
		}
	}
	if removed > 0 {
		r.log.Infow("Old events removed", "count", removed, "retention", r.retention)
	} else {
		r.log.Debug("No events to clean up")
	}
	return removed, nil
}
