package currency

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Scheduler triggers the daily rate refresh.
type Scheduler struct {
	refresher *Refresher
	hour      int
	minute    int
	logger    *log.Logger
}

// NewScheduler constructs a Scheduler. A daily_at value that does not
// parse as HH:MM is rejected here so a typo cannot silently disable
// the refresh job.
func NewScheduler(refresher *Refresher, dailyAt string, logger *log.Logger) (*Scheduler, error) {
	hour, minute, err := parseDailyAt(dailyAt)
	if err != nil {
		return nil, fmt.Errorf("currency: invalid daily_at %q: %w", dailyAt, err)
	}
	return &Scheduler{refresher: refresher, hour: hour, minute: minute, logger: logger}, nil
}

// Start begins the scheduler loop. A failed refresh is logged and the
// job simply runs again the next day.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.refresher == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			if err := s.refresher.Run(ctx); err != nil && s.logger != nil {
				s.logger.Printf("currency schedule error: err=%v", err)
			}
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	return now.Hour() == s.hour && now.Minute() == s.minute
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
