package ticker

import (
	"context"
	"fmt"
	"time"
)

// Runs task immediately, then at each interval, until it reports done, fails, or ctx ends.
func Poll(ctx context.Context, interval time.Duration, task func(context.Context) (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := task(ctx)
		if err != nil {
			return fmt.Errorf("poll task failed: %w", err)
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
