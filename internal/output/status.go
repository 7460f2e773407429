package output

import (
	"context"
	"time"
)

// StatusBar ticks printF at refreshRate until ctx is canceled. Grounded on
// the teacher's status-bar ticker-and-select shape; reused as-is since the
// ticker loop itself has no coverage-specific content.
func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}
