package reaper

import (
	"context"
	"time"
)

// SessionSweeper is the slice of the session manager the reaper drives.
type SessionSweeper interface {
	Sweep(ctx context.Context, maxIdle time.Duration) int
	Reconcile(ctx context.Context) int
}
