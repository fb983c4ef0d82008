package session

import (
	"context"

	"github.com/gwillem/stsjog/pkg/servo"
)

// ScanTask is a scan running on its own goroutine.
type ScanTask struct {
	Range servo.IDRange

	cancel   context.CancelFunc
	progress chan Progress
	done     chan struct{}

	found []int
	err   error
}

// StartScan sweeps r in the background and returns immediately. Unlike
// Scan, the lock is taken once per ID, so commands issued during the sweep
// run between two pings instead of waiting for the whole range. Progress
// updates are delivered on the task's Progress channel; the result is
// available from Wait once Done is closed. A session closed mid-sweep ends
// the scan with the IDs found so far.
func (c *Controller) StartScan(ctx context.Context, r servo.IDRange) *ScanTask {
	ctx, cancel := context.WithCancel(ctx)

	t := &ScanTask{
		Range:    r,
		cancel:   cancel,
		progress: make(chan Progress, 1),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer close(t.progress)
		defer cancel()

		ping := func(id int) (Presence, bool) {
			return c.pingOne(ctx, id)
		}
		t.found, t.err = c.sweep(ctx, r, c.Connected(), ping, t.sendProgress)
	}()

	return t
}

// Progress returns a channel of progress updates. Only the latest update is
// kept if the receiver falls behind, so received percentages never
// decrease. The channel is closed when the scan ends.
func (t *ScanTask) Progress() <-chan Progress {
	return t.progress
}

// Done returns a channel that is closed when the scan ends.
func (t *ScanTask) Done() <-chan struct{} {
	return t.done
}

// Cancel stops the scan before the next ID is probed.
func (t *ScanTask) Cancel() {
	t.cancel()
}

// Wait blocks until the scan ends and returns its result.
func (t *ScanTask) Wait() ([]int, error) {
	<-t.done
	return t.found, t.err
}

func (t *ScanTask) sendProgress(p Progress) {
	select {
	case t.progress <- p:
	default:
		// Drop the stale update and replace it with the new one
		select {
		case <-t.progress:
		default:
		}
		t.progress <- p
	}
}
