package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// heartbeat drives a broadcast callback on a cron schedule.
type heartbeat struct {
	cron    *cron.Cron
	started bool
}

func newHeartbeat(schedule string, broadcast func()) (*heartbeat, error) {
	c := cron.New(
		cron.WithLocation(time.Local),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(schedule, broadcast); err != nil {
		return nil, fmt.Errorf("register heartbeat schedule %q: %w", schedule, err)
	}
	return &heartbeat{cron: c}, nil
}

// Start begins schedule execution.
func (h *heartbeat) Start() {
	h.cron.Start()
	h.started = true
}

// Stop stops cron and waits for an in-flight broadcast to finish or ctx cancellation.
func (h *heartbeat) Stop(ctx context.Context) error {
	if !h.started {
		return nil
	}

	doneCtx := h.cron.Stop()
	h.started = false
	select {
	case <-doneCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
