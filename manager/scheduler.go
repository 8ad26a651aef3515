package manager

import (
	"context"
	"time"

	"github.com/dreamsxin/memrecycle/types"
)

// Start runs the timer loop until ctx ends or Stop is called. Calling Start twice is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	interval := c.policy.CheckInterval()
	c.logger.Info().Dur("interval", interval).Msg("Scheduler started")

	c.wg.Add(1)
	go c.schedule(ctx, interval)
}

// Stop stops the timer loop and waits for an in-flight cycle to finish
func (c *Controller) Stop() {
	c.runMu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
	c.inflight.Wait()
	c.logger.Info().Msg("Scheduler stopped")
}

func (c *Controller) schedule(ctx context.Context, interval time.Duration) {
	defer c.wg.Done()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-c.reschedule:
			interval = c.policy.CheckInterval()
			timer.Reset(interval)
			c.logger.Info().Dur("interval", interval).Msg("Check interval changed, timer rescheduled")

		case <-timer.C:
			// 不等待周期结束，定时器立即重新计时
			if c.begin(types.TriggerTimer) == nil {
				c.logger.Debug().Msg("Previous cycle still running, tick skipped")
			}
			timer.Reset(c.policy.CheckInterval())
		}
	}
}

func (c *Controller) signalReschedule() {
	select {
	case c.reschedule <- struct{}{}:
	default:
	}
}
