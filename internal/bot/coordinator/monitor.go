package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// stallWatch tracks how long an exclusive action has stayed flagged.
type stallWatch struct {
	since  time.Time
	warned bool
}

// observe returns true the first time the flag has been held longer than limit.
func (s *stallWatch) observe(exclusive bool, now time.Time, limit time.Duration) bool {
	if !exclusive {
		s.since = time.Time{}
		s.warned = false
		return false
	}
	if s.since.IsZero() {
		s.since = now
		return false
	}
	if s.warned || limit <= 0 || now.Sub(s.since) <= limit {
		return false
	}
	s.warned = true
	return true
}

const defaultMonitorInterval = 500 * time.Millisecond

// monitor publishes a Status every status.interval until ctx is done.
func (c *Coordinator) monitor(ctx context.Context) {
	interval := c.cfg.Current().Status.Interval
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var stall stallWatch
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := c.Status()
			if stall.observe(st.Target.ExclusiveAction, st.At, c.cfg.Current().Workers.ExclusiveStall) {
				c.logger.Warn("exclusive action flagged for too long",
					zap.Duration("limit", c.cfg.Current().Workers.ExclusiveStall),
					zap.Bool("gate_busy", st.GateBusy),
					zap.Any("workers", st.Workers),
				)
			}
			c.publish(st)
		}
	}
}

func (c *Coordinator) publish(st Status) {
	c.subMu.Lock()
	subs := make([]chan<- Status, 0, len(c.subscribers))
	for ch := range c.subscribers {
		subs = append(subs, ch)
	}
	c.subMu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- st:
		default:
		}
	}
}
