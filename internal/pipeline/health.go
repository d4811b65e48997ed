package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// awaitHealthy polls the health endpoint until it answers 2xx or the
// configured retry budget is spent: Polling transitions to Healthy on the
// first success and to Exhausted after exactly cfg.Retries failed
// attempts, with a fixed sleep between attempts. Returns the number of
// attempts made.
func (d *Deployer) awaitHealthy(ctx context.Context, url string) (int, error) {
	max := d.cfg.Retries
	for attempt := 1; attempt <= max; attempt++ {
		latency, err := d.prober.Probe(ctx, url)
		if err == nil {
			d.log.Success("health check passed",
				zap.Int("attempt", attempt),
				zap.Duration("latency", latency))
			return attempt, nil
		}

		d.log.Info("waiting for container health",
			zap.Int("attempt", attempt),
			zap.Int("max", max),
			zap.Error(err))

		if attempt < max {
			if serr := d.sleep(ctx, d.cfg.Interval); serr != nil {
				return attempt, fmt.Errorf("health polling interrupted: %w", serr)
			}
		}
	}
	return max, fmt.Errorf("health check failed after %d attempts", max)
}
