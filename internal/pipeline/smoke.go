package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// smokeLatencyBudget is the round-trip ceiling for the post-deploy latency
// check. Deliberately generous: this catches gross regressions, not drift.
const smokeLatencyBudget = 1500 // milliseconds

type smokeCheck struct {
	name string
	run  func(ctx context.Context) error
}

// smokeTest runs the fixed post-health check battery. Checks are
// independent and the first failure aborts with that check's name; all
// must pass.
func (d *Deployer) smokeTest(ctx context.Context, containerID string) error {
	checks := []smokeCheck{
		{name: "health endpoint", run: func(ctx context.Context) error {
			_, err := d.prober.Probe(ctx, d.cfg.HealthURL())
			return err
		}},
		{name: "response latency", run: func(ctx context.Context) error {
			latency, err := d.prober.Probe(ctx, d.cfg.HealthURL())
			if err != nil {
				return err
			}
			if ms := latency.Milliseconds(); ms > smokeLatencyBudget {
				return fmt.Errorf("round-trip %dms exceeds %dms budget", ms, int64(smokeLatencyBudget))
			}
			d.log.Info("latency measured", zap.Duration("latency", latency))
			return nil
		}},
		{name: "resource usage", run: func(ctx context.Context) error {
			stats, err := d.runtime.ContainerStats(ctx, containerID)
			if err != nil {
				return err
			}
			d.log.Info("container resource usage",
				zap.Uint64("memoryBytes", stats.MemoryBytes),
				zap.Float64("cpuPercent", stats.CPUPercent))
			return nil
		}},
	}

	d.log.Info("running smoke tests", zap.Int("checks", len(checks)))
	for _, c := range checks {
		if err := c.run(ctx); err != nil {
			return fmt.Errorf("smoke test %q failed: %w", c.name, err)
		}
		d.log.Info("smoke test passed", zap.String("check", c.name))
	}
	d.log.Success("all smoke tests passed")
	return nil
}
