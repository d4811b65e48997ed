package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// pruneAge: images untouched for a week are removed during cleanup.
const pruneAge = 7 * 24 * time.Hour

// rollback restores the previous container after a failed deployment: it
// removes the failed new container, restarts the previous one, and
// re-polls its health. Every error here is logged and folded into the
// returned flag; rollback never masks the original deployment error.
// With no previous container there is nothing to restore and the result
// is false.
func (d *Deployer) rollback(ctx context.Context, previous, failed string) bool {
	d.log.Warn("rolling back deployment",
		zap.String("previous", previous),
		zap.String("failed", failed))

	if failed != "" {
		if err := d.runtime.StopContainer(ctx, failed); err != nil {
			d.log.Warn("failed to stop new container", zap.Error(err))
		}
		if err := d.runtime.RemoveContainer(ctx, failed); err != nil {
			d.log.Warn("failed to remove new container", zap.Error(err))
		}
	}

	if previous == "" {
		d.log.Warn("no previous container recorded; nothing to roll back to, service is down")
		return false
	}

	if err := d.runtime.StartContainer(ctx, previous); err != nil {
		d.log.Error("failed to restart previous container", zap.Error(err))
		return false
	}
	if _, err := d.awaitHealthy(ctx, d.cfg.HealthURL()); err != nil {
		d.log.Error("previous container did not become healthy", zap.Error(err))
		return false
	}

	d.log.Success("rolled back to previous container", zap.String("container", previous))
	return true
}

// cleanup runs on the success path: stop and remove every prefix-matched
// container except the newly active one, then prune old images. All of it
// is best-effort; already-removed containers are tolerated so a repeated
// cleanup is a no-op.
func (d *Deployer) cleanup(ctx context.Context) {
	containers, err := d.runtime.ListContainers(ctx, d.cfg.NamePrefix)
	if err != nil {
		d.log.Warn("cleanup: could not list containers", zap.Error(err))
		return
	}

	keep := d.cfg.ContainerName()
	for _, c := range containers {
		if c.Name == keep {
			continue
		}
		d.log.Info("removing superseded container",
			zap.String("name", c.Name),
			zap.String("id", c.ID))
		if err := d.runtime.StopContainer(ctx, c.ID); err != nil {
			d.log.Warn("cleanup: stop failed", zap.String("id", c.ID), zap.Error(err))
		}
		if err := d.runtime.RemoveContainer(ctx, c.ID); err != nil {
			d.log.Warn("cleanup: remove failed", zap.String("id", c.ID), zap.Error(err))
		}
	}

	pruned, err := d.runtime.PruneImages(ctx, pruneAge)
	if err != nil {
		d.log.Warn("cleanup: image prune failed", zap.Error(err))
		return
	}
	if pruned > 0 {
		d.log.Info("pruned old images", zap.Int("count", pruned))
	}
}
