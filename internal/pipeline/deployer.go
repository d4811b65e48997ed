// Package pipeline implements the deployment orchestrator: a strictly
// sequential run of validate, build, discover, deploy, health-poll, smoke
// test, then cleanup on success or rollback on failure, with a JSON report
// persisted for every run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"go.uber.org/zap"

	"github.com/drydock-sh/drydock/internal/core/domain"
	"github.com/drydock-sh/drydock/internal/core/ports"
	"github.com/drydock-sh/drydock/internal/logging"
)

// CommandRunner executes one external validation command and returns a
// non-nil error on non-zero exit.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// SleepFunc pauses between health probe attempts. Injectable so tests can
// run the retry loop without wall-clock delay.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Deployer drives one deployment run. Construct with New; all collaborators
// are passed in explicitly and the config is read-only after construction.
type Deployer struct {
	cfg     domain.Config
	runtime ports.ContainerRuntime
	builder ports.ImageBuilder
	prober  ports.HealthProber
	log     *logging.Logger
	runCmd  CommandRunner
	sleep   SleepFunc
	now     func() time.Time
}

// Params collects the Deployer's collaborators. RunCommand, Sleep and Now
// default to the real implementations when nil.
type Params struct {
	Config     domain.Config
	Runtime    ports.ContainerRuntime
	Builder    ports.ImageBuilder
	Prober     ports.HealthProber
	Logger     *logging.Logger
	RunCommand CommandRunner
	Sleep      SleepFunc
	Now        func() time.Time
}

func New(p Params) *Deployer {
	d := &Deployer{
		cfg:     p.Config,
		runtime: p.Runtime,
		builder: p.Builder,
		prober:  p.Prober,
		log:     p.Logger,
		runCmd:  p.RunCommand,
		sleep:   p.Sleep,
		now:     p.Now,
	}
	if d.runCmd == nil {
		d.runCmd = runCommand
	}
	if d.sleep == nil {
		d.sleep = sleepContext
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Run executes the full pipeline and always writes the run report, on the
// success and the failure path alike. The returned error is the original
// stage failure; rollback problems are reflected only in the report's
// rollbackSuccess flag.
func (d *Deployer) Run(ctx context.Context) (*domain.Report, error) {
	start := d.now()
	report := &domain.Report{
		DeploymentID: d.cfg.DeploymentID,
		Timestamp:    start,
		Config:       d.cfg,
		LogFile:      d.log.Path(),
		Status:       domain.StatusFailed,
	}

	d.log.Info("starting deployment",
		zap.String("deploymentId", d.cfg.DeploymentID),
		zap.String("image", d.cfg.TaggedImage()),
		zap.String("environment", d.cfg.Environment))

	err := d.execute(ctx, report)
	report.Duration = d.now().Sub(start)
	if err != nil {
		report.Error = err.Error()
		d.log.Error("Deployment failed",
			zap.Duration("elapsed", report.Duration),
			zap.Error(err))
	} else {
		report.Status = domain.StatusSuccess
		d.log.Success("Deployment completed",
			zap.Duration("elapsed", report.Duration),
			zap.String("container", report.Containers.Current))
	}

	d.writeReport(report)
	return report, err
}

func (d *Deployer) execute(ctx context.Context, report *domain.Report) error {
	if err := d.validate(ctx); err != nil {
		return fmt.Errorf("pre-deployment validation failed: %w", err)
	}

	memBytes, err := units.RAMInBytes(d.cfg.Memory)
	if err != nil {
		return fmt.Errorf("pre-deployment validation failed: invalid memory limit %q: %w", d.cfg.Memory, err)
	}

	image, err := d.buildImage(ctx)
	if err != nil {
		return fmt.Errorf("image build failed: %w", err)
	}

	previous, err := d.discoverPrevious(ctx)
	if err != nil {
		return fmt.Errorf("container discovery failed: %w", err)
	}
	report.Containers.Previous = previous

	// Swap: the previous container holds the host port, so it is stopped
	// (not removed) before the new one starts. It stays available as the
	// rollback target until cleanup.
	if previous != "" {
		d.log.Info("stopping previous container", zap.String("container", previous))
		if err := d.runtime.StopContainer(ctx, previous); err != nil {
			return fmt.Errorf("deploy failed: %w", err)
		}
	}

	current, err := d.runtime.RunContainer(ctx, ports.RunOptions{
		Name:          d.cfg.ContainerName(),
		Image:         image,
		HostPort:      d.cfg.HostPort,
		ContainerPort: d.cfg.ContainerPort,
		MemoryBytes:   memBytes,
		NanoCPUs:      int64(d.cfg.CPUs * 1e9),
		Env: []string{
			"ENVIRONMENT=" + d.cfg.Environment,
			fmt.Sprintf("PORT=%d", d.cfg.ContainerPort),
		},
		ReadOnly: true,
	})
	if err != nil {
		ok := d.rollback(ctx, previous, "")
		report.RollbackSuccess = &ok
		return fmt.Errorf("deploy failed: %w", err)
	}
	report.Containers.Current = current
	d.log.Success("container started",
		zap.String("name", d.cfg.ContainerName()),
		zap.String("id", shortID(current)))

	if _, err := d.awaitHealthy(ctx, d.cfg.HealthURL()); err != nil {
		d.dumpContainerLogs(ctx, current)
		ok := d.rollback(ctx, previous, current)
		report.RollbackSuccess = &ok
		return err
	}

	if err := d.smokeTest(ctx, current); err != nil {
		ok := d.rollback(ctx, previous, current)
		report.RollbackSuccess = &ok
		return err
	}

	d.cleanup(ctx)
	return nil
}

func (d *Deployer) buildImage(ctx context.Context) (string, error) {
	image := d.cfg.TaggedImage()
	if d.cfg.SourceRepo != "" {
		d.log.Info("building image from repository",
			zap.String("repo", d.cfg.SourceRepo),
			zap.String("image", image))
		return d.builder.BuildFromRepo(ctx, d.cfg.SourceRepo, image)
	}
	d.log.Info("building image",
		zap.String("context", d.cfg.ContextDir),
		zap.String("image", image))
	return d.builder.BuildImage(ctx, d.cfg.ContextDir, image)
}

// discoverPrevious finds the currently running container with the
// configured name prefix, the later rollback target. When more than one
// matches, the most recently created wins. No match is not an error.
func (d *Deployer) discoverPrevious(ctx context.Context) (string, error) {
	containers, err := d.runtime.ListContainers(ctx, d.cfg.NamePrefix)
	if err != nil {
		return "", err
	}
	for _, c := range containers {
		if c.State == "running" {
			d.log.Info("found previous container",
				zap.String("name", c.Name),
				zap.String("id", c.ID))
			return c.ID, nil
		}
	}
	d.log.Info("no previous container found; rollback will not be possible")
	return "", nil
}

func (d *Deployer) dumpContainerLogs(ctx context.Context, id string) {
	out, err := d.runtime.ContainerLogs(ctx, id, 50)
	if err != nil {
		d.log.Warn("could not fetch container logs", zap.Error(err))
		return
	}
	d.log.Error("container log tail", zap.String("logs", out))
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
