package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drydock-sh/drydock/internal/core/domain"
	"github.com/drydock-sh/drydock/internal/core/ports"
	"github.com/drydock-sh/drydock/internal/logging"
)

// fakeContainer is one container tracked by fakeRuntime.
type fakeContainer struct {
	id      string
	name    string
	image   string
	running bool
	created int64
}

// fakeRuntime implements ports.ContainerRuntime in memory.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	nextID     int
	clock      int64

	pingErr  error
	runErr   error
	listErr  error
	startErr error

	runCalls   int
	pruneCalls int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: map[string]*fakeContainer{}}
}

func (f *fakeRuntime) addRunning(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock++
	f.containers[id] = &fakeContainer{id: id, name: name, running: true, created: f.clock}
}

func (f *fakeRuntime) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeRuntime) RunContainer(ctx context.Context, opts ports.RunOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runCalls++
	if f.runErr != nil {
		return "", f.runErr
	}
	f.nextID++
	f.clock++
	id := fmt.Sprintf("new-%d", f.nextID)
	f.containers[id] = &fakeContainer{id: id, name: opts.Name, image: opts.Image, running: true, created: f.clock}
	return id, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	c, ok := f.containers[id]
	if !ok {
		return fmt.Errorf("no such container: %s", id)
	}
	c.running = true
	return nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.running = false
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id) // absent is fine
	return nil
}

func (f *fakeRuntime) ListContainers(ctx context.Context, prefix string) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Container
	for _, c := range f.containers {
		if !strings.HasPrefix(c.name, prefix) {
			continue
		}
		state := "exited"
		if c.running {
			state = "running"
		}
		out = append(out, domain.Container{
			ID: c.id, Name: c.name, Image: c.image, State: state, Created: c.created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created > out[j].Created })
	return out, nil
}

func (f *fakeRuntime) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	return "fake container logs", nil
}

func (f *fakeRuntime) ContainerStats(ctx context.Context, id string) (domain.ContainerStats, error) {
	return domain.ContainerStats{MemoryBytes: 42 << 20, CPUPercent: 1.5}, nil
}

func (f *fakeRuntime) PruneImages(ctx context.Context, olderThan time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruneCalls++
	return 0, nil
}

func (f *fakeRuntime) get(id string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[id]
}

func (f *fakeRuntime) byName(name string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.containers {
		if c.name == name {
			return c
		}
	}
	return nil
}

// fakeBuilder records build requests.
type fakeBuilder struct {
	built    []string
	buildErr error
}

func (f *fakeBuilder) BuildImage(ctx context.Context, contextDir, imageName string) (string, error) {
	if f.buildErr != nil {
		return "", f.buildErr
	}
	f.built = append(f.built, imageName)
	return imageName, nil
}

func (f *fakeBuilder) BuildFromRepo(ctx context.Context, repoURL, imageName string) (string, error) {
	return f.BuildImage(ctx, "", imageName)
}

// fakeProber replays a scripted sequence of probe results; once the script
// is exhausted it repeats the last entry.
type fakeProber struct {
	script  []error
	calls   int
	latency time.Duration
}

func (f *fakeProber) Probe(ctx context.Context, url string) (time.Duration, error) {
	i := f.calls
	f.calls++
	if len(f.script) == 0 {
		return f.latency, nil
	}
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	return f.latency, f.script[i]
}

type testEnv struct {
	cfg     domain.Config
	runtime *fakeRuntime
	builder *fakeBuilder
	prober  *fakeProber
	sleeps  []time.Duration
	deploy  *Deployer
}

func newTestEnv(t *testing.T, mutate func(*domain.Config)) *testEnv {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.DeploymentID = "20260831-120000"
	cfg.LogsDir = t.TempDir()
	cfg.Retries = 5
	cfg.Interval = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		cfg:     cfg,
		runtime: newFakeRuntime(),
		builder: &fakeBuilder{},
		prober:  &fakeProber{latency: 10 * time.Millisecond},
	}
	log := logging.New(cfg.LogsDir, cfg.DeploymentID)
	t.Cleanup(log.Close)

	env.deploy = New(Params{
		Config:  cfg,
		Runtime: env.runtime,
		Builder: env.builder,
		Prober:  env.prober,
		Logger:  log,
		RunCommand: func(ctx context.Context, name string, args ...string) error {
			return nil
		},
		Sleep: func(ctx context.Context, d time.Duration) error {
			env.sleeps = append(env.sleeps, d)
			return nil
		},
		Now: func() time.Time { return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC) },
	})
	return env
}

func readReportFile(t *testing.T, logsDir, id string) domain.Report {
	t.Helper()
	data, err := os.ReadFile(ReportPath(logsDir, id))
	require.NoError(t, err)
	var r domain.Report
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

func TestValidatorFailureAbortsBeforeBuild(t *testing.T) {
	env := newTestEnv(t, func(c *domain.Config) {
		c.Checks = []domain.Check{
			{Name: "lint", Command: "npm", Args: []string{"run", "lint"}},
			{Name: "build", Command: "npm", Args: []string{"run", "build"}},
		}
	})
	var ran []string
	env.deploy.runCmd = func(ctx context.Context, name string, args ...string) error {
		ran = append(ran, strings.Join(args, " "))
		return errors.New("exit status 1")
	}

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-deployment validation failed")
	assert.Contains(t, err.Error(), `"lint"`)

	// fail-fast: second check never ran, nothing was built or started
	assert.Equal(t, []string{"run lint"}, ran)
	assert.Empty(t, env.builder.built)
	assert.Zero(t, env.runtime.runCalls)
	assert.Equal(t, domain.StatusFailed, report.Status)
}

func TestRuntimePingFailureAborts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.pingErr = errors.New("daemon unreachable")

	_, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pre-deployment validation failed")
	assert.Empty(t, env.builder.built)
}

func TestBuildFailureAbortsWithoutRollback(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.addRunning("prev-1", "drydock-20260830-110000")
	env.builder.buildErr = errors.New("step 3/7 failed")

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image build failed")
	// build failures abort before the swap: previous stays running and no
	// rollback is attempted
	assert.True(t, env.runtime.get("prev-1").running)
	assert.Nil(t, report.RollbackSuccess)
	assert.Zero(t, env.runtime.runCalls)
}

func TestHealthPollerMakesExactlyMaxAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.prober.script = []error{errors.New("connection refused")}

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed after 5 attempts")

	// exactly Retries probes, with a fixed-interval sleep between each pair
	assert.Equal(t, 5, env.prober.calls)
	assert.Len(t, env.sleeps, 4)
	for _, d := range env.sleeps {
		assert.Equal(t, env.cfg.Interval, d)
	}
	require.NotNil(t, report.RollbackSuccess)
	assert.False(t, *report.RollbackSuccess)
}

func TestDeploySucceedsOnThirdAttempt(t *testing.T) {
	env := newTestEnv(t, func(c *domain.Config) { c.Retries = 30 })
	fail := errors.New("connection refused")
	// two failed polls, then healthy; smoke tests reuse the healthy probe
	env.prober.script = []error{fail, fail, nil}

	report, err := env.deploy.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, report.Status)

	// 3 poll attempts plus the 2 smoke test probes
	assert.Equal(t, 5, env.prober.calls)
	assert.Len(t, env.sleeps, 2)

	// image tag and container name both carry the deployment id
	require.Len(t, env.builder.built, 1)
	assert.Equal(t, env.cfg.Image+":"+env.cfg.DeploymentID, env.builder.built[0])
	current := env.runtime.byName(env.cfg.NamePrefix + "-" + env.cfg.DeploymentID)
	require.NotNil(t, current)
	assert.True(t, current.running)

	persisted := readReportFile(t, env.cfg.LogsDir, env.cfg.DeploymentID)
	assert.Equal(t, domain.StatusSuccess, persisted.Status)
	assert.Equal(t, env.cfg.DeploymentID, persisted.DeploymentID)
	assert.Empty(t, persisted.Error)
}

func TestSuccessfulDeployCleansUpPrevious(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.addRunning("prev-1", "drydock-20260830-110000")

	report, err := env.deploy.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prev-1", report.Containers.Previous)

	// superseded container removed, new one kept running, images pruned
	assert.Nil(t, env.runtime.get("prev-1"))
	current := env.runtime.byName(env.cfg.ContainerName())
	require.NotNil(t, current)
	assert.True(t, current.running)
	assert.Equal(t, 1, env.runtime.pruneCalls)
}

func TestHealthExhaustionRollsBackToPrevious(t *testing.T) {
	env := newTestEnv(t, func(c *domain.Config) { c.Retries = 3 })
	env.runtime.addRunning("prev-1", "drydock-20260830-110000")
	fail := errors.New("connection refused")
	// new container never healthy (3 attempts), previous healthy at once
	env.prober.script = []error{fail, fail, fail, nil}

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed after 3 attempts")

	// previous restored and running, failed container gone
	prev := env.runtime.get("prev-1")
	require.NotNil(t, prev)
	assert.True(t, prev.running)
	assert.Nil(t, env.runtime.byName(env.cfg.ContainerName()))

	require.NotNil(t, report.RollbackSuccess)
	assert.True(t, *report.RollbackSuccess)
	assert.Equal(t, "prev-1", report.Containers.Previous)

	persisted := readReportFile(t, env.cfg.LogsDir, env.cfg.DeploymentID)
	assert.Equal(t, domain.StatusFailed, persisted.Status)
	assert.Contains(t, persisted.Error, "health check failed")
}

func TestNoPreviousContainerReportsRollbackFalse(t *testing.T) {
	env := newTestEnv(t, func(c *domain.Config) { c.Retries = 2 })
	env.prober.script = []error{errors.New("connection refused")}

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	require.NotNil(t, report.RollbackSuccess)
	assert.False(t, *report.RollbackSuccess)
	assert.Empty(t, report.Containers.Previous)

	persisted := readReportFile(t, env.cfg.LogsDir, env.cfg.DeploymentID)
	require.NotNil(t, persisted.RollbackSuccess)
	assert.False(t, *persisted.RollbackSuccess)
}

func TestRollbackFailureDoesNotMaskOriginalError(t *testing.T) {
	env := newTestEnv(t, func(c *domain.Config) { c.Retries = 1 })
	env.runtime.addRunning("prev-1", "drydock-20260830-110000")
	env.runtime.startErr = errors.New("no such container")
	env.prober.script = []error{errors.New("connection refused")}

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed after 1 attempts")
	require.NotNil(t, report.RollbackSuccess)
	assert.False(t, *report.RollbackSuccess)
}

func TestSmokeTestFailureRollsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.addRunning("prev-1", "drydock-20260830-110000")
	slow := 2 * time.Second // above the latency budget
	env.prober.latency = slow

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `smoke test "response latency" failed`)
	assert.Equal(t, domain.StatusFailed, report.Status)
	assert.True(t, env.runtime.get("prev-1").running)
}

func TestCleanupIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.addRunning("old-1", "drydock-20260829-100000")
	env.runtime.addRunning("old-2", "drydock-20260830-110000")
	env.runtime.addRunning("cur-1", env.cfg.ContainerName())

	ctx := context.Background()
	env.deploy.cleanup(ctx)
	env.deploy.cleanup(ctx) // second pass over already-removed containers

	assert.Nil(t, env.runtime.get("old-1"))
	assert.Nil(t, env.runtime.get("old-2"))
	require.NotNil(t, env.runtime.get("cur-1"))
	assert.True(t, env.runtime.get("cur-1").running)
	assert.Equal(t, 2, env.runtime.pruneCalls)
}

func TestDiscoverPrefersMostRecentRunning(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.addRunning("old-1", "drydock-20260829-100000")
	env.runtime.addRunning("old-2", "drydock-20260830-110000")

	prev, err := env.deploy.discoverPrevious(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old-2", prev)
}

func TestDeployFailureRestartsStoppedPrevious(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runtime.addRunning("prev-1", "drydock-20260830-110000")
	env.runtime.runErr = errors.New("port is already allocated")

	report, err := env.deploy.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deploy failed")

	// the swap stopped the previous container; rollback must restart it
	prev := env.runtime.get("prev-1")
	require.NotNil(t, prev)
	assert.True(t, prev.running)
	require.NotNil(t, report.RollbackSuccess)
	assert.True(t, *report.RollbackSuccess)
}

func TestReportWrittenOncePerRun(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.deploy.Run(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(env.cfg.LogsDir)
	require.NoError(t, err)
	var reports int
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "deployment-report-") {
			reports++
		}
	}
	assert.Equal(t, 1, reports)
}
