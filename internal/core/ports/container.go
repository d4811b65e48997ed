package ports

import (
	"context"
	"time"

	"github.com/drydock-sh/drydock/internal/core/domain"
)

// RunOptions describes the container started for a new deployment.
type RunOptions struct {
	Name          string
	Image         string
	HostPort      int
	ContainerPort int
	MemoryBytes   int64
	NanoCPUs      int64
	Env           []string
	ReadOnly      bool
}

// ContainerRuntime defines the narrow surface of the container runtime the
// orchestrator depends on. This interface allows us to switch between
// Docker, Podman, or Kubernetes without changing the pipeline logic, and
// makes every stage mockable in tests.
type ContainerRuntime interface {
	// Ping confirms the runtime daemon is reachable.
	Ping(ctx context.Context) error

	// RunContainer creates and starts a new container and returns its ID.
	RunContainer(ctx context.Context, opts RunOptions) (string, error)

	// StartContainer starts an existing (stopped) container, used when
	// rolling back to the previous instance.
	StartContainer(ctx context.Context, id string) error

	StopContainer(ctx context.Context, id string) error

	// RemoveContainer deletes a container. Removing a container that no
	// longer exists is not an error.
	RemoveContainer(ctx context.Context, id string) error

	// ListContainers returns all containers (running or not) whose name
	// begins with prefix.
	ListContainers(ctx context.Context, prefix string) ([]domain.Container, error)

	// ContainerLogs returns up to tail recent log lines as plain text,
	// used for diagnostics when a health check exhausts its retries.
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)

	ContainerStats(ctx context.Context, id string) (domain.ContainerStats, error)

	// PruneImages removes dangling images older than the given age and
	// returns how many were deleted.
	PruneImages(ctx context.Context, olderThan time.Duration) (int, error)
}
