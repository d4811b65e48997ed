package domain

// Container represents a container known to the runtime (Docker, Podman, etc.)
type Container struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	Status  string `json:"status"`
	State   string `json:"state"` // running, exited, etc.
	Created int64  `json:"created"`
}

// ContainerStats is a point-in-time resource usage sample for one container.
type ContainerStats struct {
	MemoryBytes uint64  `json:"memoryBytes"`
	CPUPercent  float64 `json:"cpuPercent"`
}
