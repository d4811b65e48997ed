package domain

import (
	"fmt"
	"time"
)

// Status is the terminal outcome of a deployment run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Check is one pre-deployment validation command, e.g. a lint or build
// step exposed by the project's own tooling. All checks must exit zero
// before anything touches the container runtime.
type Check struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Config holds everything one deployment run needs. It is assembled once
// from defaults and CLI flags and is read-only afterwards.
type Config struct {
	DeploymentID  string        `json:"deploymentId"`
	Image         string        `json:"image"`
	SourceRepo    string        `json:"sourceRepo,omitempty"`
	ContextDir    string        `json:"contextDir,omitempty"`
	NamePrefix    string        `json:"namePrefix"`
	Environment   string        `json:"environment"`
	HostPort      int           `json:"hostPort"`
	ContainerPort int           `json:"containerPort"`
	HealthPath    string        `json:"healthPath"`
	Retries       int           `json:"retries"`
	Interval      time.Duration `json:"interval"`
	Memory        string        `json:"memory"` // human form, e.g. "512m"
	CPUs          float64       `json:"cpus"`
	Checks        []Check       `json:"checks,omitempty"`
	LogsDir       string        `json:"logsDir"`
}

// DefaultConfig returns the hard-coded defaults; CLI flags override fields
// individually.
func DefaultConfig() Config {
	return Config{
		Image:         "drydock-app",
		ContextDir:    ".",
		NamePrefix:    "drydock",
		Environment:   "local",
		HostPort:      8080,
		ContainerPort: 3000,
		HealthPath:    "/health",
		Retries:       30,
		Interval:      2 * time.Second,
		Memory:        "512m",
		CPUs:          0.5,
		LogsDir:       "logs",
	}
}

// NewDeploymentID derives the run identifier from the wall clock. The same
// string tags the built image, the new container name, and the log/report
// file names.
func NewDeploymentID(t time.Time) string {
	return t.Format("20060102-150405")
}

// TaggedImage is the image reference built for this run.
func (c Config) TaggedImage() string {
	return c.Image + ":" + c.DeploymentID
}

// ContainerName is the name given to the container started by this run.
func (c Config) ContainerName() string {
	return c.NamePrefix + "-" + c.DeploymentID
}

// HealthURL is the probe target once the new container is up.
func (c Config) HealthURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", c.HostPort, c.HealthPath)
}
