package domain

import "time"

// ContainerPair records which container this run started and which one it
// superseded (the rollback target). Previous is empty when discovery found
// nothing to roll back to.
type ContainerPair struct {
	Current  string `json:"current"`
	Previous string `json:"previous"`
}

// Report is the single persisted record of one deployment run. It is
// assembled once at the end of the run and written to
// logs/deployment-report-<id>.json.
type Report struct {
	DeploymentID    string        `json:"deploymentId"`
	Timestamp       time.Time     `json:"timestamp"`
	Config          Config        `json:"config"`
	Containers      ContainerPair `json:"containers"`
	LogFile         string        `json:"logFile"`
	Status          Status        `json:"status"`
	Error           string        `json:"error,omitempty"`
	RollbackSuccess *bool         `json:"rollbackSuccess,omitempty"`
	Duration        time.Duration `json:"duration"`
}
