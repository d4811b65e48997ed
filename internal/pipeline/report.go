package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/drydock-sh/drydock/internal/core/domain"
)

// ReportPath returns where the JSON report for a deployment id lives under
// logsDir. The serve API reads reports back through the same path scheme.
func ReportPath(logsDir, deploymentID string) string {
	return filepath.Join(logsDir, "deployment-report-"+deploymentID+".json")
}

// writeReport persists the run record. Report writing is best-effort: a
// failure is printed and swallowed, never turning a finished deployment
// into an error.
func (d *Deployer) writeReport(r *domain.Report) {
	path := ReportPath(d.cfg.LogsDir, r.DeploymentID)
	if err := os.MkdirAll(d.cfg.LogsDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create logs dir for report: %v\n", err)
		return
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot marshal deployment report: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot write deployment report: %v\n", err)
		return
	}
	d.log.Info("deployment report written", zap.String("path", path))
}
