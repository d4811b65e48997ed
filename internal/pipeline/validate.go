package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// validate confirms the runtime daemon is reachable and runs the configured
// project checks in order, failing fast on the first non-zero exit. Nothing
// touches a container until every check has passed.
func (d *Deployer) validate(ctx context.Context) error {
	d.log.Info("running pre-deployment validation")

	if err := d.runtime.Ping(ctx); err != nil {
		return fmt.Errorf("check %q: %w", "container runtime", err)
	}
	d.log.Info("check passed", zap.String("check", "container runtime"))

	for _, check := range d.cfg.Checks {
		if err := d.runCmd(ctx, check.Command, check.Args...); err != nil {
			return fmt.Errorf("check %q: %w", check.Name, err)
		}
		d.log.Info("check passed", zap.String("check", check.Name))
	}
	return nil
}

// runCommand is the default CommandRunner, executing through the shell
// environment of the surrounding project.
func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, lastLine(detail))
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// lastLine keeps error messages one line; full command output belongs in
// the tool's own logs, not ours.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
