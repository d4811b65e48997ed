package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	httpapi "github.com/drydock-sh/drydock/internal/adapters/http"

	"github.com/drydock-sh/drydock/internal/adapters/builder"
	"github.com/drydock-sh/drydock/internal/adapters/docker"
	"github.com/drydock-sh/drydock/internal/adapters/probe"
	"github.com/drydock-sh/drydock/internal/core/domain"
	"github.com/drydock-sh/drydock/internal/logging"
	"github.com/drydock-sh/drydock/internal/pipeline"
)

const version = "0.3.0"

// per-probe HTTP timeout; the overall run deadline comes from --timeout.
const probeTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:           "drydock",
	Short:         "drydock deploys a container to the local Docker daemon with health checks and rollback",
	SilenceUsage:  true,
	SilenceErrors: false,
}

var deployFlags struct {
	cfg      domain.Config
	interval time.Duration
	timeout  time.Duration
	checks   []string
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build, deploy, health-check and smoke-test a new container, rolling back on failure",
	RunE:  runDeploy,
}

var serveFlags struct {
	listen  string
	logsDir string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve past deployment reports and live container state over HTTP",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the drydock version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("drydock " + version)
	},
}

func init() {
	def := domain.DefaultConfig()
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.cfg.Image, "image", def.Image, "image name; the deployment id becomes the tag")
	f.StringVar(&deployFlags.cfg.SourceRepo, "source", "", "git repository to clone and build instead of a local context")
	f.StringVar(&deployFlags.cfg.ContextDir, "context", def.ContextDir, "local Dockerfile context directory")
	f.StringVar(&deployFlags.cfg.NamePrefix, "prefix", def.NamePrefix, "container name prefix; also identifies the previous instance")
	f.StringVar(&deployFlags.cfg.Environment, "environment", def.Environment, "target environment label passed into the container")
	f.IntVar(&deployFlags.cfg.HostPort, "port", def.HostPort, "host port to publish")
	f.IntVar(&deployFlags.cfg.ContainerPort, "internal-port", def.ContainerPort, "container port the service listens on")
	f.StringVar(&deployFlags.cfg.HealthPath, "health-path", def.HealthPath, "HTTP path probed for readiness")
	f.IntVar(&deployFlags.cfg.Retries, "retries", def.Retries, "maximum health probe attempts")
	f.DurationVar(&deployFlags.interval, "interval", def.Interval, "pause between health probe attempts")
	f.StringVar(&deployFlags.cfg.Memory, "memory", def.Memory, "container memory limit, e.g. 512m")
	f.Float64Var(&deployFlags.cfg.CPUs, "cpus", def.CPUs, "container CPU share")
	f.StringVar(&deployFlags.cfg.LogsDir, "logs-dir", def.LogsDir, "directory for run logs and reports")
	f.DurationVar(&deployFlags.timeout, "timeout", 0, "overall deadline for the run, 0 for none")
	f.StringArrayVar(&deployFlags.checks, "check", nil, "pre-deployment check command, repeatable (e.g. \"npm run lint\")")

	sf := serveCmd.Flags()
	sf.StringVar(&serveFlags.listen, "listen", ":3000", "listen address")
	sf.StringVar(&serveFlags.logsDir, "logs-dir", def.LogsDir, "directory the deploy command writes reports to")

	rootCmd.AddCommand(deployCmd, serveCmd, versionCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	cfg := deployFlags.cfg
	cfg.Interval = deployFlags.interval
	cfg.DeploymentID = domain.NewDeploymentID(time.Now())
	for _, raw := range deployFlags.checks {
		fields := strings.Fields(raw)
		if len(fields) == 0 {
			continue
		}
		cfg.Checks = append(cfg.Checks, domain.Check{
			Name:    raw,
			Command: fields[0],
			Args:    fields[1:],
		})
	}

	log := logging.New(cfg.LogsDir, cfg.DeploymentID)
	defer log.Close()

	runtime, err := docker.NewAdapter()
	if err != nil {
		return err
	}
	imageBuilder, err := builder.NewBuilderAdapter()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if deployFlags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deployFlags.timeout)
		defer cancel()
	}

	deployer := pipeline.New(pipeline.Params{
		Config:  cfg,
		Runtime: runtime,
		Builder: imageBuilder,
		Prober:  probe.NewHTTPProber(probeTimeout),
		Logger:  log,
	})
	_, err = deployer.Run(ctx)
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	runtime, err := docker.NewAdapter()
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpapi.NewReportHandler(serveFlags.logsDir, runtime).Register(app)

	fmt.Printf("drydock report API listening on %s\n", serveFlags.listen)
	return app.Listen(serveFlags.listen)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
