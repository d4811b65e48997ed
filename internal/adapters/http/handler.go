// Package http exposes past deployment runs over a small read-only API,
// served by the `drydock serve` subcommand.
package http

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/drydock-sh/drydock/internal/core/domain"
	"github.com/drydock-sh/drydock/internal/core/ports"
)

// ReportHandler serves the JSON deployment reports written by the pipeline.
type ReportHandler struct {
	logsDir string
	runtime ports.ContainerRuntime
}

func NewReportHandler(logsDir string, runtime ports.ContainerRuntime) *ReportHandler {
	return &ReportHandler{logsDir: logsDir, runtime: runtime}
}

// Register mounts the API routes on app.
func (h *ReportHandler) Register(app *fiber.App) {
	app.Get("/healthz", h.Health)
	api := app.Group("/api")
	v1 := api.Group("/v1")
	v1.Get("/deployments", h.ListDeployments)
	v1.Get("/deployments/:id", h.GetDeployment)
	v1.Get("/containers", h.ListContainers)
}

func (h *ReportHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListDeployments returns every persisted report, newest first.
func (h *ReportHandler) ListDeployments(c *fiber.Ctx) error {
	paths, err := filepath.Glob(filepath.Join(h.logsDir, "deployment-report-*.json"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	reports := make([]domain.Report, 0, len(paths))
	for _, p := range paths {
		r, err := readReport(p)
		if err != nil {
			// A half-written or corrupt report should not hide the rest.
			continue
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})
	return c.JSON(reports)
}

func (h *ReportHandler) GetDeployment(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" || strings.ContainsAny(id, "/\\") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Deployment ID is required",
		})
	}

	r, err := readReport(filepath.Join(h.logsDir, "deployment-report-"+id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No report for deployment " + id,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(r)
}

// ListContainers reports the live containers managed under the given name
// prefix (query param "prefix", empty for all).
func (h *ReportHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.runtime.ListContainers(c.Context(), c.Query("prefix"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(containers)
}

func readReport(path string) (domain.Report, error) {
	var r domain.Report
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, err
	}
	return r, nil
}
