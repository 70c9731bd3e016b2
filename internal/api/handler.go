// Package api exposes a small management surface over the pipeline:
// which apps are declared, what their containers are doing, their logs.
// It reports state only; the reconcile loop stays the single writer,
// except for restarts and rebuilds, which tear resources down and let
// the loop repair the rest.
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/gofiber/fiber/v2"

	"github.com/kinopiokinopiko/slipway/internal/builder"
	"github.com/kinopiokinopiko/slipway/internal/manifest"
)

// DockerAPI is the slice of the Docker client the handlers use.
type DockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
}

type ManifestStore interface {
	Snapshot() []manifest.Manifest
}

type AppStatus struct {
	Name        string `json:"name"`
	Image       string `json:"image"`
	ContainerID string `json:"container_id,omitempty"`
	State       string `json:"state"`
	Status      string `json:"status,omitempty"`
	Port        int    `json:"port"`
	Workers     int    `json:"workers"`
	Threads     int    `json:"threads"`
}

type Handler struct {
	logger *slog.Logger
	store  ManifestStore
	docker DockerAPI
}

func NewHandler(logger *slog.Logger, store ManifestStore, docker DockerAPI) *Handler {
	return &Handler{logger: logger, store: store, docker: docker}
}

func Register(app *fiber.App, h *Handler) {
	v1 := app.Group("/api").Group("/v1")

	apps := v1.Group("/apps")
	apps.Get("/", h.ListApps)
	apps.Get("/:name/logs", h.GetAppLogs)
	apps.Post("/:name/restart", h.RestartApp)
	apps.Post("/:name/rebuild", h.RebuildApp)
}

func (h *Handler) ListApps(c *fiber.Ctx) error {
	containers, err := h.listManagedContainers(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	containersByApp := make(map[string]types.Container)
	for _, cont := range containers {
		if appName, ok := cont.Labels[builder.AppLabel]; ok {
			containersByApp[appName] = cont
		}
	}

	manifests := h.store.Snapshot()
	statuses := make([]AppStatus, 0, len(manifests))
	for _, m := range manifests {
		status := AppStatus{
			Name:    m.App,
			State:   "pending",
			Port:    m.Launch.Port,
			Workers: m.Launch.Workers,
			Threads: m.Launch.Threads,
		}

		if cont, ok := containersByApp[m.App]; ok {
			status.ContainerID = shortID(cont.ID)
			status.Image = cont.Image
			status.State = cont.State
			status.Status = cont.Status
		}

		statuses = append(statuses, status)
	}

	return c.JSON(statuses)
}

func (h *Handler) GetAppLogs(c *fiber.Ctx) error {
	name := c.Params("name")

	cont, err := h.findAppContainer(c.Context(), name)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logs, err := h.docker.ContainerLogs(c.Context(), cont.ID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Container logs come multiplexed in the Docker stream format; split
	// the frames back into plain text before handing them to the client.
	reader, writer := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(writer, writer, logs)
		logs.Close()
		writer.CloseWithError(err)
	}()

	c.Set("Content-Type", "text/plain")
	return c.SendStream(reader)
}

func (h *Handler) RestartApp(c *fiber.Ctx) error {
	name := c.Params("name")

	cont, err := h.findAppContainer(c.Context(), name)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Stop only; the reconcile loop brings the app back up.
	if err := h.docker.ContainerStop(c.Context(), cont.ID, container.StopOptions{}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.logger.Info("App restart requested", "appName", name)
	return c.SendStatus(fiber.StatusAccepted)
}

// RebuildApp drops the app's container and images so the reconcile loop
// rebuilds the image from a fresh snapshot and relaunches.
func (h *Handler) RebuildApp(c *fiber.Ctx) error {
	name := c.Params("name")

	if !h.knownApp(name) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": fmt.Sprintf("no app named %s", name),
		})
	}

	if cont, err := h.findAppContainer(c.Context(), name); err == nil {
		if err := h.docker.ContainerStop(c.Context(), cont.ID, container.StopOptions{}); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		if err := h.docker.ContainerRemove(c.Context(), cont.ID, container.RemoveOptions{}); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	if err := h.removeAppImages(c.Context(), name); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.logger.Info("App rebuild requested", "appName", name)
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Handler) listManagedContainers(ctx context.Context) ([]types.Container, error) {
	listFilters := filters.NewArgs(
		filters.KeyValuePair{Key: "label", Value: builder.ManagedLabel + "=true"},
	)
	return h.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: listFilters})
}

func (h *Handler) findAppContainer(ctx context.Context, name string) (types.Container, error) {
	containers, err := h.listManagedContainers(ctx)
	if err != nil {
		return types.Container{}, err
	}

	for _, cont := range containers {
		if cont.Labels[builder.AppLabel] == name {
			return cont, nil
		}
	}
	return types.Container{}, fmt.Errorf("no container for app %s", name)
}

func (h *Handler) knownApp(name string) bool {
	for _, m := range h.store.Snapshot() {
		if m.App == name {
			return true
		}
	}
	return false
}

func (h *Handler) removeAppImages(ctx context.Context, name string) error {
	listFilters := filters.NewArgs(
		filters.KeyValuePair{Key: "label", Value: builder.ManagedLabel + "=true"},
		filters.KeyValuePair{Key: "label", Value: builder.AppLabel + "=" + name},
	)
	images, err := h.docker.ImageList(ctx, image.ListOptions{Filters: listFilters})
	if err != nil {
		return err
	}

	for _, img := range images {
		if _, err := h.docker.ImageRemove(ctx, img.ID, image.RemoveOptions{Force: true}); err != nil {
			return err
		}
	}
	return nil
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
