package containermanager

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/kinopiokinopiko/slipway/internal/builder"
	"github.com/kinopiokinopiko/slipway/internal/launch"
	"github.com/kinopiokinopiko/slipway/internal/manifest"
)

// desiredState is everything the running container must agree with. Its
// digest is written as a label at create time; a mismatch on a later
// reconcile means the configuration changed and the container is rolled.
type desiredState struct {
	Image  string
	Launch launch.Config
}

func (d desiredState) Digest() string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(fmt.Sprintf("%v", d))))
}

func (m *Manager) reconcile(ctx context.Context) {
	for _, app := range m.manifests {
		m.reconcileApp(ctx, app)
	}
}

func (m *Manager) reconcileApp(ctx context.Context, app manifest.Manifest) {
	if !m.imageBuilder.IsBuilt(ctx, app) {
		m.logger.Info("App build queued", "appName", app.App)
		m.buildProcessor.Process(app.App, func() error {
			return m.imageBuilder.Build(ctx, app)
		})
		return
	}

	imageReference, err := m.imageBuilder.ImageReference(ctx, app)
	if err != nil {
		m.logger.Error("Failed to resolve image reference", "appName", app.App, "err", err)
		return
	}
	desired := desiredState{Image: imageReference, Launch: app.Launch}

	containers, err := m.listAppContainers(ctx, app)
	if err != nil {
		m.logger.Error("Failed to list containers", "appName", app.App, "err", err)
		return
	}

	if len(containers) == 0 {
		if err := m.createAndStart(ctx, app, desired); err != nil {
			m.logger.Error("Failed to start app", "appName", app.App, "image", desired.Image, "err", err)
			return
		}
		m.logger.Info("App started", "appName", app.App, "image", desired.Image)
		return
	}

	// Exactly one container per app; extras are leftovers from crashes
	// between create and a failed remove.
	for _, extra := range containers[1:] {
		m.removeContainer(ctx, extra.ID)
	}

	current := containers[0]
	if current.Labels[configDigestLabel] != desired.Digest() {
		m.logger.Info("App configuration changed, re-creating container", "appName", app.App, "image", desired.Image)

		m.removeContainer(ctx, current.ID)
		if err := m.createAndStart(ctx, app, desired); err != nil {
			m.logger.Error("Failed to start app", "appName", app.App, "image", desired.Image, "err", err)
		}
		return
	}

	if current.State != "running" {
		m.logger.Info("Restarting stopped container", "appName", app.App, "state", current.State)
		if err := m.dockerClient.ContainerStart(ctx, current.ID, container.StartOptions{}); err != nil {
			m.logger.Error("Failed to start container", "appName", app.App, "err", err)
		}
	}
}

func (m *Manager) listAppContainers(ctx context.Context, app manifest.Manifest) ([]types.Container, error) {
	listFilters := filters.NewArgs(
		filters.KeyValuePair{Key: "label", Value: builder.ManagedLabel + "=true"},
		filters.KeyValuePair{Key: "label", Value: builder.AppLabel + "=" + app.App},
	)
	return m.dockerClient.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: listFilters,
	})
}

func (m *Manager) createAndStart(ctx context.Context, app manifest.Manifest, desired desiredState) error {
	exposedPorts, portBindings := app.Launch.PortBindings()

	created, err := m.dockerClient.ContainerCreate(
		ctx,
		&container.Config{
			Image:        desired.Image,
			ExposedPorts: exposedPorts,
			Labels: map[string]string{
				builder.ManagedLabel: "true",
				builder.AppLabel:     app.App,
				configDigestLabel:    desired.Digest(),
			},
		},
		&container.HostConfig{
			PortBindings: portBindings,
		},
		nil,
		nil,
		m.containerName(app),
	)
	if err != nil {
		return err
	}

	return m.dockerClient.ContainerStart(ctx, created.ID, container.StartOptions{})
}

func (m *Manager) removeContainer(ctx context.Context, id string) {
	if err := m.dockerClient.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		m.logger.Error("Failed to stop container", "containerId", id, "err", err)
	}
	if err := m.dockerClient.ContainerRemove(ctx, id, container.RemoveOptions{}); err != nil {
		m.logger.Error("Failed to remove container", "containerId", id, "err", err)
	}
}
