// Package containermanager keeps exactly one container per app running
// with the image and launch configuration its manifest declares. It is
// the external supervisor the image itself does not have: crashed
// containers are restarted on the next reconcile tick, changed
// configurations are rolled by stop, remove, recreate.
package containermanager

import (
	"context"
	"log/slog"
	"time"

	"github.com/docker/docker/client"

	"github.com/kinopiokinopiko/slipway/internal/builder"
	"github.com/kinopiokinopiko/slipway/internal/manifest"
	"github.com/kinopiokinopiko/slipway/internal/queues"
)

var tickInterval = 10 * time.Second

const configDigestLabel = "io.slipway.config-digest"

type Manager struct {
	logger            *slog.Logger
	dockerClient      *client.Client
	imageBuilder      *builder.Builder
	resourcePrefix    string
	appsChangeChannel chan []manifest.Manifest
	ticker            *time.Ticker
	// nil = haven't received a configuration yet
	manifests      []manifest.Manifest
	buildProcessor *queues.UniqueJobProcessor
}

func NewManager(
	logger *slog.Logger,
	dockerClient *client.Client,
	imageBuilder *builder.Builder,
	resourcePrefix string,
) *Manager {
	return &Manager{
		logger:            logger,
		dockerClient:      dockerClient,
		imageBuilder:      imageBuilder,
		resourcePrefix:    resourcePrefix,
		appsChangeChannel: make(chan []manifest.Manifest),
		ticker:            time.NewTicker(tickInterval),
		manifests:         nil,
		buildProcessor:    queues.NewUniqueJobProcessor(1),
	}
}

func (m *Manager) Start(ctx context.Context) {
	go m.buildProcessor.Start(ctx)

	for {
		select {
		case newManifests := <-m.appsChangeChannel:
			m.manifests = newManifests

		case <-m.ticker.C:

		case event := <-m.buildProcessor.JobFinishedChannel:
			if event.Result != nil {
				// No internal retry; the next tick queues the build again.
				m.logger.Error("Build failed", "appName", event.Id, "err", event.Result)
				continue
			}

		case <-ctx.Done():
			return
		}

		m.logger.Debug("Container reconcile started")
		m.reconcile(ctx)
		m.logger.Debug("Container reconcile finished")
	}
}

func (m *Manager) UpdateApps(manifests []manifest.Manifest) {
	m.appsChangeChannel <- manifests
}

func (m *Manager) containerName(app manifest.Manifest) string {
	return m.resourcePrefix + app.App
}
