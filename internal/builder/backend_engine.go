package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// EngineBackend builds through the Docker Engine API.
type EngineBackend struct {
	logger       *slog.Logger
	dockerClient *client.Client
}

func NewEngineBackend(logger *slog.Logger, dockerClient *client.Client) EngineBackend {
	return EngineBackend{logger: logger, dockerClient: dockerClient}
}

func (e EngineBackend) Name() string { return "engine" }

func (e EngineBackend) Build(ctx context.Context, req BuildRequest) error {
	buildContext, err := archive.TarWithOptions(req.ContextDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContext.Close()

	res, err := e.dockerClient.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:       []string{req.Tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
		Labels:     req.Labels,
	})
	if err != nil {
		return fmt.Errorf("build of %s failed: %w", req.Tag, err)
	}
	defer res.Body.Close()

	// The engine streams progress as json messages and reports step
	// failures inside the stream, not as an HTTP error.
	decoder := json.NewDecoder(res.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read build stream for %s: %w", req.Tag, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("build of %s failed: %w", req.Tag, msg.Error)
		}
		if msg.Stream != "" {
			e.logger.Debug("Build output", "appName", req.App, "output", msg.Stream)
		}
	}

	return nil
}
