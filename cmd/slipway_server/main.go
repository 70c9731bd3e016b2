package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/docker/docker/client"
	"github.com/gofiber/fiber/v2"

	"github.com/kinopiokinopiko/slipway/internal/api"
	"github.com/kinopiokinopiko/slipway/internal/builder"
	"github.com/kinopiokinopiko/slipway/internal/configuration"
	"github.com/kinopiokinopiko/slipway/internal/containermanager"
)

func main() {
	ctx := context.Background()

	logLevel := new(slog.LevelVar)
	logger := slog.New(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}),
	)

	flags := loadFlags(logger)
	logLevel.Set(flags.logLevel)

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		logger.Error("Failed to initialize docker client", "err", err)
		os.Exit(1)
	}

	var buildBackend builder.Backend
	switch flags.buildBackend {
	case "cli":
		buildBackend = builder.NewCLIBackend(logger)
	default:
		buildBackend = builder.NewEngineBackend(logger, dockerClient)
	}

	imageBuilder := builder.New(
		logger,
		dockerClient,
		buildBackend,
		flags.managedStoragePath,
		flags.resourcePrefix,
		flags.githubToken,
	)
	managerInstance := containermanager.NewManager(
		logger,
		dockerClient,
		imageBuilder,
		flags.resourcePrefix,
	)
	configurationManager := configuration.NewManager(
		logger,
		flags.manifestsDir,
		managerInstance,
	)

	go managerInstance.Start(ctx)
	go configurationManager.Start(ctx)

	app := fiber.New()
	api.Register(app, api.NewHandler(logger, configurationManager, dockerClient))

	logger.Info("Management API listening", "address", flags.apiAddress)
	if err := app.Listen(flags.apiAddress); err != nil {
		logger.Error("Management API failed", "err", err)
		os.Exit(1)
	}
}
