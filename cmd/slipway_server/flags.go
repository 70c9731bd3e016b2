package main

import (
	"flag"
	"log/slog"
	"os"
)

type flags struct {
	manifestsDir       string
	managedStoragePath string
	resourcePrefix     string
	apiAddress         string
	buildBackend       string
	logLevel           slog.Level
	githubToken        *string
}

func loadFlags(logger *slog.Logger) flags {
	manifestsDir := flag.String("manifestsDir", "", "required: Directory with deploy manifests, one yaml file per app")
	managedStoragePath := flag.String("managedStoragePath", "tmp", "Path to a directory where slipway stores build staging data")
	resourcePrefix := flag.String("resourcePrefix", "slipway_", "Prefix for image and container names")
	apiAddress := flag.String("apiAddress", ":8080", "Listen address of the management API")
	buildBackend := flag.String("buildBackend", "engine", "Image build backend: engine or cli")
	logLevel := flag.String("logLevel", "info", "Log level: debug, info, warn, error")
	githubToken := flag.String("githubToken", "", "Token used for fetching snapshots from GitHub")

	flag.Parse()

	// Checking required flags
	if *manifestsDir == "" {
		logger.Error("Flag 'manifestsDir' is required")
		os.Exit(1)
	}
	if *managedStoragePath == "" {
		logger.Error("Flag 'managedStoragePath' is required")
		os.Exit(1)
	}
	if *buildBackend != "engine" && *buildBackend != "cli" {
		logger.Error("Flag 'buildBackend' must be 'engine' or 'cli'", "got", *buildBackend)
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		logger.Error("Flag 'logLevel' is invalid", "got", *logLevel)
		os.Exit(1)
	}

	// Nulling flags that weren't passed
	if *githubToken == "" {
		githubToken = nil
	}

	return flags{
		manifestsDir:       *manifestsDir,
		managedStoragePath: *managedStoragePath,
		resourcePrefix:     *resourcePrefix,
		apiAddress:         *apiAddress,
		buildBackend:       *buildBackend,
		logLevel:           level,
		githubToken:        githubToken,
	}
}
