// Package builder turns a validated deploy manifest into a tagged,
// immutable image. A build either produces a fully tagged image or
// nothing; there is no partially built artifact to clean up because the
// tag is only applied by the backend on success.
package builder

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/kinopiokinopiko/slipway/internal/dockerfile"
	"github.com/kinopiokinopiko/slipway/internal/manifest"
	"github.com/kinopiokinopiko/slipway/internal/source"
)

const ManagedLabel = "io.slipway.managed"
const AppLabel = "io.slipway.app"

type BuildRequest struct {
	App        string
	Tag        string
	ContextDir string
	Labels     map[string]string
}

// Backend performs the actual image build from a prepared context
// directory containing the snapshot and the rendered Dockerfile.
type Backend interface {
	Name() string
	Build(ctx context.Context, req BuildRequest) error
}

type Builder struct {
	logger         *slog.Logger
	dockerClient   *client.Client
	backend        Backend
	storagePath    string
	resourcePrefix string
	githubToken    *string
}

func New(
	logger *slog.Logger,
	dockerClient *client.Client,
	backend Backend,
	storagePath string,
	resourcePrefix string,
	githubToken *string,
) *Builder {
	return &Builder{
		logger:         logger,
		dockerClient:   dockerClient,
		backend:        backend,
		storagePath:    storagePath,
		resourcePrefix: resourcePrefix,
		githubToken:    githubToken,
	}
}

// ImageReference is <prefix><app>:<digest>. The digest covers the
// rendered Dockerfile, the snapshot origin, and a source pin: the
// dependency-manifest content for local paths, the resolved commit hash
// for git and github. Editing requirements.txt or pushing a commit
// therefore changes the reference, and the reconcile loop rebuilds and
// rolls the container instead of reusing the stale image.
func (b *Builder) ImageReference(ctx context.Context, m manifest.Manifest) (string, error) {
	rendered, err := dockerfile.Render(m)
	if err != nil {
		return "", err
	}
	pin, err := b.sourcePin(ctx, m)
	if err != nil {
		return "", err
	}

	hash := sha256.New()
	hash.Write([]byte(rendered))
	hash.Write([]byte{0})
	hash.Write([]byte(m.Source.Identity()))
	hash.Write([]byte{0})
	hash.Write([]byte(pin))
	digest := fmt.Sprintf("%x", hash.Sum(nil))

	return fmt.Sprintf("%s%s:%s", b.resourcePrefix, m.App, digest[:16]), nil
}

func (b *Builder) sourcePin(ctx context.Context, m manifest.Manifest) (string, error) {
	switch m.Source.Kind() {
	case "path":
		content, err := os.ReadFile(filepath.Join(m.Source.Path, m.Requirements))
		if err != nil {
			return "", fmt.Errorf("dependency manifest %s unreadable in %s: %w", m.Requirements, m.Source.Path, err)
		}
		return fmt.Sprintf("%x", sha256.Sum256(content)), nil
	case "git":
		return source.ResolveGitHead(ctx, m.Source.Git.URL)
	case "github":
		g := m.Source.GitHub
		return source.ResolveGitHubCommit(ctx, g.Owner, g.Repository, g.Revision, b.githubToken)
	}
	return "", fmt.Errorf("app %s has no source mode", m.App)
}

func (b *Builder) IsBuilt(ctx context.Context, m manifest.Manifest) bool {
	reference, err := b.ImageReference(ctx, m)
	if err != nil {
		b.logger.Error("Failed to resolve image reference", "appName", m.App, "err", err)
		return false
	}

	listFilters := filters.NewArgs(
		filters.KeyValuePair{Key: "reference", Value: reference},
		filters.KeyValuePair{Key: "label", Value: ManagedLabel},
	)

	images, err := b.dockerClient.ImageList(ctx, image.ListOptions{Filters: listFilters})
	if err != nil {
		b.logger.Error("Failed to list images", "err", err, "reference", reference)
		return false
	}
	return len(images) > 0
}

// Build runs the build phase in its fixed order: render the recipe,
// fetch the snapshot, validate the dependency manifest, then hand the
// context to the backend. Validation failures abort before any image
// build step executes.
func (b *Builder) Build(ctx context.Context, m manifest.Manifest) error {
	rendered, err := dockerfile.Render(m)
	if err != nil {
		return err
	}
	tag, err := b.ImageReference(ctx, m)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(b.storagePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage path: %w", err)
	}
	stagingDir, err := os.MkdirTemp(b.storagePath, "build-"+m.App+"-")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %w", err)
	}
	defer func() {
		if removeErr := os.RemoveAll(stagingDir); removeErr != nil {
			b.logger.Error("Failed to remove staging dir", "path", stagingDir, "err", removeErr)
		}
	}()

	if err := source.Fetch(ctx, m.Source, b.githubToken, stagingDir); err != nil {
		return err
	}

	if err := b.validateRequirements(stagingDir, m); err != nil {
		return err
	}

	dockerfilePath := filepath.Join(stagingDir, "Dockerfile")
	if err := os.WriteFile(dockerfilePath, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("failed to write dockerfile: %w", err)
	}

	b.logger.Info("Starting to build image", "appName", m.App, "tag", tag, "backend", b.backend.Name())
	err = b.backend.Build(ctx, BuildRequest{
		App:        m.App,
		Tag:        tag,
		ContextDir: stagingDir,
		Labels: map[string]string{
			ManagedLabel: "true",
			AppLabel:     m.App,
		},
	})
	if err != nil {
		return err
	}

	b.logger.Info("Build finished", "appName", m.App, "tag", tag)
	return nil
}

func (b *Builder) validateRequirements(stagingDir string, m manifest.Manifest) error {
	file, err := os.Open(filepath.Join(stagingDir, m.Requirements))
	if err != nil {
		return fmt.Errorf("dependency manifest %s missing from snapshot of %s: %w", m.Requirements, m.App, err)
	}
	defer file.Close()

	if _, err := manifest.ParseRequirements(file); err != nil {
		return fmt.Errorf("app %s: %w", m.App, err)
	}
	return nil
}
