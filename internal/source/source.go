// Package source acquires the application snapshot that gets copied into
// an image: a local directory, a git repository, or a GitHub tarball.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
)

// Spec declares where the application snapshot comes from. Exactly one
// mode must be set.
type Spec struct {
	// Path to a local directory, resolved against the manifest location.
	Path string `yaml:"path"`
	Git  struct {
		URL string `yaml:"url"`
	} `yaml:"git"`
	GitHub struct {
		Owner      string `yaml:"owner"`
		Repository string `yaml:"repository"`
		Revision   string `yaml:"revision"`
	} `yaml:"github"`
}

func (s Spec) Kind() string {
	switch {
	case s.Path != "":
		return "path"
	case s.Git.URL != "":
		return "git"
	case s.GitHub.Owner != "":
		return "github"
	}
	return ""
}

func (s Spec) Validate() error {
	modes := 0
	if s.Path != "" {
		modes++
	}
	if s.Git.URL != "" {
		modes++
	}
	if s.GitHub.Owner != "" || s.GitHub.Repository != "" {
		if s.GitHub.Owner == "" || s.GitHub.Repository == "" {
			return errors.New("source: github mode needs both owner and repository")
		}
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("source: exactly one of path, git, github must be set, got %d", modes)
	}
	return nil
}

// Identity is a stable string naming the snapshot origin. It feeds the
// image digest so a different origin never reuses a tag.
func (s Spec) Identity() string {
	switch s.Kind() {
	case "path":
		return "path:" + s.Path
	case "git":
		return "git:" + s.Git.URL
	case "github":
		return "github:" + s.GitHub.Owner + "/" + s.GitHub.Repository + "@" + s.GitHub.Revision
	}
	return ""
}

// Fetch materializes the snapshot into destinationDir.
func Fetch(ctx context.Context, spec Spec, githubToken *string, destinationDir string) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	switch spec.Kind() {
	case "path":
		return copyTree(spec.Path, destinationDir)
	case "git":
		_, err := git.PlainCloneContext(ctx, destinationDir, false, &git.CloneOptions{
			URL:   spec.Git.URL,
			Depth: 1,
		})
		if err != nil {
			return fmt.Errorf("source: failed to clone %s: %w", spec.Git.URL, err)
		}
		return nil
	case "github":
		var revision *string
		if spec.GitHub.Revision != "" {
			revision = &spec.GitHub.Revision
		}
		return downloadGitHubTarball(ctx, spec.GitHub.Owner, spec.GitHub.Repository, revision, githubToken, destinationDir)
	}
	return errors.New("source: no mode set")
}

func copyTree(sourceDir string, destinationDir string) error {
	info, err := os.Stat(sourceDir)
	if err != nil {
		return fmt.Errorf("source: cannot read %s: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source: %s is not a directory", sourceDir)
	}

	return filepath.WalkDir(sourceDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destinationDir, relative)

		if entry.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		return copyFile(path, target)
	})
}

func copyFile(sourcePath string, targetPath string) error {
	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	info, err := sourceFile.Stat()
	if err != nil {
		return err
	}

	targetFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(targetFile, sourceFile); err != nil {
		targetFile.Close()
		return err
	}
	return targetFile.Close()
}
