package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// CLIBackend shells out to the docker binary. It exists for hosts where
// the daemon socket is not reachable from this process but the CLI is
// configured, e.g. remote contexts.
type CLIBackend struct {
	logger *slog.Logger
}

func NewCLIBackend(logger *slog.Logger) CLIBackend {
	return CLIBackend{logger: logger}
}

func (c CLIBackend) Name() string { return "cli" }

func (c CLIBackend) Build(ctx context.Context, req BuildRequest) error {
	args := []string{"build", req.ContextDir, "--tag", req.Tag}
	for name, value := range req.Labels {
		args = append(args, "--label", name+"="+value)
	}

	stdout, stderr, err := runCommand(ctx, "docker", args...)
	if err != nil {
		c.logger.Error("Build failed", "appName", req.App, "stdout", stdout.String(), "stderr", stderr.String())
		return fmt.Errorf("build of %s failed: %w", req.Tag, err)
	}

	c.logger.Debug("Build output", "appName", req.App, "stdout", stdout.String(), "stderr", stderr.String())
	return nil
}

func runCommand(ctx context.Context, name string, arg ...string) (bytes.Buffer, bytes.Buffer, error) {
	var stdout bytes.Buffer
	var stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err == nil && cmd.ProcessState.ExitCode() != 0 {
		err = errors.New("process returned non-zero exit code")
	}

	return stdout, stderr, err
}
