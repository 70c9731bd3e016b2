// Package configuration watches the deploy-manifest directory and pushes
// the decoded set to the container manager whenever it changes.
package configuration

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kinopiokinopiko/slipway/internal/manifest"
)

var tickInterval = 15 * time.Second

type AppsReceiver interface {
	UpdateApps([]manifest.Manifest)
}

type Manager struct {
	logger       *slog.Logger
	manifestsDir string
	receiver     AppsReceiver
	ticker       *time.Ticker

	mu sync.RWMutex
	// nil = haven't loaded manifests yet
	lastManifests []manifest.Manifest
	lastDigest    string
}

func NewManager(logger *slog.Logger, manifestsDir string, receiver AppsReceiver) *Manager {
	return &Manager{
		logger:       logger,
		manifestsDir: manifestsDir,
		receiver:     receiver,
		ticker:       time.NewTicker(tickInterval),
	}
}

func (m *Manager) Start(ctx context.Context) {
	m.checkForChanges()
	for {
		select {
		case <-m.ticker.C:
			m.checkForChanges()
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot returns the last good manifest set. Used by the management API.
func (m *Manager) Snapshot() []manifest.Manifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]manifest.Manifest(nil), m.lastManifests...)
}

func (m *Manager) checkForChanges() {
	m.logger.Debug("Manifest check started")

	digest, err := directoryDigest(m.manifestsDir)
	if err != nil {
		m.logger.Error("Failed to read manifests directory", "dir", m.manifestsDir, "err", err)
		return
	}

	m.mu.RLock()
	unchanged := m.lastManifests != nil && m.lastDigest == digest
	m.mu.RUnlock()
	if unchanged {
		m.logger.Debug("Manifests haven't changed")
		return
	}

	manifests, err := manifest.LoadDir(m.manifestsDir)
	if err != nil {
		// Keep serving the last good set; a broken edit must not take
		// running apps down.
		m.logger.Error("Failed to load manifests", "err", err)
		return
	}

	m.mu.Lock()
	m.lastManifests = manifests
	m.lastDigest = digest
	m.mu.Unlock()

	m.logger.Info("Manifest configuration changed", "apps", len(manifests))
	m.receiver.UpdateApps(manifests)

	m.logger.Debug("Manifest check finished")
}

// directoryDigest hashes manifest file names and contents in sorted
// order, which is cheaper than decoding every file each tick.
func directoryDigest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	hash := sha256.New()
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return "", err
		}
		hash.Write([]byte(name))
		hash.Write([]byte{0})
		hash.Write(content)
		hash.Write([]byte{0})
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
