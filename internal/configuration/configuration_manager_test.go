package configuration

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/kinopiokinopiko/slipway/internal/manifest"
)

type recordingReceiver struct {
	updates [][]manifest.Manifest
}

func (r *recordingReceiver) UpdateApps(manifests []manifest.Manifest) {
	r.updates = append(r.updates, manifests)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeManifest(t *testing.T, dir string, name string, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

const validManifest = "version: 1\nsource:\n  path: ./app\n"

func TestCheckForChanges_PushesOnFirstLoad(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "portfolio.yaml", validManifest)

	receiver := &recordingReceiver{}
	m := NewManager(testLogger(), dir, receiver)

	m.checkForChanges()

	if len(receiver.updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(receiver.updates))
	}
	if len(receiver.updates[0]) != 1 || receiver.updates[0][0].App != "portfolio" {
		t.Fatalf("Unexpected update %+v", receiver.updates[0])
	}
}

func TestCheckForChanges_SkipsUnchangedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "portfolio.yaml", validManifest)

	receiver := &recordingReceiver{}
	m := NewManager(testLogger(), dir, receiver)

	m.checkForChanges()
	m.checkForChanges()

	if len(receiver.updates) != 1 {
		t.Fatalf("Expected 1 update for an unchanged directory, got %d", len(receiver.updates))
	}
}

func TestCheckForChanges_PushesOnEdit(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "portfolio.yaml", validManifest)

	receiver := &recordingReceiver{}
	m := NewManager(testLogger(), dir, receiver)

	m.checkForChanges()
	writeManifest(t, dir, "portfolio.yaml", "version: 1\nsource:\n  path: ./app\nlaunch:\n  workers: 3\n")
	m.checkForChanges()

	if len(receiver.updates) != 2 {
		t.Fatalf("Expected 2 updates, got %d", len(receiver.updates))
	}
	if receiver.updates[1][0].Launch.Workers != 3 {
		t.Fatalf("Expected updated manifest, got %+v", receiver.updates[1][0].Launch)
	}
}

func TestCheckForChanges_KeepsLastGoodSetOnBrokenEdit(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "portfolio.yaml", validManifest)

	receiver := &recordingReceiver{}
	m := NewManager(testLogger(), dir, receiver)

	m.checkForChanges()
	writeManifest(t, dir, "portfolio.yaml", "version: 99\n")
	m.checkForChanges()

	if len(receiver.updates) != 1 {
		t.Fatalf("Expected no update for a broken manifest, got %d", len(receiver.updates))
	}

	snapshot := m.Snapshot()
	if len(snapshot) != 1 || snapshot[0].App != "portfolio" {
		t.Fatalf("Expected the last good set to survive, got %+v", snapshot)
	}
}

func TestDirectoryDigest_IgnoresNonManifestFiles(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "portfolio.yaml", validManifest)

	before, err := directoryDigest(dir)
	if err != nil {
		t.Fatal(err)
	}

	writeManifest(t, dir, "notes.txt", "scratch")
	after, err := directoryDigest(dir)
	if err != nil {
		t.Fatal(err)
	}

	if before != after {
		t.Fatal("Expected non-manifest files to be ignored")
	}
}
