package source

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"
)

func TestSpecValidate(t *testing.T) {
	var pathSpec Spec
	pathSpec.Path = "./app"
	if err := pathSpec.Validate(); err != nil {
		t.Fatal(err)
	}

	var none Spec
	if err := none.Validate(); err == nil {
		t.Fatal("Expected error for empty spec")
	}

	both := pathSpec
	both.Git.URL = "https://example.com/repo.git"
	if err := both.Validate(); err == nil {
		t.Fatal("Expected error for two modes")
	}

	var halfGitHub Spec
	halfGitHub.GitHub.Owner = "someone"
	if err := halfGitHub.Validate(); err == nil {
		t.Fatal("Expected error for github mode without repository")
	}
}

func TestSpecIdentity_DistinguishesOrigins(t *testing.T) {
	var a, b Spec
	a.Git.URL = "https://example.com/one.git"
	b.Git.URL = "https://example.com/two.git"

	if a.Identity() == b.Identity() {
		t.Fatal("Expected different identities for different origins")
	}
}

func TestCopyTree(t *testing.T) {
	sourceDir := t.TempDir()
	destinationDir := t.TempDir()

	if err := os.MkdirAll(filepath.Join(sourceDir, "routes"), 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"app.py":           "app = object()\n",
		"requirements.txt": "flask==3.0.0\n",
		"routes/health.py": "def health(): pass\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(sourceDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := copyTree(sourceDir, destinationDir); err != nil {
		t.Fatal(err)
	}

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(destinationDir, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != content {
			t.Fatalf("File %s: expected %q, got %q", name, content, got)
		}
	}
}

func TestUntar_StripsTarballRoot(t *testing.T) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	entries := []struct {
		name     string
		typeflag byte
		content  string
	}{
		{"owner-repo-abc123/", tar.TypeDir, ""},
		{"owner-repo-abc123/app.py", tar.TypeReg, "app = object()\n"},
		{"owner-repo-abc123/routes/", tar.TypeDir, ""},
		{"owner-repo-abc123/routes/health.py", tar.TypeReg, "def health(): pass\n"},
	}
	for _, entry := range entries {
		header := &tar.Header{
			Name:     entry.name,
			Typeflag: entry.typeflag,
			Mode:     0644,
			Size:     int64(len(entry.content)),
		}
		if entry.typeflag == tar.TypeDir {
			header.Mode = 0755
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			t.Fatal(err)
		}
		if entry.content != "" {
			if _, err := tarWriter.Write([]byte(entry.content)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tarWriter.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatal(err)
	}

	destinationDir := t.TempDir()
	if err := untar(destinationDir, &buf); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(destinationDir, "app.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "app = object()\n" {
		t.Fatalf("Unexpected content %q", got)
	}
	if _, err := os.Stat(filepath.Join(destinationDir, "routes", "health.py")); err != nil {
		t.Fatal(err)
	}
}
