// Package manifest loads and validates the declarative deploy manifests
// that drive the build and launch pipeline. One YAML file per app; the
// app name comes from the file name.
package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kinopiokinopiko/slipway/internal/launch"
	"github.com/kinopiokinopiko/slipway/internal/source"
)

const DefaultBaseImage = "python:3.11-slim"
const DefaultRequirements = "requirements.txt"

// System packages needed so a relational-database client library can
// compile and link inside the image.
var defaultSystemPackages = []string{"gcc", "libpq-dev"}

type Manifest struct {
	// App is derived from the manifest file name, not the document.
	App string `yaml:"-"`

	Version   int    `yaml:"version" validate:"required,oneof=1"`
	BaseImage string `yaml:"baseImage" validate:"required"`
	// SystemPackages are installed with the OS package manager before any
	// language-level dependency.
	SystemPackages []string `yaml:"systemPackages"`
	// Requirements is the dependency manifest path inside the snapshot.
	Requirements string        `yaml:"requirements" validate:"required"`
	Source       source.Spec   `yaml:"source"`
	Launch       launch.Config `yaml:"launch"`
}

func Load(filePath string) (Manifest, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Manifest{}, err
	}
	defer file.Close()

	decoded := Manifest{}
	if err := yaml.NewDecoder(file).Decode(&decoded); err != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest %s: %w", filePath, err)
	}

	decoded.App = appNameFromFile(filePath)
	decoded = decoded.applyDefaults()

	if err := decoded.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("invalid manifest %s: %w", filePath, err)
	}

	// Local source paths are relative to the manifest file.
	if decoded.Source.Path != "" && !filepath.IsAbs(decoded.Source.Path) {
		decoded.Source.Path = filepath.Join(filepath.Dir(filePath), decoded.Source.Path)
	}

	return decoded, nil
}

// LoadDir reads every regular yaml file in dir, sorted by name so the
// resulting order is stable between runs.
func LoadDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	manifests := make([]Manifest, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		decoded, err := Load(path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, decoded)
	}

	sort.Slice(manifests, func(i, j int) bool { return manifests[i].App < manifests[j].App })

	if err := CheckNameCollisions(manifests); err != nil {
		return nil, err
	}
	return manifests, nil
}

func (m Manifest) applyDefaults() Manifest {
	if m.BaseImage == "" {
		m.BaseImage = DefaultBaseImage
	}
	if m.Requirements == "" {
		m.Requirements = DefaultRequirements
	}
	if m.SystemPackages == nil {
		m.SystemPackages = append([]string(nil), defaultSystemPackages...)
	}
	m.Launch = m.Launch.ApplyDefaults()
	return m
}

func (m Manifest) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(m); err != nil {
		return err
	}

	for _, pkg := range m.SystemPackages {
		if strings.TrimSpace(pkg) == "" {
			return fmt.Errorf("empty system package name")
		}
	}
	if strings.Contains(m.Requirements, "..") {
		return fmt.Errorf("requirements path %q escapes the snapshot", m.Requirements)
	}

	if err := m.Source.Validate(); err != nil {
		return err
	}
	return m.Launch.Validate()
}

func CheckNameCollisions(manifests []Manifest) error {
	seen := make(map[string]bool, len(manifests))
	var duplicates []string
	for _, m := range manifests {
		if seen[m.App] {
			duplicates = append(duplicates, m.App)
			continue
		}
		seen[m.App] = true
	}

	if len(duplicates) > 0 {
		return fmt.Errorf("multiple manifests declare the same app name: %v", duplicates)
	}
	return nil
}

func appNameFromFile(filePath string) string {
	return strings.Split(filepath.Base(filePath), ".")[0]
}
