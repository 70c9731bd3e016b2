// Package dockerfile renders the build recipe for an app image. Rendering
// is a pure function of the manifest: identical input yields byte-identical
// output, which is what the image digest is computed from.
package dockerfile

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/kinopiokinopiko/slipway/internal/manifest"
)

// Step order is fixed: base image, OS packages (with the package cache
// cleared in the same layer), dependency manifest install, explicit
// process-server install, source copy, port, startup command. The
// dependency install happens before the source copy so a broken manifest
// fails the build before any snapshot content enters the image.
const fileTemplate = `FROM {{ .BaseImage }}

WORKDIR /app
{{ if .SystemPackages }}
RUN apt-get update \
    && apt-get install -y --no-install-recommends {{ join .SystemPackages " " }} \
    && rm -rf /var/lib/apt/lists/*
{{ end }}
COPY {{ .Requirements }} ./{{ .Requirements }}
RUN pip install --no-cache-dir -r {{ .Requirements }} \
    && pip install --no-cache-dir {{ .Server }}

COPY . .

EXPOSE {{ .Port }}

CMD [{{ .Command }}]
`

var parsedTemplate = template.Must(
	template.New("dockerfile").
		Funcs(template.FuncMap{"join": strings.Join}).
		Parse(fileTemplate),
)

type templateData struct {
	BaseImage      string
	SystemPackages []string
	Requirements   string
	Server         string
	Port           int
	Command        string
}

func Render(m manifest.Manifest) (string, error) {
	data := templateData{
		BaseImage:      m.BaseImage,
		SystemPackages: m.SystemPackages,
		Requirements:   m.Requirements,
		Server:         m.Launch.Server,
		Port:           m.Launch.Port,
		Command:        execForm(m.Launch.Command()),
	}

	var rendered strings.Builder
	if err := parsedTemplate.Execute(&rendered, data); err != nil {
		return "", fmt.Errorf("failed to render dockerfile for %s: %w", m.App, err)
	}
	return rendered.String(), nil
}

// execForm renders an argv as the comma-separated quoted list Docker
// expects inside CMD [...].
func execForm(argv []string) string {
	quoted := make([]string, 0, len(argv))
	for _, arg := range argv {
		quoted = append(quoted, strconv.Quote(arg))
	}
	return strings.Join(quoted, ", ")
}
