package manifest

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Package name grammar for the dependency manifest: alphanumeric with
// inner dots, underscores and hyphens. Anything else fails the build
// before a single build step runs.
var packageNameRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// Characters that end the package name part of a specifier line:
// version operators, extras, environment markers and whitespace.
const specifierDelimiters = "[<>=!~; \t"

type Requirement struct {
	// Name of the package, without extras or version constraints.
	Name string
	// Raw is the full specifier line as written.
	Raw string
	// Line number in the manifest, for error reporting.
	Line int
}

// ParseRequirements reads a dependency manifest in the one-specifier-per-
// line format. Blank lines and # comments are skipped. The order of the
// returned set matches the file, which is what makes installs
// deterministic given the same input.
func ParseRequirements(r io.Reader) ([]Requirement, error) {
	scanner := bufio.NewScanner(r)

	var requirements []Requirement
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()

		line = stripComment(line)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		name := line
		rest := ""
		if i := strings.IndexAny(line, specifierDelimiters); i >= 0 {
			name = line[:i]
			rest = strings.TrimSpace(line[i:])
		}

		if !packageNameRegex.MatchString(name) {
			return nil, fmt.Errorf("requirements line %d: invalid package name %q", lineNumber, name)
		}
		if rest != "" && !strings.ContainsAny(rest[:1], "[<>=!~;") {
			return nil, fmt.Errorf("requirements line %d: invalid specifier %q", lineNumber, line)
		}

		requirements = append(requirements, Requirement{
			Name: name,
			Raw:  line,
			Line: lineNumber,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return requirements, nil
}

// A comment starts at "# " on its own line or at " #" after a specifier.
// A bare "#" glued to other characters is not a comment, so a line like
// "###not-a-package" reaches name validation and fails the build.
func stripComment(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "#" || strings.HasPrefix(trimmed, "# ") {
		return ""
	}

	for i := 1; i < len(line); i++ {
		if line[i] == '#' && (line[i-1] == ' ' || line[i-1] == '\t') {
			return line[:i]
		}
	}
	return line
}
