package entities

import (
	"regexp"
	"strings"
)

// namePattern allows alphanumeric, hyphens, underscores, and spaces;
// must start with a letter or number. Used for ProjectConfig.Name and
// .Title (spec.md §3/§6).
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\- ]*$`)

// ValidateName checks that a project name or title is non-empty and
// free of characters that would be awkward in generated output paths
// or `{{name}}` constant substitution (spec.md §6's RenderConstants).
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}

// ValidatePath checks that a configured path (e.g. ProjectConfig.Source
// or .SharedincludeRoot) is non-empty and does not escape the project
// root via `..` traversal.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.Contains(path, "..") {
		return ErrInvalidName
	}
	return nil
}
