package entities

import (
	"path"
	"strings"
)

// knownSuffixes lists the source-file extensions FileId.Slug strips.
// Order matters only for readability; suffix matching is exact.
var knownSuffixes = []string{".txt", ".rst", ".yaml"}

// FileId is a canonical, project-relative, POSIX-style path identifying
// a single source file. It is always slash-separated and never carries
// a leading slash or "." / ".." segments once constructed via NewFileId.
type FileId string

// NewFileId reroots an arbitrary path (which may use OS separators, be
// absolute, or carry "." segments) onto a project-relative FileId. The
// root argument is the project source directory; p is resolved relative
// to it if absolute, otherwise treated as already-relative.
func NewFileId(root, p string) FileId {
	p = filepath2Slash(p)
	root = filepath2Slash(root)

	if root != "" && strings.HasPrefix(p, root) {
		p = strings.TrimPrefix(p, root)
	}
	p = strings.TrimPrefix(p, "/")
	p = path.Clean(p)
	if p == "." {
		p = ""
	}
	return FileId(p)
}

// filepath2Slash normalizes OS path separators to forward slashes without
// requiring a dependency on the host's path/filepath behavior at call
// sites that already know they're handling project-relative strings.
func filepath2Slash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// String returns the raw project-relative path.
func (f FileId) String() string { return string(f) }

// Slug returns the FileId with any known source suffix stripped. Slugs
// are the stable identifier used in cross-references and toctrees.
func (f FileId) Slug() string {
	s := string(f)
	for _, suf := range knownSuffixes {
		if strings.HasSuffix(s, suf) {
			return strings.TrimSuffix(s, suf)
		}
	}
	return s
}

// DirHTML returns the slug as a directory: a trailing slash is appended
// unless the slug already names "index" (which maps to the directory
// itself) or is already directory-shaped.
func (f FileId) DirHTML() string {
	slug := f.Slug()
	if slug == "" || strings.HasSuffix(slug, "/") {
		return slug
	}
	if base := path.Base(slug); base == "index" {
		return strings.TrimSuffix(slug, "index")
	}
	return slug + "/"
}

// Ext returns the file extension, including the leading dot.
func (f FileId) Ext() string {
	return path.Ext(string(f))
}

// IsGizaYAML reports whether this FileId names a giza YAML fragment,
// i.e. a ".yaml" file whose basename begins with one of the declared
// category prefixes.
func (f FileId) IsGizaYAML() (category string, ok bool) {
	if f.Ext() != ".yaml" {
		return "", false
	}
	base := path.Base(string(f))
	for _, prefix := range []string{"steps-", "extracts-", "release-", "published-branches-"} {
		if strings.HasPrefix(base, prefix) {
			return strings.TrimSuffix(prefix, "-"), true
		}
	}
	return "", false
}

// IsSourcePage reports whether this FileId names a reStructuredText
// source page (".txt" or ".rst").
func (f FileId) IsSourcePage() bool {
	ext := f.Ext()
	return ext == ".txt" || ext == ".rst"
}

// Join appends a slash-separated relative path to a FileId's directory,
// resolving "." and ".." segments the way a POSIX path join would.
func (f FileId) Join(rel string) FileId {
	dir := path.Dir(string(f))
	if dir == "." {
		dir = ""
	}
	joined := path.Join(dir, rel)
	return FileId(strings.TrimPrefix(joined, "/"))
}
