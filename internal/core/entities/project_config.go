package entities

// ProjectConfig holds the fields of a project's declarative configuration
// that the core consumes (spec.md §3, §6). Loading the file itself, and
// any CLI-only convenience layering, is the adapter's job; ProjectConfig
// is the pure value the rest of the engine depends on.
type ProjectConfig struct {
	Name                string
	Title               string
	Source              string // source subdirectory, default "source"
	DefaultDomain       string
	Constants           map[string]string
	Substitutions       map[string]string
	Intersphinx         []string
	TocLandingPages     []string
	SharedincludeRoot   string
	PageGroups          map[string][]string
	AssociatedProducts  []AssociatedProduct
	DeprecatedVersions  map[string][]string
	Manpages            map[string]string
	BundleManpages      string
	Data                map[string]any // validated against the spec's data-fields allow list
}

// AssociatedProduct names a product this project's docs are versioned
// against, with an optional list of applicable versions.
type AssociatedProduct struct {
	Name     string
	Versions []string
}

// DefaultProjectConfig returns the zero-value-safe defaults a project
// config starts from before a docpiler.toml is merged in.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Source:             "source",
		Constants:          map[string]string{},
		Substitutions:      map[string]string{},
		PageGroups:         map[string][]string{},
		DeprecatedVersions: map[string][]string{},
		Manpages:           map[string]string{},
		Data:               map[string]any{},
	}
}

// RenderConstants resolves self-referential constants: a constant's
// value may reference another constant by name inside `{{name}}`
// placeholders, resolved before any page is parsed (spec.md §3
// "Lifecycle"). Unresolvable placeholders are left as literal text; the
// caller is expected to have already validated there are no cycles via
// RenderConstants's cycle detection, which reports one via the returned
// error.
func (c *ProjectConfig) RenderConstants() error {
	rendered := make(map[string]string, len(c.Constants))
	visiting := make(map[string]bool, len(c.Constants))

	var resolve func(name string) (string, error)
	resolve = func(name string) (string, error) {
		if v, ok := rendered[name]; ok {
			return v, nil
		}
		if visiting[name] {
			return "", ErrInheritanceCycle
		}
		raw, ok := c.Constants[name]
		if !ok {
			return "", nil
		}
		visiting[name] = true
		out := SubstitutePlaceholders(raw, func(placeholder string) (string, bool) {
			if placeholder == name {
				return "", false
			}
			v, err := resolve(placeholder)
			if err != nil {
				return "", false
			}
			return v, true
		})
		visiting[name] = false
		rendered[name] = out
		return out, nil
	}

	for name := range c.Constants {
		v, err := resolve(name)
		if err != nil {
			return err
		}
		rendered[name] = v
	}
	c.Constants = rendered
	return nil
}
