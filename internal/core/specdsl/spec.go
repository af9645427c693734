// Package specdsl loads the declarative directive/role/object spec (a
// TOML resource) and resolves its inheritance graph into validated,
// ready-to-use definitions. It is the Go re-expression of spec.md §4.1:
// no process-wide mutable dispatch tables, the loaded Spec is an owned
// value threaded through the parser.
package specdsl

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/madstone-tech/docpiler/internal/core/entities"
)

// EmbeddedVersion is the spec schema version this build understands;
// a spec TOML resource whose meta.version disagrees fails to load
// (spec.md §6).
const EmbeddedVersion = 1

// RoleKind distinguishes the four role behaviors spec.md §4.1 names.
type RoleKind string

const (
	RoleText          RoleKind = "text"
	RoleExplicitTitle RoleKind = "explicit_title"
	RoleLink          RoleKind = "link"
	RoleRef           RoleKind = "ref"
)

// OptionSpec declares one directive option's accepted value shape.
type OptionSpec struct {
	Type string   `toml:"type"` // primitive name, or "|"-joined union
	Enum []string `toml:"enum"`
}

// DirectiveSpec is one `[directive.<name>]` table, after inheritance
// has been resolved.
type DirectiveSpec struct {
	Inherit         string                `toml:"inherit"`
	Help            string                `toml:"help"`
	Example         string                `toml:"example"`
	Deprecated      bool                  `toml:"deprecated"`
	ContentType     string                `toml:"content_type"`
	ArgumentType    string                `toml:"argument_type"`
	Options         map[string]OptionSpec `toml:"options"`
	Fields          []string              `toml:"fields"`
	RequiredContext string                `toml:"required_context"`
	Domain          string                `toml:"domain"`

	resolved bool
}

// RoleSpec is one `[role.<name>]` table, after inheritance resolution.
type RoleSpec struct {
	Inherit    string `toml:"inherit"`
	Help       string `toml:"help"`
	Example    string `toml:"example"`
	Deprecated bool   `toml:"deprecated"`
	Domain     string `toml:"domain"`

	Kind        RoleKind `toml:"type"`
	URLTemplate string   `toml:"link"`
	RefDomain   string   `toml:"ref_domain"`
	RefName     string   `toml:"ref_name"`
	RefTag      string   `toml:"ref_tag"`

	resolved bool
}

// RstObjectSpec is one `[rstobject.<name>]` table: it synthesizes both
// a directive and a role (spec.md §4.1).
type RstObjectSpec struct {
	Inherit    string `toml:"inherit"`
	Help       string `toml:"help"`
	Example    string `toml:"example"`
	Deprecated bool   `toml:"deprecated"`
	Prefix     string `toml:"prefix"`

	resolved bool
}

type rawSpec struct {
	Meta struct {
		Version int `toml:"version"`
	} `toml:"meta"`
	Directive map[string]*DirectiveSpec `toml:"directive"`
	Role      map[string]*RoleSpec      `toml:"role"`
	RstObject map[string]*RstObjectSpec `toml:"rstobject"`
}

// Spec is the fully resolved directive/role/object registry.
type Spec struct {
	Directives map[string]*DirectiveSpec
	Roles      map[string]*RoleSpec
}

// Load parses a TOML spec resource and resolves all inheritance.
func Load(tomlText string) (*Spec, error) {
	var raw rawSpec
	if _, err := toml.Decode(tomlText, &raw); err != nil {
		return nil, fmt.Errorf("specdsl: parse spec TOML: %w", err)
	}
	if raw.Meta.Version != EmbeddedVersion {
		return nil, fmt.Errorf("specdsl: %w: spec has %d, build expects %d",
			entities.ErrSpecVersionMismatch, raw.Meta.Version, EmbeddedVersion)
	}

	for name := range raw.Directive {
		if _, err := resolveDirective(raw.Directive, name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	for name := range raw.Role {
		if _, err := resolveRole(raw.Role, name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	for name := range raw.RstObject {
		if _, err := resolveRstObject(raw.RstObject, name, map[string]bool{}); err != nil {
			return nil, err
		}
	}

	spec := &Spec{
		Directives: raw.Directive,
		Roles:      raw.Role,
	}
	if spec.Directives == nil {
		spec.Directives = map[string]*DirectiveSpec{}
	}
	if spec.Roles == nil {
		spec.Roles = map[string]*RoleSpec{}
	}

	// Expand each rstobject into a paired directive (argument required,
	// content_type=block) and ref-type role bound to the object's prefix.
	for name, obj := range raw.RstObject {
		spec.Directives[name] = &DirectiveSpec{
			Help:         obj.Help,
			Example:      obj.Example,
			Deprecated:   obj.Deprecated,
			ContentType:  "block",
			ArgumentType: "string",
			resolved:     true,
		}
		spec.Roles[name] = &RoleSpec{
			Help:       obj.Help,
			Example:    obj.Example,
			Deprecated: obj.Deprecated,
			Kind:       RoleRef,
			RefName:    name,
			RefTag:     obj.Prefix,
			resolved:   true,
		}
	}

	return spec, nil
}

func resolveDirective(table map[string]*DirectiveSpec, name string, visiting map[string]bool) (*DirectiveSpec, error) {
	d, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("specdsl: %w: directive %q", entities.ErrUnknownInheritBase, name)
	}
	if d.resolved {
		return d, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("specdsl: %w: directive %q", entities.ErrInheritanceCycle, name)
	}
	if d.Inherit == "" {
		d.resolved = true
		return d, nil
	}
	visiting[name] = true
	base, err := resolveDirective(table, d.Inherit, visiting)
	if err != nil {
		return nil, err
	}
	visiting[name] = false

	if d.Help == "" {
		d.Help = base.Help
	}
	if d.ContentType == "" {
		d.ContentType = base.ContentType
	}
	if d.ArgumentType == "" {
		d.ArgumentType = base.ArgumentType
	}
	if d.RequiredContext == "" {
		d.RequiredContext = base.RequiredContext
	}
	if d.Domain == "" {
		d.Domain = base.Domain
	}
	if len(d.Options) == 0 {
		d.Options = base.Options
	} else if len(base.Options) > 0 {
		merged := make(map[string]OptionSpec, len(base.Options)+len(d.Options))
		for k, v := range base.Options {
			merged[k] = v
		}
		for k, v := range d.Options {
			merged[k] = v
		}
		d.Options = merged
	}
	if len(d.Fields) == 0 {
		d.Fields = base.Fields
	}
	d.resolved = true
	return d, nil
}

func resolveRole(table map[string]*RoleSpec, name string, visiting map[string]bool) (*RoleSpec, error) {
	r, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("specdsl: %w: role %q", entities.ErrUnknownInheritBase, name)
	}
	if r.resolved {
		return r, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("specdsl: %w: role %q", entities.ErrInheritanceCycle, name)
	}
	if r.Inherit == "" {
		r.resolved = true
		return r, nil
	}
	visiting[name] = true
	base, err := resolveRole(table, r.Inherit, visiting)
	if err != nil {
		return nil, err
	}
	visiting[name] = false

	if r.Help == "" {
		r.Help = base.Help
	}
	if r.Domain == "" {
		r.Domain = base.Domain
	}
	if r.Kind == "" {
		r.Kind = base.Kind
	}
	if r.URLTemplate == "" {
		r.URLTemplate = base.URLTemplate
	}
	if r.RefDomain == "" {
		r.RefDomain = base.RefDomain
	}
	if r.RefName == "" {
		r.RefName = base.RefName
	}
	r.resolved = true
	return r, nil
}

func resolveRstObject(table map[string]*RstObjectSpec, name string, visiting map[string]bool) (*RstObjectSpec, error) {
	o, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("specdsl: %w: rstobject %q", entities.ErrUnknownInheritBase, name)
	}
	if o.resolved {
		return o, nil
	}
	if visiting[name] {
		return nil, fmt.Errorf("specdsl: %w: rstobject %q", entities.ErrInheritanceCycle, name)
	}
	if o.Inherit == "" {
		o.resolved = true
		return o, nil
	}
	visiting[name] = true
	base, err := resolveRstObject(table, o.Inherit, visiting)
	if err != nil {
		return nil, err
	}
	visiting[name] = false

	if o.Help == "" {
		o.Help = base.Help
	}
	if o.Prefix == "" {
		o.Prefix = base.Prefix
	}
	o.resolved = true
	return o, nil
}

// LookupDirective resolves a bare or domain-prefixed directive name
// using the fixed domain search order from spec.md §4.4: the named
// domain (if the name carries one), then "mongodb", then "std", then
// the default domain "".
func (s *Spec) LookupDirective(domain, name string) (*DirectiveSpec, string, bool) {
	if domain != "" {
		if d, ok := s.Directives[domain+":"+name]; ok {
			return d, domain, true
		}
	}
	for _, d := range []string{"mongodb", "std", ""} {
		key := name
		if d != "" {
			key = d + ":" + name
		}
		if spec, ok := s.Directives[key]; ok {
			return spec, d, true
		}
	}
	return nil, "", false
}

// LookupRole resolves a role name the same way LookupDirective does.
func (s *Spec) LookupRole(domain, name string) (*RoleSpec, string, bool) {
	if domain != "" {
		if r, ok := s.Roles[domain+":"+name]; ok {
			return r, domain, true
		}
	}
	for _, d := range []string{"mongodb", "std", ""} {
		key := name
		if d != "" {
			key = d + ":" + name
		}
		if spec, ok := s.Roles[key]; ok {
			return spec, d, true
		}
	}
	return nil, "", false
}
