// Package config provides configuration loading from docpiler.toml
// files. It implements the ConfigLoader interface for reading and
// writing project configuration (spec.md §3, §6).
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

// Loader implements the ConfigLoader interface for TOML configuration
// files, adapted from the teacher's loko.toml loader: still
// BurntSushi/toml-based, still global-then-project-local merge.
type Loader struct {
	globalConfigPath string // path to global config (~/.docpiler/config.toml)
}

// NewLoader creates a new config loader. A non-empty globalConfigPath
// overrides the default ~/.docpiler/config.toml location; pass "" to
// use the default.
func NewLoader(globalConfigPath string) *Loader {
	if globalConfigPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			globalConfigPath = filepath.Join(home, ".docpiler", "config.toml")
		}
	}
	return &Loader{globalConfigPath: globalConfigPath}
}

// tomlConfig mirrors docpiler.toml's on-disk shape (spec.md §3/§6).
type tomlConfig struct {
	Name              string              `toml:"name"`
	Title             string              `toml:"title"`
	Source            string              `toml:"source"`
	DefaultDomain     string              `toml:"default_domain"`
	Constants         map[string]string   `toml:"constants"`
	Substitutions     map[string]string   `toml:"substitutions"`
	Intersphinx       []string            `toml:"intersphinx"`
	TocLandingPages   []string            `toml:"toc_landing_pages"`
	SharedincludeRoot string              `toml:"sharedinclude_root"`
	PageGroups        map[string][]string `toml:"page_groups"`
	DeprecatedVersions map[string][]string `toml:"deprecated_versions"`
	AssociatedProducts []associatedProductSection `toml:"associated_products"`
	Manpages          map[string]string   `toml:"manpages"`
	Bundle            bundleSection       `toml:"bundle"`
	Data              map[string]any      `toml:"data"`
}

type associatedProductSection struct {
	Name     string   `toml:"name"`
	Versions []string `toml:"versions"`
}

type bundleSection struct {
	Manpages string `toml:"manpages"`
}

// LoadConfig reads docpiler.toml and applies defaults. It reads both
// global (~/.docpiler/config.toml) and project-local (./docpiler.toml)
// configs, with project-local overriding global settings.
func (l *Loader) LoadConfig(ctx context.Context, projectRoot string) (*entities.ProjectConfig, error) {
	config := entities.DefaultProjectConfig()

	if l.globalConfigPath != "" {
		if _, err := os.Stat(l.globalConfigPath); err == nil {
			if err := l.loadFromFile(l.globalConfigPath, config); err != nil {
				return nil, fmt.Errorf("failed to load global config: %w", err)
			}
		}
	}

	projectConfigPath := filepath.Join(projectRoot, "docpiler.toml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := l.loadFromFile(projectConfigPath, config); err != nil {
			return nil, fmt.Errorf("failed to load project config: %w", err)
		}
	}

	if err := config.RenderConstants(); err != nil {
		return nil, fmt.Errorf("failed to render constants: %w", err)
	}

	if err := entities.ValidateName(config.Name); err != nil {
		return nil, fmt.Errorf("invalid project name %q: %w", config.Name, err)
	}
	if err := entities.ValidatePath(config.Source); err != nil {
		return nil, fmt.Errorf("invalid source path %q: %w", config.Source, err)
	}

	return config, nil
}

func (l *Loader) loadFromFile(path string, config *entities.ProjectConfig) error {
	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return fmt.Errorf("failed to parse TOML: %w", err)
	}

	if tc.Name != "" {
		config.Name = tc.Name
	}
	if tc.Title != "" {
		config.Title = tc.Title
	}
	if tc.Source != "" {
		config.Source = tc.Source
	}
	if tc.DefaultDomain != "" {
		config.DefaultDomain = tc.DefaultDomain
	}
	for k, v := range tc.Constants {
		config.Constants[k] = v
	}
	for k, v := range tc.Substitutions {
		config.Substitutions[k] = v
	}
	if len(tc.Intersphinx) > 0 {
		config.Intersphinx = tc.Intersphinx
	}
	if len(tc.TocLandingPages) > 0 {
		config.TocLandingPages = tc.TocLandingPages
	}
	if tc.SharedincludeRoot != "" {
		config.SharedincludeRoot = tc.SharedincludeRoot
	}
	for k, v := range tc.PageGroups {
		config.PageGroups[k] = v
	}
	for k, v := range tc.DeprecatedVersions {
		config.DeprecatedVersions[k] = v
	}
	for _, p := range tc.AssociatedProducts {
		config.AssociatedProducts = append(config.AssociatedProducts, entities.AssociatedProduct{
			Name:     p.Name,
			Versions: p.Versions,
		})
	}
	for k, v := range tc.Manpages {
		config.Manpages[k] = v
	}
	if tc.Bundle.Manpages != "" {
		config.BundleManpages = tc.Bundle.Manpages
	}
	for k, v := range tc.Data {
		config.Data[k] = v
	}

	return nil
}

// SaveConfig persists configuration to docpiler.toml.
func (l *Loader) SaveConfig(ctx context.Context, projectRoot string, config *entities.ProjectConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	tc := tomlConfig{
		Name:               config.Name,
		Title:              config.Title,
		Source:             config.Source,
		DefaultDomain:      config.DefaultDomain,
		Constants:          config.Constants,
		Substitutions:      config.Substitutions,
		Intersphinx:        config.Intersphinx,
		TocLandingPages:    config.TocLandingPages,
		SharedincludeRoot:  config.SharedincludeRoot,
		PageGroups:         config.PageGroups,
		DeprecatedVersions: config.DeprecatedVersions,
		Manpages:           config.Manpages,
		Bundle:             bundleSection{Manpages: config.BundleManpages},
		Data:               config.Data,
	}
	for _, p := range config.AssociatedProducts {
		tc.AssociatedProducts = append(tc.AssociatedProducts, associatedProductSection{
			Name:     p.Name,
			Versions: p.Versions,
		})
	}

	if err := os.MkdirAll(projectRoot, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	configPath := filepath.Join(projectRoot, "docpiler.toml")
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	f.WriteString("# docpiler project configuration\n\n")

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(tc); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}
