package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madstone-tech/docpiler/internal/core/entities"
)

func TestLoaderLoadConfigRequiresName(t *testing.T) {
	loader := NewLoader("")
	ctx := context.Background()
	tmpDir := t.TempDir()

	// No docpiler.toml at all leaves Name empty, which ValidateName
	// rejects: every project must declare a name (spec.md §3, §6).
	_, err := loader.LoadConfig(ctx, tmpDir)
	require.Error(t, err)
}

func TestLoaderLoadConfigDefaultsOtherThanName(t *testing.T) {
	loader := NewLoader("")
	ctx := context.Background()
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "docpiler.toml"), []byte(`name = "docs"`), 0o644))

	config, err := loader.LoadConfig(ctx, tmpDir)
	require.NoError(t, err)

	defaults := entities.DefaultProjectConfig()
	require.Equal(t, defaults.Source, config.Source)
}

func TestLoaderLoadConfigFromFile(t *testing.T) {
	loader := NewLoader("")
	ctx := context.Background()
	tmpDir := t.TempDir()

	configContent := `
name = "my-docs"
title = "My Docs"
source = "./src"
default_domain = "mongodb"

[constants]
version = "7.0"

[page_groups]
tutorials = ["intro", "advanced"]

[bundle]
manpages = "mongod.1"

[[associated_products]]
name = "atlas"
versions = ["1.0", "2.0"]
`
	configPath := filepath.Join(tmpDir, "docpiler.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o644))

	config, err := loader.LoadConfig(ctx, tmpDir)
	require.NoError(t, err)

	require.Equal(t, "my-docs", config.Name)
	require.Equal(t, "My Docs", config.Title)
	require.Equal(t, "./src", config.Source)
	require.Equal(t, "mongodb", config.DefaultDomain)
	require.Equal(t, "7.0", config.Constants["version"])
	require.Equal(t, []string{"intro", "advanced"}, config.PageGroups["tutorials"])
	require.Equal(t, "mongod.1", config.BundleManpages)
	require.Len(t, config.AssociatedProducts, 1)
	require.Equal(t, "atlas", config.AssociatedProducts[0].Name)
}

func TestLoaderSaveConfig(t *testing.T) {
	loader := NewLoader("")
	ctx := context.Background()
	tmpDir := t.TempDir()

	config := entities.DefaultProjectConfig()
	config.Name = "my-docs"
	config.Source = "./custom-src"
	config.Constants["version"] = "8.0"

	require.NoError(t, loader.SaveConfig(ctx, tmpDir, config))

	configPath := filepath.Join(tmpDir, "docpiler.toml")
	_, err := os.Stat(configPath)
	require.NoError(t, err, "config file should have been created")

	loaded, err := loader.LoadConfig(ctx, tmpDir)
	require.NoError(t, err)
	require.Equal(t, "my-docs", loaded.Name)
	require.Equal(t, "./custom-src", loaded.Source)
	require.Equal(t, "8.0", loaded.Constants["version"])
}

func TestLoaderSaveConfigNilConfig(t *testing.T) {
	loader := NewLoader("")
	ctx := context.Background()
	tmpDir := t.TempDir()

	err := loader.SaveConfig(ctx, tmpDir, nil)
	require.Error(t, err)
}

func TestLoaderGlobalThenProjectLocalMerge(t *testing.T) {
	globalDir := t.TempDir()
	globalPath := filepath.Join(globalDir, "config.toml")
	require.NoError(t, os.WriteFile(globalPath, []byte(`
name = "global-name"
source = "./global-src"
`), 0o644))

	loader := NewLoader(globalPath)
	ctx := context.Background()
	projectDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "docpiler.toml"), []byte(`
source = "./project-src"
`), 0o644))

	config, err := loader.LoadConfig(ctx, projectDir)
	require.NoError(t, err)
	require.Equal(t, "global-name", config.Name, "project-local config should not clobber fields it doesn't set")
	require.Equal(t, "./project-src", config.Source, "project-local should override global")
}
