// Package config carries the immutable run configuration. Every
// component receives the configuration (or the pieces it needs)
// explicitly; nothing reads globals after Load returns.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	TargetOrg     string
	Token         string
	Endpoint      string // optional GraphQL endpoint override
	SnapshotDir   string
	WorkDir       string
	MappingPath   string
	IgnoreMapping bool
	UseExisting   bool
	ProjectNumber int // 0 migrates every project in the snapshot
}

// Load fills environment-derived settings into cfg (a .env file is
// honored if present) and validates the preconditions that must hold
// before any remote call is made.
func Load(cfg Config) (*Config, error) {
	_ = godotenv.Load()

	if cfg.Token == "" {
		cfg.Token = os.Getenv("GITHUB_TOKEN")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("GITHUB_GRAPHQL_URL")
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = "export"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}

	if cfg.TargetOrg == "" {
		return nil, fmt.Errorf("target organization not set")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("GITHUB_TOKEN not set")
	}
	if err := requireDir(cfg.WorkDir, "working directory"); err != nil {
		return nil, err
	}
	if err := requireDir(cfg.SnapshotDir, "snapshot directory"); err != nil {
		return nil, err
	}
	if !cfg.IgnoreMapping {
		if cfg.MappingPath == "" {
			return nil, fmt.Errorf("repository mapping file not set (pass --ignore-mapping to migrate without one)")
		}
		if _, err := os.Stat(cfg.MappingPath); err != nil {
			return nil, fmt.Errorf("repository mapping file %s not found", cfg.MappingPath)
		}
	}

	return &cfg, nil
}

func requireDir(path, what string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %s not found", what, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s %s is not a directory", what, path)
	}
	return nil
}
