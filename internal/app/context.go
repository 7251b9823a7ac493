package app

import (
	"context"
	"errors"
	"fmt"

	"spms/internal/config"
	"spms/internal/repo"
)

// ResolveConfig returns the stored system config, seeding it from the workspace's
// spms.yml (or the built-in default) when the database has none yet.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetSystemConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		seed = config.Default()
	}
	if err := r.UpsertSystemConfig(ctx, nil, seed); err != nil {
		return nil, fmt.Errorf("seed system config: %w", err)
	}
	return seed, nil
}

// ResolveProject picks the project a command acts on: the override when given,
// otherwise the only project in the database.
func ResolveProject(ctx context.Context, override string, r repo.Repo) (string, error) {
	if override != "" {
		if _, err := r.GetProject(ctx, nil, override); err != nil {
			return "", fmt.Errorf("project %s: %w", override, err)
		}
		return override, nil
	}
	projects, err := r.ListProjects(ctx, repo.ProjectFilters{Limit: 2})
	if err != nil {
		return "", err
	}
	if len(projects) != 1 {
		return "", fmt.Errorf("project not specified; use --project or spms project use <id>")
	}
	return projects[0].ID, nil
}
