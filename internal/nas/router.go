package nas

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"shuttle/internal/config"
	"shuttle/internal/logging"
	"shuttle/internal/metadata"
	"shuttle/internal/queue"
	"shuttle/internal/services"
)

// Router maps a resolved category plus the caller's destination choice to
// a concrete storage path.
type Router struct {
	targets       map[string]Target
	defaultTarget string
	mounts        *MountManager
	logger        *slog.Logger
}

// NewRouter builds a router from the configured targets.
func NewRouter(cfg *config.Config, mounts *MountManager, logger *slog.Logger) (*Router, error) {
	targets := make(map[string]Target, len(cfg.Targets))
	for _, entry := range cfg.Targets {
		target, err := TargetFromConfig(entry)
		if err != nil {
			return nil, err
		}
		targets[strings.ToLower(target.Name)] = target
	}
	return &Router{
		targets:       targets,
		defaultTarget: cfg.DefaultTarget,
		mounts:        mounts,
		logger:        logging.NewComponentLogger(logger, "router"),
	}, nil
}

// Target looks up a named target; an empty name selects the default.
func (r *Router) Target(name string) (Target, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultTarget
	}
	target, ok := r.targets[strings.ToLower(name)]
	if !ok {
		return Target{}, services.Wrap(services.ErrValidation, "", "destination", fmt.Sprintf("unknown storage target %q", name), nil)
	}
	return target, nil
}

// Resolve returns the destination directory for a category on the chosen
// target, mounting NAS targets when needed. An explicit destination path
// bypasses the category table; an explicit category overrides the
// resolver's decision.
func (r *Router) Resolve(ctx context.Context, category metadata.Category, dest queue.Destination) (string, error) {
	target, err := r.Target(dest.Target)
	if err != nil {
		return "", err
	}

	if override := strings.TrimSpace(dest.Category); override != "" {
		parsed, ok := metadata.ParseCategory(override)
		if !ok {
			return "", services.Wrap(services.ErrValidation, "", "destination", fmt.Sprintf("unknown category override %q", override), nil)
		}
		category = parsed
	}

	if target.Kind == KindNAS {
		if err := r.mounts.EnsureMounted(ctx, target); err != nil {
			return "", err
		}
	}

	if explicit := strings.TrimSpace(dest.Path); explicit != "" {
		if filepath.IsAbs(explicit) {
			return explicit, nil
		}
		return filepath.Join(target.Root(), explicit), nil
	}

	path := filepath.Join(target.Root(), target.CategoryFolder(category))
	r.logger.Debug("routed destination",
		logging.String(logging.FieldTarget, target.Name),
		logging.String(logging.FieldCategory, string(category)),
		logging.String("path", path),
	)
	return path, nil
}
