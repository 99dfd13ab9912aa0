package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/appconfig"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/applog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/chain"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/devopscache"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/remediation"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
)

// core is the fully-wired service graph shared by the serve daemon and
// the install subcommand. Services are constructed in dependency order
// exactly once; everything downstream receives them by injection rather
// than reaching for globals.
type core struct {
	cfg      appconfig.Config
	log      *applog.Logger
	registry *catalog.Registry
	resolver *installplan.Resolver
	engine   *execengine.Engine
	matcher  *remediation.Matcher
	planner  *remediation.Planner
	chains   *chain.Tracker
	audit    *audit.Writer
	cache    *devopscache.Cache
	profiler *systemprofile.CachedProfiler
	runner   installplan.CommandRunner
}

// buildCore loads the settings file and constructs every service.
// Catalog load or validation failures are collected and reported
// together, then returned as one fatal error.
func buildCore(configPath string) (*core, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if level := os.Getenv("DEVOPS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	log, err := applog.New(applog.Options{Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir %s: %w", cfg.StateDir, err)
	}

	recipes, loadErrs := catalog.LoadDirectory(cfg.RecipeDir)
	if len(loadErrs) > 0 {
		for _, le := range loadErrs {
			log.Error(le, "failed to load recipe file")
		}
		return nil, fmt.Errorf("catalog failed to load from %s: %d error(s)", cfg.RecipeDir, len(loadErrs))
	}

	registry, regErrs := catalog.NewRegistry(recipes)
	if len(regErrs) > 0 {
		for _, le := range regErrs {
			log.Error(le, "recipe failed validation")
		}
		return nil, fmt.Errorf("catalog failed validation: %d error(s)", len(regErrs))
	}

	detector := systemprofile.NewDetector()
	resolver := installplan.NewResolver(registry)

	auditWriter, err := audit.NewWriter(filepath.Join(cfg.StateDir, "audit.ndjson"), log)
	if err != nil {
		return nil, fmt.Errorf("create audit writer: %w", err)
	}

	cache, err := devopscache.NewCache(filepath.Join(cfg.StateDir, "devops_cache.json"))
	if err != nil {
		return nil, fmt.Errorf("create devops cache: %w", err)
	}

	return &core{
		cfg:      cfg,
		log:      log,
		registry: registry,
		resolver: resolver,
		engine:   execengine.NewEngine(int64(cfg.ExecutorPoolSize), int64(cfg.MaxQueueLen)),
		matcher:  remediation.NewMatcher(),
		planner:  remediation.NewPlanner(resolver),
		chains:   chain.NewTracker(cfg.ChainGCInterval.Std()),
		audit:    auditWriter,
		cache:    cache,
		profiler: systemprofile.NewCachedProfiler(detector, systemprofile.DefaultTTL),
		runner:   installplan.NewCommandRunner(),
	}, nil
}

// Close releases the background resources the core owns.
func (c *core) Close() {
	c.chains.Close()
}
