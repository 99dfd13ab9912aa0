// Package httpapi is the thin HTTP surface over the control plane's core
// services. Each endpoint maps to at most one core
// operation and one cache interaction; handlers never embed business
// logic that belongs in installplan, execengine, remediation, or
// devopscache.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/applog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/chain"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/devopscache"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/remediation"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ToolsStatusTTL is the Devops Cache TTL for the `tools:status` card.
const ToolsStatusTTL = 5 * time.Second

// Server wires every core service into the chi router. It holds no
// business logic of its own beyond request/response translation.
type Server struct {
	Registry  *catalog.Registry
	Resolver  *installplan.Resolver
	Engine    *execengine.Engine
	Matcher   *remediation.Matcher
	Planner   *remediation.Planner
	Chains    *chain.Tracker
	Audit     *audit.Writer
	Cache     *devopscache.Cache
	Profiler  *systemprofile.CachedProfiler
	Runner    installplan.CommandRunner
	Log       *applog.Logger
	RecipeDir string

	plans *planStore
}

// NewServer constructs a Server from its fully-wired dependencies. All
// fields are required except Log, which may be nil.
func NewServer(
	registry *catalog.Registry,
	resolver *installplan.Resolver,
	engine *execengine.Engine,
	matcher *remediation.Matcher,
	planner *remediation.Planner,
	chains *chain.Tracker,
	auditWriter *audit.Writer,
	cache *devopscache.Cache,
	profiler *systemprofile.CachedProfiler,
	runner installplan.CommandRunner,
	log *applog.Logger,
	recipeDir string,
) *Server {
	return &Server{
		Registry:  registry,
		Resolver:  resolver,
		Engine:    engine,
		Matcher:   matcher,
		Planner:   planner,
		Chains:    chains,
		Audit:     auditWriter,
		Cache:     cache,
		Profiler:  profiler,
		Runner:    runner,
		Log:       log,
		RecipeDir: recipeDir,
		plans:     newPlanStore(),
	}
}

// Router builds the chi.Mux exposing the control plane's endpoints.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/api/system-profile", s.handleSystemProfile)

	r.Post("/audit/install-plan", s.handleResolvePlan)
	r.Get("/audit/install-plan/{plan_id}", s.handleGetPlan)
	r.Post("/audit/install-plan/execute", s.handleExecutePlan)
	r.Post("/audit/remediate", s.handleRemediate)
	r.Post("/audit/check-deps", s.handleCheckDeps)
	r.Get("/tools/status", s.handleToolsStatus)

	r.Get("/devops/cache/{card}", s.handleCacheGet)
	r.Post("/devops/cache/bust", s.handleCacheBust)

	r.Get("/audit/activity", s.handleAuditActivity)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, req)
		if s.Log != nil {
			s.Log.WithFields(map[string]any{
				"method":   req.Method,
				"path":     req.URL.Path,
				"duration": time.Since(start).String(),
			}).Info("request")
		}
	})
}

// planStore is the in-memory record of resolved plans, keyed by
// plan_id, so a client that reconnects after a dropped stream can
// fetch the plan it resolved earlier.
type planStore struct {
	mu    sync.RWMutex
	plans map[string]installplan.InstallPlan
}

func newPlanStore() *planStore {
	return &planStore{plans: make(map[string]installplan.InstallPlan)}
}

func (p *planStore) put(plan installplan.InstallPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.plans[plan.PlanID] = plan
}

func (p *planStore) get(planID string) (installplan.InstallPlan, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	plan, ok := p.plans[planID]
	return plan, ok
}
