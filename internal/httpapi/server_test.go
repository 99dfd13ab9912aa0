package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/chain"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/devopscache"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/remediation"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
	"github.com/stretchr/testify/require"
)

// fakeRunner lets tests control which verify/probe commands "succeed"
// without touching the real host.
type fakeRunner struct {
	succeeds map[string]bool
}

func (f fakeRunner) Run(ctx context.Context, name string, args ...string) bool {
	key := name
	for _, a := range args {
		key += " " + a
	}
	return f.succeeds[key]
}

func (f fakeRunner) LookPath(name string) bool { return f.succeeds[name] }

func echoRecipe() catalog.Recipe {
	return catalog.Recipe{
		ID:    "widget",
		Label: "Widget",
		Methods: map[string]catalog.MethodSpec{
			"_default": {
				CommandsByPM:  map[string][]string{"_default": {"false", "--version"}},
				NeedsSudoByPM: map[string]bool{"_default": false},
			},
		},
		Verify: []string{"false", "--version"},
		OnFailure: []catalog.FailureHandler{
			{
				FailureID:    "pep668",
				Category:     "environment",
				Label:        "externally managed environment",
				Pattern:      "externally-managed-environment",
				MethodFamily: "_default",
				Options: []catalog.RemediationOption{
					{ID: "use_pipx", Label: "Use pipx", Strategy: "install_prereq", Risk: catalog.RiskLow, LockPrerequisite: "pipx", Recommended: true},
				},
			},
		},
		ExampleStderrByFailure: map[string]string{"pep668": "error: externally-managed-environment"},
	}
}

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	dir := t.TempDir()

	reg, loadErrs := catalog.NewRegistry([]catalog.Recipe{echoRecipe()})
	require.Empty(t, loadErrs)

	runner := fakeRunner{succeeds: map[string]bool{}}
	resolver := &installplan.Resolver{Registry: reg, Runner: runner}
	engine := execengine.NewEngine(2, 4)
	matcher := remediation.NewMatcher()
	planner := remediation.NewPlanner(resolver)
	chains := chain.NewTracker(time.Minute)

	auditWriter, err := audit.NewWriter(filepath.Join(dir, "audit.ndjson"), nil)
	require.NoError(t, err)

	cache, err := devopscache.NewCache(filepath.Join(dir, "cache.json"))
	require.NoError(t, err)

	detector := systemprofile.NewDetector()
	profiler := systemprofile.NewCachedProfiler(detector, 0)

	srv := NewServer(reg, resolver, engine, matcher, planner, chains, auditWriter, cache, profiler, runner, nil, dir)
	return srv, chains.Close
}

func TestResolvePlanThenGetPlanByID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(resolvePlanRequest{Tool: "widget"})
	resp, err := http.Post(ts.URL+"/audit/install-plan", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan installplan.InstallPlan
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&plan))
	require.NotEmpty(t, plan.PlanID)
	require.NotEmpty(t, plan.Steps)

	resp2, err := http.Get(ts.URL + "/audit/install-plan/" + plan.PlanID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestGetUnknownPlanReturns404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/audit/install-plan/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveUnknownToolReturns404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(resolvePlanRequest{Tool: "nonexistent"})
	resp, err := http.Post(ts.URL+"/audit/install-plan", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSystemProfileEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/system-profile")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile systemprofile.SystemProfile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	require.NotEmpty(t, profile.System)
}

func TestCacheBustThenGetIsMiss(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	srv.Cache.Put("demo-card", "value", nil, 0)

	body, _ := json.Marshal(cacheBustRequest{Card: "demo-card"})
	resp, err := http.Post(ts.URL+"/devops/cache/bust", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/devops/cache/demo-card")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode)

	entries, err := srv.Audit.Query(audit.Query{})
	require.NoError(t, err)
	require.Len(t, entries.Entries, 1)
	require.Equal(t, "cache_bust", entries.Entries[0].Action)
}

func TestCheckDepsSplitsInstalledAndMissing(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(checkDepsRequest{Packages: []string{"pkg-a", "pkg-b"}})
	resp, err := http.Post(ts.URL+"/audit/check-deps", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out checkDepsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.ElementsMatch(t, []string{"pkg-a", "pkg-b"}, out.Missing)
	require.Empty(t, out.Installed)
}

func TestAuditActivityReturnsRecordedEntries(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	require.NoError(t, srv.Audit.Record(audit.Entry{Action: "cache_bust", Target: "all", OperationID: "op-1"}))

	resp, err := http.Get(ts.URL + "/audit/activity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result audit.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, 1, result.TotalAll)
}
