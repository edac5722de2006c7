package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/odaiidemos/k9-sub001/internal/infra/config"
	httproutes "github.com/odaiidemos/k9-sub001/internal/transport/http/routes"
)

type stubChecker struct {
	err error
}

func (s stubChecker) Ping(context.Context) error        { return s.err }
func (s stubChecker) HealthCheck(context.Context) error { return s.err }

// testEngine builds the full route table with stubbed services. Handlers for
// the API surface are registered but never invoked by these tests.
func testEngine(t *testing.T, backends httproutes.Backends) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	return httproutes.Register(httproutes.Dependencies{
		Config:   &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:   zaptest.NewLogger(t),
		Backends: backends,
	})
}

func get(r *gin.Engine, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	rr := get(testEngine(t, httproutes.Backends{}), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestReadinessReportsDependencyChecks(t *testing.T) {
	engine := testEngine(t, httproutes.Backends{
		Database: stubChecker{},
		Cache:    stubChecker{err: errors.New("redis unreachable")},
	})

	rr := get(engine, "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if body.Status != "degraded" {
		t.Fatalf("expected degraded status, got %q", body.Status)
	}
	if body.Checks["database"] != "ok" {
		t.Fatalf("expected database check ok, got %q", body.Checks["database"])
	}
	if body.Checks["redis"] != "redis unreachable" {
		t.Fatalf("expected redis check to carry the failure, got %q", body.Checks["redis"])
	}
}

func TestReadinessOKWhenDependenciesHealthy(t *testing.T) {
	engine := testEngine(t, httproutes.Backends{Database: stubChecker{}, Cache: stubChecker{}})

	if rr := get(engine, "/readyz"); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rr := get(testEngine(t, httproutes.Backends{}), "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}
