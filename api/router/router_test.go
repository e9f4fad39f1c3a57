package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/internal/metrics"
	"github.com/netfleetpro/netfleet/internal/service"
)

type echoDriver struct{}

func (echoDriver) Open(context.Context, inventory.Device, credential.Credentials) (fleet.Session, error) {
	return echoSession{}, nil
}

type echoSession struct{}

func (echoSession) Send(_ context.Context, command string, _ bool) (fleet.Output, error) {
	return fleet.Output{Raw: "ok " + command}, nil
}

func (echoSession) Close() error { return nil }

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	svc := service.NewFleetService(cfg, service.Deps{
		Source: inventory.StaticSource{Snapshot: &inventory.Snapshot{Hosts: []inventory.HostRecord{
			{Name: "sjc-sw1", Platform: "eos", Site: "sjc"},
			{Name: "den-sw1", Platform: "eos", Site: "den"},
		}}},
		Driver:   echoDriver{},
		Resolver: credential.NewResolver(credential.MapSource{"NETFLEET_USERNAME": "u", "PASSWORD": "p"}),
		Metrics:  metrics.New(),
	})
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { _ = svc.Stop() })
	return SetupRouter(cfg, svc)
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestListDevicesByQuery(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/api/v1/inventory/devices?site=sjc", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Total   int `json:"total"`
			Devices []struct {
				Hostname string `json:"hostname"`
			} `json:"devices"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Devices, 1)
	assert.Equal(t, "sjc-sw1", resp.Data.Devices[0].Hostname)

	w = do(r, http.MethodGet, "/api/v1/inventory/devices/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecRun(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/api/v1/runs/exec", `{"sites":["den"],"commands":["show clock"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data fleet.FleetResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Selected)
	assert.Equal(t, 1, resp.Data.Succeeded)
	assert.Equal(t, []string{"den-sw1"}, resp.Data.Order)

	w = do(r, http.MethodPost, "/api/v1/runs/exec", `{"sites":["den"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "缺少命令")
}

func TestCancelUnknownRun(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/api/v1/runs/nope/cancel", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunHistoryWithoutStore(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t)
	do(r, http.MethodPost, "/api/v1/runs/exec", `{"commands":["show clock"]}`)
	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "netfleet_"), "暴露业务指标")
}

func TestFactsRun(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/api/v1/runs/facts", `{"hosts":["sjc-sw1"],"getters":["get_config"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Facts map[string]map[string]interface{} `json:"facts"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok show running-config", resp.Data.Facts["sjc-sw1"]["get_config"])

	w = do(r, http.MethodPost, "/api/v1/runs/facts", `{"getters":["get_everything"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "未知 getter")
}

func TestMLAGRunRoute(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/api/v1/runs/mlag", `{"sites":["den"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"reports"`)
}
