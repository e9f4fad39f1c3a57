package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/fleet"
)

func TestObserverCountsDevices(t *testing.T) {
	m := New()
	now := time.Now()
	m.OnDeviceResult("r", fleet.DeviceResult{
		Hostname: "sw1", Platform: "eos",
		Subtasks: []fleet.SubtaskResult{{Kind: fleet.KindExec, Status: fleet.StatusUnchanged}},
		Started:  now, Finished: now.Add(time.Second),
	})
	m.OnDeviceResult("r", fleet.DeviceResult{Hostname: "sw2", Platform: "eos", Err: errors.New("boom")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DevicesTotal.WithLabelValues("eos", "ok-unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DevicesTotal.WithLabelValues("eos", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubtasksTotal.WithLabelValues("exec", "ok-unchanged")))
}

func TestRunLifecycle(t *testing.T) {
	m := New()
	m.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsInFlight))
	m.RunFinished("apply", &fleet.FleetResult{Failed: 1, Started: time.Now(), Finished: time.Now()})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("apply", "failed")))

	m.InventoryReloaded(42, nil)
	m.InventoryReloaded(0, errors.New("bad yaml"))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.InventoryDevices), "加载失败不覆盖设备数")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InventoryReloadsTotal.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.InventoryReloaded(3, nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "netfleet_inventory_devices 3"))
}
