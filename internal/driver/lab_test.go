package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/internal/lab"
)

type staticRenderer map[string]string

func (r staticRenderer) Render(templateID string, vars map[string]interface{}) (string, error) {
	host := vars["host"].(map[string]interface{})["name"].(string)
	return r[host], nil
}

func startLab(t *testing.T) *lab.Server {
	t.Helper()
	srv, err := lab.NewServer(lab.Config{
		Password: "lab",
		Devices: map[string]lab.DeviceConfig{
			"lab-eos": {
				Platform:       "eos",
				EnableRequired: true,
				EnableSecret:   "lab",
				RunningConfig:  "hostname lab-eos\nntp server 1.1.1.1\n",
				Outputs: map[string]string{
					"show clock":          "Fri Oct 17 12:00:00 2026",
					"show version | json": `{"modelName": "vEOS-lab", "version": "4.30.1F"}`,
				},
			},
		},
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)
	return srv
}

func labDevice(srv *lab.Server) inventory.Device {
	return inventory.Device{
		Hostname: "lab-eos",
		Address:  "127.0.0.1",
		Port:     srv.Port(),
		Username: "lab-eos",
		Platform: "eos",
		Class:    inventory.ClassConfigAPI,
	}
}

func labExecutor() *fleet.Executor {
	cfg := config.Default()
	cfg.SSH.ConnectTimeout = 5 * time.Second
	cfg.SSH.CommandTimeout = 5 * time.Second
	resolver := credential.NewResolver(credential.MapSource{"PASSWORD": "lab"})
	return fleet.NewExecutor(NewCLIDriver(cfg), resolver, fleet.WithWorkers(2))
}

func TestLabExec(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过需要本地 SSH 监听的测试")
	}
	srv := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tasks := []fleet.Task{
		fleet.ExecCommand{Command: "show clock"},
		fleet.ExecCommand{Command: "show version", Structured: true},
		fleet.ExecCommand{Command: "show bogus"},
	}
	res := labExecutor().Run(ctx, []inventory.Device{labDevice(srv)}, tasks...)
	dr, ok := res.Get("lab-eos")
	require.True(t, ok)
	require.NoError(t, dr.Err)
	require.Len(t, dr.Subtasks, 3, "非致命错误后继续执行")

	assert.Equal(t, "Fri Oct 17 12:00:00 2026", dr.Subtasks[0].Output)
	assert.Equal(t, "vEOS-lab", dr.Subtasks[1].Parsed.(map[string]interface{})["modelName"])
	assert.Equal(t, fleet.StatusFailed, dr.Subtasks[2].Status)
	assert.False(t, fleet.IsFatal(dr.Subtasks[2].Err))
	assert.Equal(t, 1, res.Failed, "子任务失败使设备计为失败")
}

func TestLabApplyIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过需要本地 SSH 监听的测试")
	}
	srv := startLab(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	desired := "hostname lab-eos\nntp server 10.0.0.1\nlogging host 10.0.0.2\n"
	p := fleet.NewPipeline(labExecutor(), staticRenderer{"lab-eos": desired})
	devices := []inventory.Device{labDevice(srv)}

	check := p.Apply(ctx, fleet.ApplyRequest{TemplateID: "base", DryRun: true, Devices: devices})
	dr, _ := check.Get("lab-eos")
	require.NoError(t, dr.Err)
	assert.Equal(t, fleet.StatusUnchanged, dr.Status(), "检查模式不下发")
	assert.Contains(t, dr.Subtasks[0].Diff, "+ntp server 10.0.0.1")
	assert.Equal(t, 0, srv.Device("lab-eos").Commits())

	first := p.Apply(ctx, fleet.ApplyRequest{TemplateID: "base", Devices: devices})
	dr, _ = first.Get("lab-eos")
	require.NoError(t, dr.Err)
	assert.Equal(t, fleet.StatusChanged, dr.Status())
	assert.Equal(t, check.Devices["lab-eos"].Subtasks[0].Diff, dr.Subtasks[0].Diff, "检查模式与实际下发的差异一致")
	assert.Equal(t, desired, srv.Device("lab-eos").RunningConfig())
	assert.Equal(t, 1, srv.Device("lab-eos").Commits())

	second := p.Apply(ctx, fleet.ApplyRequest{TemplateID: "base", Devices: devices})
	dr, _ = second.Get("lab-eos")
	require.NoError(t, dr.Err)
	assert.Equal(t, fleet.StatusUnchanged, dr.Status(), "第二次下发无变更")
	assert.Empty(t, dr.Subtasks[0].Diff)
	assert.Equal(t, 1, srv.Device("lab-eos").Commits())
}

func TestLabWrongPasswordIsConnectFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过需要本地 SSH 监听的测试")
	}
	srv := startLab(t)
	cfg := config.Default()
	cfg.SSH.ConnectTimeout = 5 * time.Second
	resolver := credential.NewResolver(credential.MapSource{"PASSWORD": "wrong"})
	exec := fleet.NewExecutor(NewCLIDriver(cfg), resolver)

	res := exec.Run(context.Background(), []inventory.Device{labDevice(srv)}, fleet.ExecCommand{Command: "show clock"})
	dr, _ := res.Get("lab-eos")
	var ce *fleet.ConnectError
	assert.ErrorAs(t, dr.Err, &ce)
	assert.Empty(t, dr.Subtasks)
}
