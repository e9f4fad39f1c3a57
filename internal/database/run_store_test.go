package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/config"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/model"
)

func openTestStore(t *testing.T) *RunStore {
	t.Helper()
	conn, err := Open(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "audit.db"), ConnMaxLifetime: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewRunStore(conn)
}

func sampleResult(id string, started time.Time) *fleet.FleetResult {
	agg := fleet.NewAggregator(id, []string{"sw1", "sw2", "sw3"})
	_ = agg.Record(fleet.DeviceResult{
		Hostname: "sw1", Platform: "eos",
		Subtasks: []fleet.SubtaskResult{{Name: "show version", Kind: fleet.KindExec, Status: fleet.StatusUnchanged}},
		Started:  started, Finished: started.Add(time.Second),
	})
	_ = agg.Record(fleet.DeviceResult{
		Hostname: "sw2", Platform: "ios",
		Err:     &fleet.ConnectError{Host: "sw2", Err: errors.New("connection refused")},
		Started: started, Finished: started.Add(2 * time.Second),
	})
	_ = agg.Record(fleet.DeviceResult{
		Hostname: "sw3", Platform: "eos",
		Subtasks: []fleet.SubtaskResult{{Name: "show bogus", Kind: fleet.KindExec, Status: fleet.StatusFailed, Err: &fleet.CommandError{Command: "show bogus", Message: "% Invalid input"}}},
		Started:  started, Finished: started.Add(time.Second),
	})
	res := agg.Finalize()
	res.Started = started
	res.Finished = started.Add(3 * time.Second)
	return res
}

func TestRunStoreBeginFinishGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	meta := RunMeta{ID: "run-1", Kind: model.RunKindExec, Filter: "site=lab", Selected: 3}

	require.NoError(t, s.Begin(ctx, meta))
	run, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.Empty(t, run.Devices)

	require.NoError(t, s.Finish(ctx, meta, sampleResult("run-1", time.Now())))
	run, err = s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, 3, run.Selected)
	assert.Equal(t, 2, run.Failed)
	require.Len(t, run.Devices, 3)
	assert.Equal(t, "sw1", run.Devices[0].Hostname)
	assert.Contains(t, run.Devices[1].ErrorMsg, "connection refused")
	assert.Contains(t, run.Devices[2].ErrorMsg, "show bogus", "子任务错误记录任务名")

	require.NoError(t, s.Finish(ctx, meta, sampleResult("run-1", time.Now())), "重复写入不应违反唯一约束")
}

func TestRunStoreListAndPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Finish(ctx, RunMeta{Kind: model.RunKindExec}, sampleResult("old", old)))
	require.NoError(t, s.Finish(ctx, RunMeta{Kind: model.RunKindApply}, sampleResult("new", time.Now())))

	runs, total, err := s.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, "new", runs[0].ID, "按开始时间倒序")

	runs, total, err = s.List(ctx, model.RunKindApply, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "new", runs[0].ID)

	n, err := s.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
