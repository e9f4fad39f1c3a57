package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleetpro/netfleet/internal/facts"
	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/fleet"
)

func TestFactsBySite(t *testing.T) {
	drv := newScriptedDriver()
	drv.set("sjc-sw1", "show version", fleet.Output{Parsed: map[string]interface{}{
		"modelName": "DCS-7050SX3", "version": "4.30.1F", "serialNumber": "SSJ1",
	}})
	drv.set("sjc-sw1", "show running-config section ntp", fleet.Output{Raw: "ntp server 10.35.221.141"})
	drv.set("sjc-rtr1", "show version", fleet.Output{Raw: "Cisco IOS Software, ISR Software, Version 16.9.4, RELEASE SOFTWARE\nsjc-rtr1 uptime is 5 days\n"})
	svc, _ := newTestService(t, drv, nil)

	res, err := svc.Facts(context.Background(), FactsRequest{
		Filter:  filter.BySite("sjc"),
		Getters: []string{"get_facts", "get_ntp_servers"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Run.Selected, "只在支持 getter 的平台上运行")
	assert.Equal(t, []string{"get_facts", "get_ntp_servers"}, res.Getters)

	assert.Equal(t, "ntp server 10.35.221.141", res.Facts["sjc-sw1"]["get_ntp_servers"])
	assert.Equal(t, "DCS-7050SX3", res.Summary["sjc-sw1"].Model)
	assert.Equal(t, "16.9.4", res.Summary["sjc-rtr1"].OSVersion)
	assert.Equal(t, "sjc-rtr1", res.Summary["sjc-rtr1"].Hostname)

	assert.Contains(t, res.Errors["sjc-rtr1"], "get_ntp_servers", "命令被拒绝的 getter 记入错误")
	assert.NotContains(t, res.Facts["sjc-rtr1"], "get_ntp_servers")
	assert.Equal(t, 1, res.Run.Failed)
}

func TestFactsDefaultsAndUnknownGetter(t *testing.T) {
	drv := newScriptedDriver()
	drv.set("den-sw1", "show version", fleet.Output{Parsed: map[string]interface{}{"modelName": "vEOS"}})
	svc, _ := newTestService(t, drv, nil)

	res, err := svc.Facts(context.Background(), FactsRequest{Filter: filter.ByHost("den-sw1")})
	require.NoError(t, err)
	assert.Equal(t, []string{facts.DefaultGetter}, res.Getters)
	assert.Equal(t, map[string]interface{}{"modelName": "vEOS"}, res.Facts["den-sw1"]["get_facts"])

	_, err = svc.Facts(context.Background(), FactsRequest{Getters: []string{"get_everything"}})
	assert.True(t, errors.Is(err, facts.ErrUnknownGetter), "未知 getter 在运行前拒绝")
}

func TestValidateMLAG(t *testing.T) {
	drv := newScriptedDriver()
	healthy := map[string]interface{}{"state": "active", "negStatus": "connected", "configSanity": "consistent"}
	drv.set("sjc-sw1", facts.MLAGStatusCommand, fleet.Output{Parsed: healthy})
	drv.set("sjc-sw1", facts.MLAGActivePartialCommand, fleet.Output{Parsed: map[string]interface{}{
		"interfaces": map[string]interface{}{},
	}})
	drv.set("den-sw1", facts.MLAGStatusCommand, fleet.Output{Parsed: healthy})
	drv.set("den-sw1", facts.MLAGActivePartialCommand, fleet.Output{Parsed: map[string]interface{}{
		"interfaces": map[string]interface{}{
			"7": map[string]interface{}{"localInterface": "Port-Channel7", "status": "active-partial"},
		},
	}})
	svc, _ := newTestService(t, drv, nil)

	res, err := svc.ValidateMLAG(context.Background(), MLAGRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Run.Selected, "只检查 eos 设备")
	assert.True(t, res.Run.OK())
	assert.Empty(t, res.Reports["sjc-sw1"].ActivePartial)
	assert.Equal(t, []string{"Port-Channel7"}, res.Reports["den-sw1"].ActivePartial)
	assert.Equal(t, []string{"den-sw1"}, res.Unhealthy())
}
