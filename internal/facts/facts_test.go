package facts

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestNormalize(t *testing.T) {
	names, err := Normalize(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultGetter}, names, "未指定时使用 get_facts")

	names, err = Normalize([]string{"get_ntp_servers", " GET_USERS ", "get_ntp_servers", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"get_ntp_servers", "get_users"}, names, "去重并保持顺序")

	_, err = Normalize([]string{"get_facts", "get_bgp_everything"})
	assert.True(t, errors.Is(err, ErrUnknownGetter))
	assert.Contains(t, err.Error(), "get_bgp_everything")
}

func TestCommands(t *testing.T) {
	cmds := Commands("EOS", []string{"get_facts", "get_config"})
	assert.Equal(t, []Command{
		{Getter: "get_facts", Command: "show version", Structured: true},
		{Getter: "get_config", Command: "show running-config"},
	}, cmds)

	assert.Empty(t, Commands("fortinet", []string{"get_facts"}), "不支持的平台没有命令")
	for _, g := range Getters() {
		for _, p := range Platforms() {
			assert.Len(t, Commands(p, []string{g}), 1, "%s 在 %s 上应有命令", g, p)
		}
	}
}

func TestParseEOSVersion(t *testing.T) {
	s, err := ParseEOSVersion(decode(t, `{"modelName": "DCS-7280SR-48C6", "version": "4.28.3M", "serialNumber": "JPE123", "uptime": 90061.5}`))
	require.NoError(t, err)
	assert.Equal(t, Summary{Vendor: "Arista", Model: "DCS-7280SR-48C6", OSVersion: "4.28.3M", SerialNumber: "JPE123", Uptime: "25h1m1s"}, s)

	_, err = ParseEOSVersion(nil)
	assert.Error(t, err)
}

func TestParseIOSVersion(t *testing.T) {
	raw := "Cisco IOS Software, C3750E Software (C3750E-UNIVERSALK9-M), Version 15.2(4)E7, RELEASE SOFTWARE (fc2)\r\n" +
		"Technical Support: http://www.cisco.com/techsupport\r\n" +
		"den-rtr1 uptime is 2 weeks, 3 days, 4 hours, 5 minutes\r\n" +
		"cisco WS-C3750X-48P (PowerPC405) processor (revision W0) with 262144K bytes of memory.\r\n" +
		"Processor board ID FDO1234X0AB\r\n"
	s := ParseIOSVersion(raw)
	assert.Equal(t, "15.2(4)E7", s.OSVersion)
	assert.Equal(t, "den-rtr1", s.Hostname)
	assert.Equal(t, "2 weeks, 3 days, 4 hours, 5 minutes", s.Uptime)
	assert.Equal(t, "FDO1234X0AB", s.SerialNumber)
	assert.Equal(t, "WS-C3750X-48P", s.Model)
	assert.Equal(t, "Cisco", s.Vendor)
}

func TestParseEOSMLAG(t *testing.T) {
	r, err := ParseEOSMLAG(decode(t, `{"domainId": "mlag01", "state": "active", "negStatus": "connected", "configSanity": "consistent", "peerLink": "Port-Channel1000"}`))
	require.NoError(t, err)
	assert.Equal(t, "active", r.State)
	assert.Equal(t, "Port-Channel1000", r.PeerLink)
	assert.True(t, r.Healthy())

	r.ConfigSanity = "inconsistent"
	assert.False(t, r.Healthy(), "配置不一致视为异常")
}

func TestParseEOSActivePartial(t *testing.T) {
	parsed := decode(t, `{
		"interfaces": {
			"12": {"localInterface": "Port-Channel12", "status": "active-partial"},
			"3":  {"localInterface": "Port-Channel3", "status": "active-partial"}
		},
		"mlagActive": true
	}`)
	ifaces, err := ParseEOSActivePartial(parsed)
	require.NoError(t, err)
	assert.Equal(t, []string{"Port-Channel3", "Port-Channel12"}, ifaces, "按 MLAG ID 数值排序")

	none, err := ParseEOSActivePartial(decode(t, `{"interfaces": {}}`))
	require.NoError(t, err)
	assert.Empty(t, none)

	r := MLAGReport{State: "active", ActivePartial: ifaces}
	assert.False(t, r.Healthy())
}
