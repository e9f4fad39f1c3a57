package naming

import (
	"encoding/json"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrite(t *testing.T) {
	r := NewRewriter()
	cases := map[string]string{
		"Vlan91":                "-vlan91",
		"TenGigabitEthernet1/1": "-te1-1",
		"GigabitEthernet0/17":   "-ge0-17",
		"Ethernet49/1":          "-eth49-1",
		"Ethernet1/1.100":       "-eth1-1-100",
		"Port-channel10":        "-po10",
		"Port-Channel20":        "-po20",
		"FastEthernet0/1":       "-fe0-1",
		"Management1":           "-mgmt1",
		"Loopback0":             "-lo0",
		"Tunnel5":               "-tu5",
	}
	for in, want := range cases {
		got, ok := r.Rewrite(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := r.Rewrite("Serial0/0")
	assert.False(t, ok, "未知接口类型不改写")

	custom := &Rewriter{Rules: []Rule{{Prefix: "Serial", Replacement: "-se", Flatten: true}}}
	got, ok := custom.Rewrite("Serial0/0")
	assert.True(t, ok)
	assert.Equal(t, "-se0-0", got, "规则表可替换")
}

func TestClassifierAndDescriptions(t *testing.T) {
	c := NeighborClassifier{Markers: DefaultMarkers("eos")}
	neighbors := []Neighbor{
		{LocalPort: "Ethernet1", RemoteHostname: "USBLDNWS01.example.com", RemotePort: "Ethernet49/1"},
		{LocalPort: "Ethernet2", RemoteHostname: "esx-host-7.example.com", RemotePort: "vmnic0"},
		{LocalPort: "Ethernet3", RemoteHostname: "usbldcs01", RemotePort: "Gi1/0/48"},
		{LocalPort: "Ethernet3", RemoteHostname: "usbldcs01", RemotePort: "Gi1/0/48"},
	}
	assert.True(t, c.IsNetwork(neighbors[0]), "大小写不敏感且去掉域名")
	assert.False(t, c.IsNetwork(neighbors[1]))

	lines := DescriptionLines(neighbors, "TRN: ", c)
	assert.Equal(t, []string{
		"interface Ethernet1",
		" description TRN: usbldnws01 on Ethernet49/1",
		"interface Ethernet3",
		" description TRN: usbldcs01 on Gi1/0/48",
	}, lines)

	assert.Contains(t, DefaultMarkers("ios"), "fg")
	assert.NotContains(t, DefaultMarkers("ios"), "nws")
}

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestParseEOS(t *testing.T) {
	nb, err := ParseEOSNeighbors(decode(t, `{"lldpNeighbors": [
		{"port": "Ethernet1", "neighborDevice": "usbldnws01.example.com", "neighborPort": "Ethernet49/1", "ttl": 120}
	], "tablesLastChangeTime": 1.0}`))
	require.NoError(t, err)
	assert.Equal(t, []Neighbor{{LocalPort: "Ethernet1", RemoteHostname: "usbldnws01.example.com", RemotePort: "Ethernet49/1"}}, nb)

	ips, err := ParseEOSInterfaceIPs(decode(t, `{"interfaces": {
		"Vlan91": {"name": "Vlan91", "interfaceAddress": {"primaryIp": {"address": "10.143.201.2", "maskLen": 29},
			"secondaryIpsOrderedList": [{"address": "10.143.201.3", "maskLen": 29}]}},
		"Ethernet5": {"name": "Ethernet5", "interfaceAddress": {"primaryIp": {"address": "0.0.0.0", "maskLen": 0}}},
		"Loopback0": {"name": "Loopback0", "interfaceAddress": {"primaryIp": {"address": "10.143.201.129", "maskLen": 32}}}
	}}`))
	require.NoError(t, err)
	assert.Equal(t, []InterfaceIP{
		{Interface: "Loopback0", Address: "10.143.201.129"},
		{Interface: "Vlan91", Address: "10.143.201.2"},
		{Interface: "Vlan91", Address: "10.143.201.3"},
	}, ips)

	_, err = ParseEOSNeighbors(decode(t, `{"lldpNeighbors": "bad"}`))
	assert.Error(t, err)
}

func TestParseIOS(t *testing.T) {
	nb := ParseIOSNeighbors(`Capability codes:
    (R) Router, (B) Bridge, (T) Telephone, (C) DOCSIS Cable Device

Device ID           Local Intf     Hold-time  Capability      Port ID
usbldcs01.corp      Gi1/0/48       120        B,R             Ethernet49/1
fgt-edge            Te1/1/1        120        R               port2

Total entries displayed: 2
`)
	assert.Equal(t, []Neighbor{
		{LocalPort: "GigabitEthernet1/0/48", RemoteHostname: "usbldcs01.corp", RemotePort: "Ethernet49/1"},
		{LocalPort: "TenGigabitEthernet1/1/1", RemoteHostname: "fgt-edge", RemotePort: "port2"},
	}, nb)

	ips := ParseIOSInterfaceIPs(`Interface              IP-Address      OK? Method Status                Protocol
GigabitEthernet0/17    10.143.201.9    YES NVRAM  up                    up
Vlan1                  unassigned      YES unset  administratively down down
Loopback0              10.143.201.129  YES NVRAM  up                    up
`)
	assert.Equal(t, []InterfaceIP{
		{Interface: "GigabitEthernet0/17", Address: "10.143.201.9"},
		{Interface: "Loopback0", Address: "10.143.201.129"},
	}, ips)
}

func TestRecords(t *testing.T) {
	recs, skipped := NewRewriter().Records("USBLDCRS01", []InterfaceIP{
		{Interface: "Vlan91", Address: "10.143.201.2"},
		{Interface: "GigabitEthernet0/17", Address: "10.143.201.9"},
		{Interface: "Serial0/0", Address: "10.9.9.9"},
		{Interface: "Loopback1", Address: "not-an-ip"},
	}, "autodesk.com")

	require.Len(t, recs, 4)
	assert.Equal(t, Record{Name: "usbldcrs01-vlan91.autodesk.com", Type: "A", Value: "10.143.201.2"}, recs[0])
	assert.Equal(t, "A", recs[1].Type, "先输出全部 A 记录")
	assert.Equal(t, Record{Name: "2.201.143.10.in-addr.arpa", Type: "PTR", Value: "usbldcrs01-vlan91.autodesk.com"}, recs[2])
	assert.Equal(t, "9.201.143.10.in-addr.arpa", recs[3].Name)
	assert.Len(t, skipped, 2)

	assert.Equal(t, "usbldcrs01-vlan91.autodesk.com                     A          10.143.201.2        ", recs[0].String())
}

func TestReversePointerIPv6(t *testing.T) {
	assert.Equal(t,
		"1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2.ip6.arpa",
		ReversePointer(netip.MustParseAddr("2001:db8::1")))
	assert.Equal(t, "1.0.0.127.in-addr.arpa", ReversePointer(netip.MustParseAddr("::ffff:127.0.0.1")))
}
