package naming

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Neighbor 一条 LLDP 邻居
type Neighbor struct {
	LocalPort      string `json:"local_port"`
	RemoteHostname string `json:"remote_hostname"`
	RemotePort     string `json:"remote_port"`
}

// ShortName 邻居主机名去掉域名并转小写
func (n Neighbor) ShortName() string {
	h := strings.TrimSpace(n.RemoteHostname)
	if i := strings.Index(h, "."); i >= 0 {
		h = h[:i]
	}
	return strings.ToLower(h)
}

// NeighborClassifier 主机名包含任一标记即视为网络设备
type NeighborClassifier struct {
	Markers []string
}

// DefaultMarkers 按平台的默认网络设备标记
func DefaultMarkers(platform string) []string {
	core := []string{"cs0", "crs0", "cs1", "cs2", "cs3", "cs4", "cs5", "cw0", "cw1", "cw2", "cw3", "cw4"}
	switch strings.ToLower(platform) {
	case "eos":
		return append([]string{"nws", "nwr", "nwl", "nwf"}, core...)
	case "ios":
		return append([]string{"fg", "cws0"}, core...)
	}
	return append([]string{"nws", "nwr", "nwl", "nwf", "fg", "cws0"}, core...)
}

// IsNetwork 邻居是否为网络设备
func (c NeighborClassifier) IsNetwork(n Neighbor) bool {
	name := n.ShortName()
	for _, m := range c.Markers {
		if m != "" && strings.Contains(name, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// DescriptionLines 为网络设备邻居生成接口描述配置行
func DescriptionLines(neighbors []Neighbor, tag string, c NeighborClassifier) []string {
	var lines []string
	seen := map[string]bool{}
	for _, n := range neighbors {
		if seen[n.LocalPort] || !c.IsNetwork(n) {
			continue
		}
		seen[n.LocalPort] = true
		lines = append(lines,
			"interface "+n.LocalPort,
			" description "+tag+n.ShortName()+" on "+n.RemotePort,
		)
	}
	return lines
}

// ParseEOSNeighbors 解析 show lldp neighbors | json
func ParseEOSNeighbors(parsed interface{}) ([]Neighbor, error) {
	var doc struct {
		LLDPNeighbors []struct {
			Port           string `json:"port"`
			NeighborDevice string `json:"neighborDevice"`
			NeighborPort   string `json:"neighborPort"`
		} `json:"lldpNeighbors"`
	}
	if err := remarshal(parsed, &doc); err != nil {
		return nil, fmt.Errorf("parse lldp neighbors: %w", err)
	}
	out := make([]Neighbor, 0, len(doc.LLDPNeighbors))
	for _, n := range doc.LLDPNeighbors {
		out = append(out, Neighbor{LocalPort: n.Port, RemoteHostname: n.NeighborDevice, RemotePort: n.NeighborPort})
	}
	return out, nil
}

// ParseIOSNeighbors 解析 show lldp neighbors 表格输出
func ParseIOSNeighbors(raw string) []Neighbor {
	var out []Neighbor
	inTable := false
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		if strings.HasPrefix(line, "Device ID") {
			inTable = true
			continue
		}
		if !inTable {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(line, "Total entries") {
			inTable = false
			continue
		}
		// Device ID, Local Intf, Hold-time, [Capability...], Port ID
		if len(fields) < 4 {
			continue
		}
		out = append(out, Neighbor{
			LocalPort:      expandIOSPort(fields[1]),
			RemoteHostname: fields[0],
			RemotePort:     fields[len(fields)-1],
		})
	}
	return out
}

var iosPortAbbrev = []struct{ short, long string }{
	{"Te", "TenGigabitEthernet"},
	{"Gi", "GigabitEthernet"},
	{"Fa", "FastEthernet"},
	{"Po", "Port-channel"},
	{"Eth", "Ethernet"},
}

func expandIOSPort(p string) string {
	for _, a := range iosPortAbbrev {
		if strings.HasPrefix(p, a.short) && !strings.HasPrefix(p, a.long) {
			rest := strings.TrimPrefix(p, a.short)
			if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
				return a.long + rest
			}
		}
	}
	return p
}

// InterfaceIP 接口上的一个 IPv4 地址
type InterfaceIP struct {
	Interface string `json:"interface"`
	Address   string `json:"address"`
}

// ParseEOSInterfaceIPs 解析 show ip interface | json，包含主地址与从地址
func ParseEOSInterfaceIPs(parsed interface{}) ([]InterfaceIP, error) {
	type addr struct {
		Address string `json:"address"`
	}
	var doc struct {
		Interfaces map[string]struct {
			Name             string `json:"name"`
			InterfaceAddress struct {
				PrimaryIP               addr   `json:"primaryIp"`
				SecondaryIPsOrderedList []addr `json:"secondaryIpsOrderedList"`
			} `json:"interfaceAddress"`
		} `json:"interfaces"`
	}
	if err := remarshal(parsed, &doc); err != nil {
		return nil, fmt.Errorf("parse ip interfaces: %w", err)
	}
	names := make([]string, 0, len(doc.Interfaces))
	for name := range doc.Interfaces {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []InterfaceIP
	for _, name := range names {
		ia := doc.Interfaces[name].InterfaceAddress
		for _, a := range append([]addr{ia.PrimaryIP}, ia.SecondaryIPsOrderedList...) {
			if a.Address == "" || a.Address == "0.0.0.0" {
				continue
			}
			out = append(out, InterfaceIP{Interface: name, Address: a.Address})
		}
	}
	return out, nil
}

// ParseIOSInterfaceIPs 解析 show ip interface brief
func ParseIOSInterfaceIPs(raw string) []InterfaceIP {
	var out []InterfaceIP
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] == "Interface" {
			continue
		}
		if fields[1] == "unassigned" || strings.Count(fields[1], ".") != 3 {
			continue
		}
		out = append(out, InterfaceIP{Interface: fields[0], Address: fields[1]})
	}
	return out
}

func remarshal(in interface{}, out interface{}) error {
	bs, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(bs, out)
}
