package facts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// MLAG 检查使用的命令（结构化）
const (
	MLAGStatusCommand        = "show mlag"
	MLAGActivePartialCommand = "show mlag interfaces states active-partial"
)

// MLAGReport 单台设备的 MLAG 状态
type MLAGReport struct {
	DomainID      string   `json:"domain_id,omitempty"`
	State         string   `json:"state"`
	NegStatus     string   `json:"neg_status,omitempty"`
	ConfigSanity  string   `json:"config_sanity,omitempty"`
	PeerLink      string   `json:"peer_link,omitempty"`
	ActivePartial []string `json:"active_partial,omitempty"`
}

// Healthy 无 active-partial 接口且配置一致
func (r MLAGReport) Healthy() bool {
	return len(r.ActivePartial) == 0 && r.ConfigSanity != "inconsistent"
}

// ParseEOSMLAG 解析 show mlag | json
func ParseEOSMLAG(parsed interface{}) (MLAGReport, error) {
	var doc struct {
		DomainID     string `json:"domainId"`
		State        string `json:"state"`
		NegStatus    string `json:"negStatus"`
		ConfigSanity string `json:"configSanity"`
		PeerLink     string `json:"peerLink"`
	}
	if err := remarshal(parsed, &doc); err != nil {
		return MLAGReport{}, fmt.Errorf("parse show mlag: %w", err)
	}
	return MLAGReport{
		DomainID:     doc.DomainID,
		State:        doc.State,
		NegStatus:    doc.NegStatus,
		ConfigSanity: doc.ConfigSanity,
		PeerLink:     doc.PeerLink,
	}, nil
}

// ParseEOSActivePartial 解析 show mlag interfaces states active-partial | json，
// 返回处于 active-partial 的本地接口，按 MLAG ID 排序
func ParseEOSActivePartial(parsed interface{}) ([]string, error) {
	var doc map[string]json.RawMessage
	if err := remarshal(parsed, &doc); err != nil {
		return nil, fmt.Errorf("parse mlag interfaces: %w", err)
	}
	type entry struct{ id, iface string }
	var entries []entry
	for _, raw := range doc {
		// 只有 MLAG ID -> 接口对象的映射才是接口段
		var section map[string]struct {
			LocalInterface string `json:"localInterface"`
		}
		if json.Unmarshal(raw, &section) != nil {
			continue
		}
		for id, po := range section {
			if po.LocalInterface != "" {
				entries = append(entries, entry{id, po.LocalInterface})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		a, aerr := strconv.Atoi(entries[i].id)
		b, berr := strconv.Atoi(entries[j].id)
		if aerr == nil && berr == nil && a != b {
			return a < b
		}
		return entries[i].id < entries[j].id
	})
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.iface)
	}
	return out, nil
}
