package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/internal/model"
	"github.com/netfleetpro/netfleet/internal/naming"
	"github.com/netfleetpro/netfleet/internal/report"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

// DefaultDescriptionTag 接口描述前缀
const DefaultDescriptionTag = "TRN: "

// 邻居与地址发现支持的平台
var discoveryPlatforms = filter.Or(filter.ByPlatform("eos"), filter.ByPlatform("ios"))

// DescribeRequest 根据 LLDP 邻居生成接口描述
type DescribeRequest struct {
	Filter filter.Predicate
	// Tag 描述前缀，为空时使用 DefaultDescriptionTag
	Tag string
	// Markers 覆盖默认的网络设备主机名标记
	Markers []string
	// Check 只返回拟下发的配置行
	Check    bool
	Observer fleet.Observer
}

// DescribeResult 两阶段结果；Check 模式或无待下发行时 Apply 为空
type DescribeResult struct {
	Discovery *fleet.FleetResult  `json:"discovery"`
	Proposed  map[string][]string `json:"proposed"`
	Apply     *fleet.FleetResult  `json:"apply,omitempty"`
}

// Describe 读取 LLDP 邻居，为连接网络设备的端口下发描述
func (s *FleetService) Describe(ctx context.Context, req DescribeRequest) (*DescribeResult, error) {
	tag := req.Tag
	if tag == "" {
		tag = DefaultDescriptionTag
	}
	devices, err := s.Select(filter.And(req.Filter, discoveryPlatforms))
	if err != nil {
		return nil, err
	}

	meta := report.Run{Kind: model.RunKindDescribe, Filter: req.Filter.String(), DryRun: req.Check}
	plan := fleet.PlanFunc(func(_ context.Context, d inventory.Device, _ credential.Credentials) ([]fleet.Task, error) {
		return []fleet.Task{fleet.ExecCommand{Command: "show lldp neighbors", Structured: d.Platform == "eos"}}, nil
	})
	discovery, err := s.runPlan(ctx, meta, devices, req.Observer, plan)
	if err != nil {
		return nil, err
	}

	out := &DescribeResult{Discovery: discovery, Proposed: map[string][]string{}}
	var targets []inventory.Device
	for _, d := range devices {
		dr, ok := discovery.Get(d.Hostname)
		if !ok || dr.Status() == fleet.StatusFailed || len(dr.Subtasks) == 0 {
			continue
		}
		neighbors, err := parseNeighbors(d.Platform, dr.Subtasks[0])
		if err != nil {
			logger.ForDevice(discovery.RunID, d.Hostname).WithError(err).Warn("Failed to parse lldp neighbors")
			continue
		}
		markers := req.Markers
		if len(markers) == 0 {
			markers = naming.DefaultMarkers(d.Platform)
		}
		lines := naming.DescriptionLines(neighbors, tag, naming.NeighborClassifier{Markers: markers})
		if len(lines) == 0 {
			continue
		}
		out.Proposed[d.Hostname] = lines
		targets = append(targets, d)
	}
	if req.Check || len(targets) == 0 {
		return out, nil
	}

	meta.DryRun = false
	apply := fleet.PlanFunc(func(_ context.Context, d inventory.Device, _ credential.Credentials) ([]fleet.Task, error) {
		return []fleet.Task{fleet.ConfigApply{Lines: out.Proposed[d.Hostname]}}, nil
	})
	out.Apply, err = s.runPlan(ctx, meta, targets, req.Observer, apply)
	if err != nil {
		return out, err
	}
	return out, nil
}

func parseNeighbors(platform string, st fleet.SubtaskResult) ([]naming.Neighbor, error) {
	if platform == "eos" {
		if st.Parsed == nil {
			return nil, fmt.Errorf("no structured output")
		}
		return naming.ParseEOSNeighbors(st.Parsed)
	}
	return naming.ParseIOSNeighbors(st.Output), nil
}

// DNSRequest 根据三层接口地址生成 DNS 记录
type DNSRequest struct {
	Filter   filter.Predicate
	Domain   string
	Observer fleet.Observer
}

// DNSResult 按设备的记录与跳过的接口
type DNSResult struct {
	Run     *fleet.FleetResult          `json:"run"`
	Records map[string][]naming.Record  `json:"records"`
	Skipped map[string][]naming.Skipped `json:"skipped,omitempty"`
}

// Lines 所有记录的对齐文本，按主机名排序
func (r *DNSResult) Lines() []string {
	hosts := make([]string, 0, len(r.Records))
	for h := range r.Records {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	var out []string
	for _, h := range hosts {
		for _, rec := range r.Records[h] {
			out = append(out, strings.TrimRight(rec.String(), " "))
		}
	}
	return out
}

// DNS 读取接口地址并生成 A/PTR 记录
func (s *FleetService) DNS(ctx context.Context, req DNSRequest) (*DNSResult, error) {
	devices, err := s.Select(filter.And(req.Filter, discoveryPlatforms))
	if err != nil {
		return nil, err
	}
	meta := report.Run{Kind: model.RunKindDNS, Filter: req.Filter.String()}
	plan := fleet.PlanFunc(func(_ context.Context, d inventory.Device, _ credential.Credentials) ([]fleet.Task, error) {
		if d.Platform == "eos" {
			return []fleet.Task{fleet.ExecCommand{Command: "show ip interface", Structured: true}}, nil
		}
		return []fleet.Task{fleet.ExecCommand{Command: "show ip interface brief"}}, nil
	})
	res, err := s.runPlan(ctx, meta, devices, req.Observer, plan)
	if err != nil {
		return nil, err
	}

	out := &DNSResult{Run: res, Records: map[string][]naming.Record{}, Skipped: map[string][]naming.Skipped{}}
	for _, d := range devices {
		dr, ok := res.Get(d.Hostname)
		if !ok || dr.Status() == fleet.StatusFailed || len(dr.Subtasks) == 0 {
			continue
		}
		st := dr.Subtasks[0]
		var ifaces []naming.InterfaceIP
		if d.Platform == "eos" {
			ifaces, err = naming.ParseEOSInterfaceIPs(st.Parsed)
			if err != nil {
				logger.ForDevice(res.RunID, d.Hostname).WithError(err).Warn("Failed to parse ip interfaces")
				continue
			}
		} else {
			ifaces = naming.ParseIOSInterfaceIPs(st.Output)
		}
		records, skipped := s.rewriter.Records(d.Hostname, ifaces, req.Domain)
		if len(records) > 0 {
			out.Records[d.Hostname] = records
		}
		if len(skipped) > 0 {
			out.Skipped[d.Hostname] = skipped
		}
	}
	return out, nil
}
