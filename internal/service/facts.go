package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/netfleetpro/netfleet/internal/credential"
	"github.com/netfleetpro/netfleet/internal/facts"
	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/fleet"
	"github.com/netfleetpro/netfleet/internal/inventory"
	"github.com/netfleetpro/netfleet/internal/model"
	"github.com/netfleetpro/netfleet/internal/report"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

func platformsPredicate(platforms []string) filter.Predicate {
	ps := make([]filter.Predicate, 0, len(platforms))
	for _, p := range platforms {
		ps = append(ps, filter.ByPlatform(p))
	}
	return filter.Or(ps...)
}

// FactsRequest 按 getter 采集设备信息
type FactsRequest struct {
	Filter filter.Predicate
	// Getters 为空时采集 get_facts
	Getters  []string
	Observer fleet.Observer
}

// FactsResult 按设备、getter 组织的采集结果
type FactsResult struct {
	Run     *fleet.FleetResult                `json:"run"`
	Getters []string                          `json:"getters"`
	Facts   map[string]map[string]interface{} `json:"facts"`
	Errors  map[string]map[string]string      `json:"errors,omitempty"`
	Summary map[string]facts.Summary          `json:"summary,omitempty"`
}

// Facts 在 ios/eos/junos 设备上执行 getter 对应的命令
func (s *FleetService) Facts(ctx context.Context, req FactsRequest) (*FactsResult, error) {
	getters, err := facts.Normalize(req.Getters)
	if err != nil {
		return nil, err
	}
	devices, err := s.Select(filter.And(req.Filter, platformsPredicate(facts.Platforms())))
	if err != nil {
		return nil, err
	}

	meta := report.Run{Kind: model.RunKindFacts, Filter: req.Filter.String()}
	plan := fleet.PlanFunc(func(_ context.Context, d inventory.Device, _ credential.Credentials) ([]fleet.Task, error) {
		var tasks []fleet.Task
		for _, c := range facts.Commands(d.Platform, getters) {
			tasks = append(tasks, fleet.ExecCommand{Command: c.Command, Structured: c.Structured})
		}
		return tasks, nil
	})
	res, err := s.runPlan(ctx, meta, devices, req.Observer, plan)
	if err != nil {
		return nil, err
	}

	out := &FactsResult{
		Run:     res,
		Getters: getters,
		Facts:   map[string]map[string]interface{}{},
		Errors:  map[string]map[string]string{},
		Summary: map[string]facts.Summary{},
	}
	for _, d := range devices {
		dr, ok := res.Get(d.Hostname)
		if !ok {
			continue
		}
		cmds := facts.Commands(d.Platform, getters)
		for i, st := range dr.Subtasks {
			if i >= len(cmds) {
				break
			}
			g := cmds[i].Getter
			if st.Status == fleet.StatusFailed {
				if out.Errors[d.Hostname] == nil {
					out.Errors[d.Hostname] = map[string]string{}
				}
				out.Errors[d.Hostname][g] = fmt.Sprint(st.Err)
				continue
			}
			if out.Facts[d.Hostname] == nil {
				out.Facts[d.Hostname] = map[string]interface{}{}
			}
			if cmds[i].Structured && st.Parsed != nil {
				out.Facts[d.Hostname][g] = st.Parsed
			} else {
				out.Facts[d.Hostname][g] = st.Output
			}
			if g == facts.DefaultGetter {
				if sum, ok := summarize(d.Platform, st); ok {
					out.Summary[d.Hostname] = sum
				}
			}
		}
	}
	return out, nil
}

func summarize(platform string, st fleet.SubtaskResult) (facts.Summary, bool) {
	switch platform {
	case "eos":
		sum, err := facts.ParseEOSVersion(st.Parsed)
		return sum, err == nil
	case "ios":
		return facts.ParseIOSVersion(st.Output), true
	}
	return facts.Summary{}, false
}

// MLAGRequest EOS MLAG 状态检查
type MLAGRequest struct {
	Filter   filter.Predicate
	Observer fleet.Observer
}

// MLAGResult 按设备的 MLAG 状态
type MLAGResult struct {
	Run     *fleet.FleetResult          `json:"run"`
	Reports map[string]facts.MLAGReport `json:"reports"`
}

// Unhealthy 存在 active-partial 接口或配置不一致的设备（排序）
func (r *MLAGResult) Unhealthy() []string {
	var out []string
	for host, rep := range r.Reports {
		if !rep.Healthy() {
			out = append(out, host)
		}
	}
	sort.Strings(out)
	return out
}

// ValidateMLAG 读取 EOS 设备的 MLAG 状态与 active-partial 接口
func (s *FleetService) ValidateMLAG(ctx context.Context, req MLAGRequest) (*MLAGResult, error) {
	devices, err := s.Select(filter.And(req.Filter, filter.ByPlatform("eos")))
	if err != nil {
		return nil, err
	}
	meta := report.Run{Kind: model.RunKindMLAG, Filter: req.Filter.String()}
	tasks := fleet.ExecCommands(true, facts.MLAGStatusCommand, facts.MLAGActivePartialCommand)
	res, err := s.runPlan(ctx, meta, devices, req.Observer, fleet.StaticPlan(tasks))
	if err != nil {
		return nil, err
	}

	out := &MLAGResult{Run: res, Reports: map[string]facts.MLAGReport{}}
	for _, d := range devices {
		dr, ok := res.Get(d.Hostname)
		if !ok || dr.Status() == fleet.StatusFailed || len(dr.Subtasks) < 2 {
			continue
		}
		log := logger.ForDevice(res.RunID, d.Hostname)
		rep, err := facts.ParseEOSMLAG(dr.Subtasks[0].Parsed)
		if err != nil {
			log.WithError(err).Warn("Failed to parse mlag status")
			continue
		}
		rep.ActivePartial, err = facts.ParseEOSActivePartial(dr.Subtasks[1].Parsed)
		if err != nil {
			log.WithError(err).Warn("Failed to parse mlag interfaces")
			continue
		}
		out.Reports[d.Hostname] = rep
	}
	return out, nil
}
