package report

import (
	"context"

	"github.com/netfleetpro/netfleet/internal/database"
	"github.com/netfleetpro/netfleet/internal/fleet"
)

// StoreSink 将运行汇总写入审计库
type StoreSink struct {
	Store *database.RunStore
}

// Write 写入运行与设备摘要
func (s *StoreSink) Write(ctx context.Context, run Run, res *fleet.FleetResult) error {
	return s.Store.Finish(ctx, database.RunMeta{
		ID:         res.RunID,
		Kind:       run.Kind,
		Filter:     run.Filter,
		TemplateID: run.TemplateID,
		DryRun:     run.DryRun,
		Selected:   res.Selected,
	}, res)
}
