package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/netfleetpro/netfleet/internal/filter"
	"github.com/netfleetpro/netfleet/internal/service"
)

func newInventoryCmd() *cobra.Command {
	var (
		flags   filter.Flags
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "inventory [flags]",
		Short: "List the devices a filter selects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Metrics.Enabled = false
			svc, err := service.Build(cfg, service.BuildOptions{})
			if err != nil {
				return err
			}
			if err := svc.Reload(context.Background()); err != nil {
				return err
			}
			devices, err := svc.Select(flags.Predicate())
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(devices)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOSTNAME\tADDRESS\tPLATFORM\tCLASS\tSITE\tREGION\tTAGS")
			for _, d := range devices {
				fmt.Fprintf(tw, "%s\t%s:%d\t%s\t%s\t%s\t%s\t%s\n",
					d.Hostname, d.Address, d.Port, d.Platform, d.Class, d.Site, d.Region, strings.Join(d.Tags, ","))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%d of %d devices selected (%s)\n", len(devices), svc.Registry().Len(), flags.Predicate())
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringSliceVar(&flags.Hosts, "host", nil, "select devices by hostname")
	fs.StringSliceVar(&flags.Sites, "site", nil, "select devices by site")
	fs.StringSliceVar(&flags.Regions, "region", nil, "select devices by region")
	fs.StringSliceVar(&flags.Platforms, "platform", nil, "select devices by platform")
	fs.StringSliceVar(&flags.Tags, "tag", nil, "select devices carrying a tag")
	fs.BoolVar(&jsonOut, "json", false, "print devices as JSON")
	return cmd
}
