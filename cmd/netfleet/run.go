package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netfleetpro/netfleet/internal/facts"
	"github.com/netfleetpro/netfleet/internal/service"
)

func newExecCmd() *cobra.Command {
	var (
		flags runFlags
		parse bool
	)
	cmd := &cobra.Command{
		Use:   "exec [flags] <command>...",
		Short: "Run show commands on the selected devices",
		Example: `  netfleet exec --site sjc "show version" "show clock"
  netfleet exec --platform eos --parse "show lldp neighbors"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			p := flags.Predicate()
			res, err := svc.Exec(ctx, service.ExecRequest{
				Filter:     p,
				Commands:   args,
				Structured: parse,
				Observer:   flags.observer(countSelected(svc, p)),
			})
			if err != nil {
				return err
			}
			return finish(&flags, res, res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&parse, "parse", false, "request structured output where the platform supports it")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var (
		flags runFlags
		file  string
	)
	cmd := &cobra.Command{
		Use:   "config [flags] [line]...",
		Short: "Push configuration lines in config mode",
		Example: `  netfleet config --tag iac "ntp server 10.0.0.1" "logging host 10.0.0.2"
  netfleet config --host core1 -f snippet.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := args
			if file != "" {
				bs, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				lines = append(lines, splitLines(string(bs))...)
			}
			if len(lines) == 0 {
				return fmt.Errorf("no config lines given")
			}

			ctx, cancel := signalContext()
			defer cancel()
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			p := flags.Predicate()
			res, err := svc.Configure(ctx, service.ConfigRequest{
				Filter:   p,
				Lines:    lines,
				Observer: flags.observer(countSelected(svc, p)),
			})
			if err != nil {
				return err
			}
			return finish(&flags, res, res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "read config lines from a file")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var (
		flags    runFlags
		template string
		check    bool
	)
	cmd := &cobra.Command{
		Use:   "apply --template <id> [flags]",
		Short: "Render a template per device and replace the running configuration",
		Example: `  netfleet apply --template base.tmpl --site den --check
  netfleet apply --template base.tmpl --host core1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			p := flags.Predicate()
			res, err := svc.Apply(ctx, service.ApplyRequest{
				Filter:     p,
				TemplateID: template,
				Check:      check,
				Observer:   flags.observer(countSelected(svc, p)),
			})
			if err != nil {
				return err
			}
			return finish(&flags, res, res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVarP(&template, "template", "t", "", "template id under templates.dir")
	cmd.Flags().BoolVar(&check, "check", false, "show the diff without changing devices")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	var (
		flags   runFlags
		tag     string
		markers []string
		check   bool
	)
	cmd := &cobra.Command{
		Use:   "describe [flags]",
		Short: "Set interface descriptions from LLDP neighbors",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			res, err := svc.Describe(ctx, service.DescribeRequest{
				Filter:   flags.Predicate(),
				Tag:      tag,
				Markers:  markers,
				Check:    check,
				Observer: flags.observer(0),
			})
			if err != nil {
				return err
			}
			if !flags.jsonOut && check {
				hosts := make([]string, 0, len(res.Proposed))
				for host := range res.Proposed {
					hosts = append(hosts, host)
				}
				sort.Strings(hosts)
				for _, host := range hosts {
					fmt.Printf("%s\n%s\n\n", host, strings.Join(res.Proposed[host], "\n"))
				}
			}
			if err := finish(&flags, res, nil); err != nil {
				return err
			}
			if res.Apply != nil && !res.Apply.OK() {
				return fmt.Errorf("%d of %d devices failed (run %s)", res.Apply.Failed, res.Apply.Selected, res.Apply.RunID)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&tag, "tag-prefix", service.DefaultDescriptionTag, "description prefix")
	cmd.Flags().StringSliceVar(&markers, "marker", nil, "hostname substrings marking network neighbors (default per platform)")
	cmd.Flags().BoolVar(&check, "check", false, "print proposed lines without changing devices")
	return cmd
}

func newDNSCmd() *cobra.Command {
	var (
		flags  runFlags
		domain string
	)
	cmd := &cobra.Command{
		Use:   "dns [flags]",
		Short: "Generate A and PTR records from interface addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			flags.quiet = true
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			res, err := svc.DNS(ctx, service.DNSRequest{
				Filter:   flags.Predicate(),
				Domain:   domain,
				Observer: flags.observer(0),
			})
			if err != nil {
				return err
			}
			if !flags.jsonOut {
				for _, l := range res.Lines() {
					fmt.Println(l)
				}
				for host, skipped := range res.Skipped {
					for _, s := range skipped {
						fmt.Fprintf(os.Stderr, "skipped %s %s %s: %s\n", host, s.Interface, s.Address, s.Reason)
					}
				}
			}
			return finish(&flags, res, res.Run)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&domain, "domain", "", "domain appended to generated names")
	return cmd
}

func newFactsCmd() *cobra.Command {
	var (
		flags   runFlags
		getters []string
	)
	cmd := &cobra.Command{
		Use:   "facts [flags]",
		Short: "Gather device facts by getter name",
		Example: `  netfleet facts --host sjc-sw1 --getter get_ntp_servers --getter get_users
  netfleet facts --site den --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			flags.quiet = true
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			res, err := svc.Facts(ctx, service.FactsRequest{
				Filter:   flags.Predicate(),
				Getters:  getters,
				Observer: flags.observer(0),
			})
			if err != nil {
				return err
			}
			if !flags.jsonOut {
				printFacts(os.Stdout, res)
			}
			return finish(&flags, res, res.Run)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringSliceVar(&getters, "getter", nil, "getters to run (default get_facts; one of "+strings.Join(facts.Getters(), ", ")+")")
	return cmd
}

func printFacts(w io.Writer, res *service.FactsResult) {
	for _, host := range res.Run.Order {
		fmt.Fprintf(w, "* %s %s\n", host, strings.Repeat("*", 40))
		if sum, ok := res.Summary[host]; ok {
			fmt.Fprintf(w, "  %s %s %s serial=%s uptime=%s\n", sum.Vendor, sum.Model, sum.OSVersion, sum.SerialNumber, sum.Uptime)
		}
		for _, g := range res.Getters {
			if msg, ok := res.Errors[host][g]; ok {
				fmt.Fprintf(w, "---- %s: %s\n", g, msg)
				continue
			}
			v, ok := res.Facts[host][g]
			if !ok {
				continue
			}
			if text, isText := v.(string); isText {
				fmt.Fprintf(w, "---- %s\n%s\n", g, strings.TrimRight(text, "\n"))
				continue
			}
			bs, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintf(w, "---- %s\n%s\n", g, bs)
		}
	}
}

func newMLAGCmd() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "mlag [flags]",
		Short: "Report EOS MLAG interfaces in an active-partial state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			flags.quiet = true
			svc, err := flags.newService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			res, err := svc.ValidateMLAG(ctx, service.MLAGRequest{Filter: flags.Predicate(), Observer: flags.observer(0)})
			if err != nil {
				return err
			}
			if !flags.jsonOut {
				for _, host := range res.Unhealthy() {
					rep := res.Reports[host]
					if rep.ConfigSanity == "inconsistent" {
						fmt.Printf("%s has inconsistent MLAG config sanity.\n", host)
					}
					if len(rep.ActivePartial) > 0 {
						fmt.Printf("%s has the following MLAG interface(s) in an active-partial state:\n", host)
						for _, i := range rep.ActivePartial {
							fmt.Printf("\t%s\n", i)
						}
					}
				}
			}
			if err := finish(&flags, res, res.Run); err != nil {
				return err
			}
			if bad := res.Unhealthy(); len(bad) > 0 {
				return fmt.Errorf("%d devices with MLAG problems", len(bad))
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func splitLines(s string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(l) == "" || strings.HasPrefix(strings.TrimSpace(l), "!") {
			continue
		}
		out = append(out, strings.TrimRight(l, " \t"))
	}
	return out
}
