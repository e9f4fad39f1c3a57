package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/netfleetpro/netfleet/internal/lab"
	"github.com/netfleetpro/netfleet/pkg/logger"
)

func newLabCmd() *cobra.Command {
	var (
		labConfig string
		listen    string
	)
	cmd := &cobra.Command{
		Use:   "lab",
		Short: "Run simulated SSH devices for local testing",
		Long: `Starts an SSH server where the login username selects a simulated device.
Point inventory hosts at the listen address with username set to the device name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lc, err := lab.LoadConfig(labConfig)
			if err != nil {
				return err
			}
			if listen != "" {
				lc.Listen = listen
			}
			srv, err := lab.NewServer(*lc)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			if err := srv.Start(); err != nil {
				return err
			}
			names := make([]string, 0, len(lc.Devices))
			for name := range lc.Devices {
				names = append(names, name)
			}
			sort.Strings(names)
			fmt.Fprintf(os.Stderr, "lab listening on %s, devices: %s\n", srv.Addr(), strings.Join(names, ", "))
			logger.WithField("addr", srv.Addr().String()).Info("Lab: ready")

			<-ctx.Done()
			srv.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&labConfig, "lab-config", "configs/lab.yaml", "lab device definitions")
	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
