package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kprusa/convergecast/internal/config"
	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/simharness"
	"github.com/kprusa/convergecast/internal/topology"
)

func newSimulateCommand(v *viper.Viper, configFile *string) *cobra.Command {
	var (
		topoFile  string
		duration  time.Duration
		clockTick time.Duration
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-process simulation over a scripted topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *configFile)
			if err != nil {
				return err
			}

			f, err := os.Open(topoFile)
			if err != nil {
				return errors.Wrap(err, "open topology file")
			}
			defer f.Close()

			net, err := topology.New(f)
			if err != nil {
				return errors.Wrap(err, "parse topology")
			}

			runID := uuid.New()
			logger := zap.NewNop()
			if verbose {
				logger, err = zap.NewDevelopment()
				if err != nil {
					return err
				}
			}
			logger = logger.With(zap.String("run_id", runID.String()))

			specs := make([]simharness.NodeSpec, 0, len(net.Nodes()))
			for _, id := range net.Nodes() {
				specs = append(specs, simharness.NodeSpec{
					ID:     id,
					Sensor: radio.SensorFunc(func() uint16 { return 6000 }),
					Config: cfg,
				})
			}

			h := simharness.New(net, specs, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, duration)
			defer cancel()

			h.Run(ctx, clockTick)
			return nil
		},
	}

	cmd.Flags().StringVar(&topoFile, "topology", "", "path to a link-state topology script (required)")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Minute, "how long to run the simulation")
	cmd.Flags().DurationVar(&clockTick, "clock-tick", 50*time.Millisecond, "real time per simulated second")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "emit node diagnostics to the console")
	cmd.MarkFlagRequired("topology")

	return cmd
}
