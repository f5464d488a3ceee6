package cli

import (
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kprusa/convergecast/internal/config"
	"github.com/kprusa/convergecast/internal/convnode"
	"github.com/kprusa/convergecast/internal/logging"
	"github.com/kprusa/convergecast/internal/metrics"
	"github.com/kprusa/convergecast/internal/radio"
	"github.com/kprusa/convergecast/internal/radio/udpradio"
)

func newRunCommand(v *viper.Viper, configFile *string) *cobra.Command {
	var (
		beaconGroup  string
		dataAddr     string
		ackAddr      string
		peerFlags    []string
		sensorConst  uint16
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single convergecast node over UDP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, *configFile)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			peers, err := parsePeers(peerFlags)
			if err != nil {
				return err
			}

			beacon, err := udpradio.NewBroadcast(cfg.NodeID, beaconGroup)
			if err != nil {
				return errors.Wrap(err, "broadcast transport")
			}
			dataTx, err := udpradio.NewUnicast(cfg.NodeID, dataAddr, peers)
			if err != nil {
				return errors.Wrap(err, "data transport")
			}
			ackTx, err := udpradio.NewUnicast(cfg.NodeID, ackAddr, peers)
			if err != nil {
				return errors.Wrap(err, "ack transport")
			}

			base, err := zap.NewProduction()
			if err != nil {
				return errors.Wrap(err, "build logger")
			}
			defer base.Sync()
			logger := logging.New(base, cfg.NodeID)

			ms := metrics.New(cfg.NodeID)
			if cfg.MetricsAddr != "" {
				go serveMetrics(cfg.MetricsAddr, ms)
			}

			node := convnode.New(cfg, convnode.Deps{
				Beacon:  beacon,
				Data:    dataTx,
				Ack:     ackTx,
				Sensor:  radio.SensorFunc(func() uint16 { return sensorConst }),
				Logger:  logger,
				Metrics: ms,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return node.Run(ctx)
		},
	}

	cmd.Flags().Uint16("node-id", 0, "this node's id (1 = sink)")
	cmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&beaconGroup, "beacon-group", "239.0.0.1:9128", "UDP multicast group for the beacon channel")
	cmd.Flags().StringVar(&dataAddr, "data-addr", ":9140", "local UDP address for the data channel")
	cmd.Flags().StringVar(&ackAddr, "ack-addr", ":9142", "local UDP address for the ACK channel")
	cmd.Flags().StringSliceVar(&peerFlags, "peer", nil, "peer as id=host:port, repeatable")
	cmd.Flags().Uint16Var(&sensorConst, "sensor-const", 6000, "constant raw sensor sample (stand-in for a real sensor driver)")
	v.BindPFlag("node_id", cmd.Flags().Lookup("node-id"))
	v.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics-addr"))

	return cmd
}

func parsePeers(flags []string) (udpradio.PeerMap, error) {
	peers := make(udpradio.PeerMap, len(flags))
	for _, f := range flags {
		parts := strings.SplitN(f, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("malformed --peer %q, want id=host:port", f)
		}
		id, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "peer id %q", parts[0])
		}
		addr, err := net.ResolveUDPAddr("udp4", parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "peer addr %q", parts[1])
		}
		peers[uint16(id)] = addr
	}
	return peers, nil
}

func serveMetrics(addr string, ms *metrics.Set) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(ms.Registry, promhttp.HandlerOpts{}))
	_ = http.ListenAndServe(addr, mux)
}
