package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesail/internal/config"
	"github.com/srg/blesail/internal/connector"
	"github.com/srg/blesail/internal/device"
	"github.com/srg/blesail/internal/devicefactory"
	"github.com/srg/blesail/internal/groutine"
	"github.com/srg/blesail/internal/metrics"
	"github.com/srg/blesail/internal/profile"
	"github.com/srg/blesail/internal/sink"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the sensor and show live values",
	Long: `Selects the sensor, connects, subscribes to every source of the profile and
shows each decoded value as it arrives. Sources that cannot be subscribed are
reported and skipped; the others keep streaming until Ctrl+C or link loss.

Outputs:
  board  - live table, one row per source (default)
  lines  - one "name=value" line per update on stdout
  pty    - "name=value" lines on a new pseudo-terminal, for other programs
  mqtt   - one message per update on <topic>/<source name> (--mqtt-broker)

Examples:
  # Built-in profile, sensor selected by its service
  blesail connect

  # Select by local name, show every update as a line
  blesail connect --profile wind-by-name --output lines

  # Custom profile file with a Lua decoder, last 30 samples as trend
  blesail connect --profile-file boat.yaml --profile boat --history 30

  # No hardware: stream from the built-in simulator
  blesail connect --simulate

  # Publish to a broker and expose Prometheus counters
  blesail connect --output mqtt --mqtt-broker tcp://localhost:1883 --metrics-addr :9100`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

var (
	connectProfile        string
	connectProfileFile    string
	connectAddress        string
	connectOutput         string
	connectSimulate       bool
	connectScanTimeout    time.Duration
	connectConnectTimeout time.Duration
	connectInterval       time.Duration
	connectSimInterval    time.Duration
	connectHistory        int
	connectBuffer         int
	connectDuration       time.Duration
	connectMetricsAddr    string
	connectMQTT           config.MQTTConfig
)

func init() {
	d := config.DefaultConfig()
	connectCmd.Flags().StringVarP(&connectProfile, "profile", "p", d.Profile, "Device profile to use (see 'blesail profiles')")
	connectCmd.Flags().StringVar(&connectProfileFile, "profile-file", "", "YAML file with additional profiles")
	connectCmd.Flags().StringVarP(&connectAddress, "address", "a", "", "Connect to this address instead of scanning")
	connectCmd.Flags().StringVarP(&connectOutput, "output", "o", d.Output, "Output: board, lines, pty or mqtt")
	connectCmd.Flags().BoolVar(&connectSimulate, "simulate", false, "Use the built-in sensor simulator instead of the radio")
	connectCmd.Flags().DurationVar(&connectScanTimeout, "scan-timeout", d.ScanTimeout, "How long to scan for the sensor")
	connectCmd.Flags().DurationVar(&connectConnectTimeout, "connect-timeout", d.ConnectTimeout, "How long to wait for the connection")
	connectCmd.Flags().DurationVar(&connectInterval, "interval", d.Interval, "Board redraw interval")
	connectCmd.Flags().DurationVar(&connectSimInterval, "sim-interval", d.SimInterval, "Simulator notification interval")
	connectCmd.Flags().IntVar(&connectHistory, "history", d.History, "Samples kept per source for the min/max trend (0 = off)")
	connectCmd.Flags().IntVar(&connectBuffer, "buffer", d.StreamBuffer, "Pending payloads per source before the oldest is dropped")
	connectCmd.Flags().DurationVar(&connectDuration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")
	connectCmd.Flags().StringVar(&connectMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")

	connectCmd.Flags().StringVar(&connectMQTT.Broker, "mqtt-broker", "", "MQTT broker for --output mqtt, e.g. tcp://localhost:1883")
	connectCmd.Flags().StringVar(&connectMQTT.Topic, "mqtt-topic", d.MQTT.Topic, "MQTT topic prefix")
	connectCmd.Flags().StringVar(&connectMQTT.ClientID, "mqtt-client-id", "", "MQTT client ID (default random)")
	connectCmd.Flags().StringVar(&connectMQTT.Username, "mqtt-username", "", "MQTT username")
	connectCmd.Flags().StringVar(&connectMQTT.Password, "mqtt-password", "", "MQTT password")
	connectCmd.Flags().IntVar(&connectMQTT.QoS, "mqtt-qos", d.MQTT.QoS, "MQTT QoS: 0, 1 or 2")
	connectCmd.Flags().BoolVar(&connectMQTT.Retain, "mqtt-retain", true, "Publish retained messages")
}

// connectConfig collects the flags of the connect command
func connectConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Profile = connectProfile
	cfg.ProfileFile = connectProfileFile
	cfg.Address = connectAddress
	cfg.Output = connectOutput
	cfg.Simulate = connectSimulate
	cfg.ScanTimeout = connectScanTimeout
	cfg.ConnectTimeout = connectConnectTimeout
	cfg.Interval = connectInterval
	cfg.SimInterval = connectSimInterval
	cfg.History = connectHistory
	cfg.StreamBuffer = connectBuffer
	cfg.MetricsAddr = connectMetricsAddr
	cfg.MQTT = connectMQTT
	return cfg
}

// loadProfiles returns the built-in profiles merged with the profile file, if any
func loadProfiles(path string, decoders *profile.Decoders) (*profile.Set, error) {
	set := profile.Builtins()
	if path == "" {
		return set, nil
	}
	loaded, err := profile.LoadFile(path, decoders)
	if err != nil {
		return nil, err
	}
	set.Merge(loaded)
	return set, nil
}

// output wires the profile sources to the selected display
type output struct {
	sinks profile.SinkFactory
	board *sink.Board
	close func() error
}

func newOutput(cfg *config.Config, p *profile.Profile, stdout, stderr io.Writer, logger *logrus.Logger) (*output, error) {
	switch cfg.Output {
	case config.OutputLines:
		lines := sink.NewLines(stdout, nil, logger)
		return &output{
			sinks: func(src profile.SourceSpec, _ *sink.History) sink.Sink { return lines.Sink(src.Name) },
			close: func() error { return nil },
		}, nil

	case config.OutputPTY:
		pty, err := sink.NewPTY(nil, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create pty: %w", err)
		}
		fmt.Fprintf(stderr, "Values are written to %s\n", pty.Path())
		return &output{
			sinks: func(src profile.SourceSpec, _ *sink.History) sink.Sink { return pty.Sink(src.Name) },
			close: pty.Close,
		}, nil

	case config.OutputMQTT:
		m, err := sink.DialMQTT(&sink.MQTTOptions{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.Topic,
			QoS:         cfg.MQTT.QoS,
			Retained:    cfg.MQTT.Retain,
		}, logger)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(stderr, "Values are published to %s on %s\n", m.Topic("<source>"), cfg.MQTT.Broker)
		return &output{
			sinks: func(src profile.SourceSpec, _ *sink.History) sink.Sink { return m.Sink(src.Name) },
			close: m.Close,
		}, nil

	default:
		board := sink.NewBoard(stdout, &sink.BoardOptions{
			Interval: cfg.Interval,
			Title:    fmt.Sprintf("%s: %s", p.Name, p.Description),
		})
		return &output{
			sinks: func(src profile.SourceSpec, hist *sink.History) sink.Sink { return board.Add(src.Name, hist) },
			board: board,
			close: func() error { return nil },
		}, nil
	}
}

func runConnect(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	cfg := connectConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	decoders := profile.NewDecoders("", logger)
	defer decoders.Close()

	set, err := loadProfiles(cfg.ProfileFile, decoders)
	if err != nil {
		return err
	}
	p, err := set.Get(cfg.Profile)
	if err != nil {
		return err
	}

	filter := p.Filter
	if cfg.Address != "" {
		filter = device.Filter{Address: cfg.Address}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	out, err := newOutput(cfg, p, stdout, stderr, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.close(); err != nil {
			logger.WithField("error", err).Warn("Failed to close output")
		}
	}()

	reg, err := p.Build(decoders, out.sinks, &profile.BuildOptions{History: cfg.History})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context(), connectDuration)
	defer cancel()

	progress := NewProgressPrinter(stderr, fmt.Sprintf("Connecting to sensor (%s)", filter))
	progress.Start()
	defer progress.Stop()

	c := connector.New(devicefactory.NewCentral(cfg, logger), reg.Descriptors(), &connector.Options{
		Filter: filter,
		Request: &device.RequestOptions{
			ScanTimeout:    cfg.ScanTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
		},
		StreamBuffer: cfg.StreamBuffer,
		OnState:      progress.Update,
		Logger:       logger,
	})

	session, err := c.Connect(ctx)
	progress.Stop()
	if err != nil {
		if ctx.Err() != nil && isInterrupt(err) {
			return nil
		}
		return err
	}
	closed := false
	closeSession := func() {
		if closed {
			return
		}
		closed = true
		if err := session.Close(); err != nil {
			logger.WithField("error", err).Warn("Failed to close session")
		}
	}
	defer closeSession()

	reportResults(stderr, session)
	if session.Subscribed() == 0 {
		return ErrNoSources
	}

	var renderer groutine.Group
	renderCtx, stopRender := context.WithCancel(context.Background())
	defer stopRender()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr, session, logger)
		if err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
		fmt.Fprintf(stderr, "Metrics on http://%s/metrics\n", srv.Addr())
		renderer.Go(renderCtx, "metrics-serve", func(ctx context.Context) {
			if err := srv.Serve(ctx); err != nil {
				logger.WithField("error", err).Warn("Metrics server stopped")
			}
		})
	}
	if out.board != nil {
		renderer.Go(renderCtx, "board-render", func(ctx context.Context) {
			if err := out.board.Run(ctx); err != nil {
				logger.WithField("error", err).Warn("Board rendering stopped")
			}
		})
	}

	select {
	case <-ctx.Done():
		closeSession()
	case <-session.Done():
	}
	stopRender()
	renderer.Wait()

	for _, st := range session.Stats() {
		logger.WithFields(logrus.Fields{
			"source":   st.Name,
			"received": st.Received,
			"dropped":  st.Dropped,
			"decoded":  st.Decoded,
			"failed":   st.Failed,
		}).Info("Source statistics")
	}

	if err := session.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	return nil
}

// reportResults prints which sources stream and why the others do not
func reportResults(w io.Writer, session *connector.Session) {
	results := session.Results()
	fmt.Fprintf(w, "Connected to %s (%s), streaming %d of %d sources. Press Ctrl+C to stop...\n",
		session.Peripheral().Name(), session.Peripheral().Address(), session.Subscribed(), len(results))
	for _, r := range results {
		if !r.OK() {
			fmt.Fprintf(w, "  skipped %s: %s failed: %v\n", r.Descriptor.Name, r.Stage, r.Err)
		}
	}
}

// signalContext is cancelled on SIGINT/SIGTERM and, when d > 0, after d
func signalContext(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if d <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, d)
	return tctx, func() {
		cancel()
		stop()
	}
}

// isInterrupt reports whether err only reflects the user stopping the command
func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
