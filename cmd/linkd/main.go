package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
	"github.com/tzrikka/xdg"

	"github.com/tzrikka/link/internal/logctx"
	"github.com/tzrikka/link/internal/mqttlog"
	"github.com/tzrikka/link/pkg/codec"
	"github.com/tzrikka/link/pkg/link"
	"github.com/tzrikka/link/pkg/metrics"
	"github.com/tzrikka/link/pkg/netparams"
	"github.com/tzrikka/link/pkg/registry"
	"github.com/tzrikka/link/pkg/supervisor"
	"github.com/tzrikka/link/pkg/transport/mqtt"
	"github.com/tzrikka/link/pkg/transport/serial"
	"github.com/tzrikka/link/pkg/transport/tcp"
)

const (
	ConfigDirName  = "linkd"
	ConfigFileName = "config.toml"
)

func main() {
	bi, _ := debug.ReadBuildInfo()

	cmd := &cli.Command{
		Name:    "linkd",
		Usage:   "Transport-agnostic messaging daemon: frames, dispatches, and retransmits over a configured link",
		Version: bi.Main.Version,
		Flags:   flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			initLog(cmd.Bool("dev") || cmd.Bool("pretty-log"))
			return run(ctx, cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *metrics.Recorder
	if dir := cmd.String("metrics-dir"); dir != "" {
		var err error
		if recorder, err = metrics.NewRecorder(dir); err != nil {
			return err
		}
	}

	s, err := supervisor.New(supervisor.Config{
		Params:    linkParams(cmd),
		Registry:  defaultRegistry(),
		Data:      supervisor.DataPackage{Codec: selectCodec(cmd.String("codec"))},
		Events:    logSink{},
		QueueSize: cmd.Int("queue-size"),
		Metrics:   recorder,
	})
	if err != nil {
		return err
	}

	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// linkParams converts the link-specific CLI flags into the network
// parameter bag a supervisor consumes. Unset flags are simply absent keys.
func linkParams(cmd *cli.Command) netparams.Params {
	raw := map[string]string{}
	for flag, key := range map[string]string{
		"method":         "method",
		"role":           "role",
		"host":           "host",
		"port":           "port",
		"timeout":        "timeout",
		"port-name":      "port_name",
		"baud-rate":      "baud_rate",
		"broker-address": "broker_address",
		"keepalive":      "keepalive",
	} {
		if v := cmd.String(flag); v != "" {
			raw[key] = v
		}
	}
	return netparams.New(raw)
}

// defaultRegistry wires all three built-in transport families.
func defaultRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterReqRes("tcp", tcp.New)
	r.RegisterReqRes("serial", serial.New)
	r.RegisterPubSub("mqtt", mqtt.New)
	return r
}

func selectCodec(name string) codec.Codec {
	if name == "binary" {
		return codec.NewBinary(codec.BinaryConfig{
			UseLengthField: true,
			UseSyncField:   true,
		})
	}
	return codec.NewSentinel()
}

func flags() []cli.Flag {
	path := configFile()

	fs := []cli.Flag{
		&cli.BoolFlag{
			Name:  "dev",
			Usage: "simple setup, but unsafe for production",
		},
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
		&cli.StringFlag{
			Name:  "codec",
			Usage: `packet codec: "sentinel" or "binary"`,
			Value: "sentinel",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_CODEC"),
				toml.TOML("link.codec", path),
			),
		},
		&cli.IntFlag{
			Name:  "queue-size",
			Usage: "outbound queue capacity",
			Value: supervisor.DefaultQueueSize,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_QUEUE_SIZE"),
				toml.TOML("link.queue_size", path),
			),
		},
		&cli.StringFlag{
			Name:  "metrics-dir",
			Usage: "directory for CSV metrics files (empty disables metrics)",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_METRICS_DIR"),
				toml.TOML("link.metrics_dir", path),
			),
		},
	}

	return append(fs, transportFlags(path)...)
}

// transportFlags defines the per-link network parameters. These flags can
// also be set using environment variables and the application's
// configuration file.
func transportFlags(path altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "method",
			Usage: `transport family: "tcp", "serial", or "mqtt"`,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_METHOD"),
				toml.TOML("transport.method", path),
			),
		},
		&cli.StringFlag{
			Name:  "role",
			Usage: `TCP role: "client" or "server"`,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_ROLE"),
				toml.TOML("transport.role", path),
			),
		},
		&cli.StringFlag{
			Name:  "host",
			Usage: "TCP endpoint host",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_HOST"),
				toml.TOML("transport.host", path),
			),
		},
		&cli.StringFlag{
			Name:  "port",
			Usage: "TCP or MQTT broker port",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_PORT"),
				toml.TOML("transport.port", path),
			),
		},
		&cli.StringFlag{
			Name:  "timeout",
			Usage: "transport I/O timeout in seconds",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_TIMEOUT"),
				toml.TOML("transport.timeout", path),
			),
		},
		&cli.StringFlag{
			Name:  "port-name",
			Usage: "serial device path",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_PORT_NAME"),
				toml.TOML("transport.port_name", path),
			),
		},
		&cli.StringFlag{
			Name:  "baud-rate",
			Usage: "serial line rate",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_BAUD_RATE"),
				toml.TOML("transport.baud_rate", path),
			),
		},
		&cli.StringFlag{
			Name:  "broker-address",
			Usage: "MQTT broker hostname or IP address",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_BROKER_ADDRESS"),
				toml.TOML("transport.broker_address", path),
			),
		},
		&cli.StringFlag{
			Name:  "keepalive",
			Usage: "MQTT keepalive interval in seconds",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("LINK_KEEPALIVE"),
				toml.TOML("transport.keepalive", path),
			),
		},
	}
}

// configFile returns the path to the app's configuration file.
// It also creates an empty file if it doesn't already exist.
func configFile() altsrc.StringSourcer {
	path, err := xdg.CreateFile(xdg.ConfigHome, ConfigDirName, ConfigFileName)
	if err != nil {
		logctx.FatalError("failed to create config file", err)
	}
	return altsrc.StringSourcer(path)
}

// initLog initializes the default logger for the daemon and routes the MQTT
// client's internal logging through zerolog, based on whether it's running
// in development mode or not.
func initLog(devMode bool) {
	var handler slog.Handler
	if devMode {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		})
	}

	slog.SetDefault(slog.New(handler))

	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if devMode {
		zl = zl.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	mqttlog.Install(zl)
}

// logSink reports link lifecycle events in the process log; a daemon has no
// application handler to hand values to.
type logSink struct{}

func (logSink) OnSent(_ link.SendValue) {
	slog.Debug("message sent")
}

func (logSink) OnFailedSend(_ link.SendValue) {
	slog.Warn("message send failed")
}

func (logSink) OnReceived(_ link.ReceiveValue) {
	slog.Debug("message received")
}

func (logSink) OnFailedRecv(raw []byte) {
	slog.Warn("received bytes failed to decode", slog.Int("len", len(raw)))
}

func (logSink) OnDisconnected(_ []byte) {
	slog.Warn("link disconnected")
}
