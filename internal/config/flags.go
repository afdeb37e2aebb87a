package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "echobench",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Transport flags
	flags.String("transport", string(TransportMemory), "Transport: 'memory', 'websocket', 'grpc', or 'mqtt'")
	flags.StringP("endpoint", "e", "", "Relay or broker address (ws://host:port, host:port, or tcp://host:port)")
	flags.String("outbound-topic", DefaultOutboundTopic, "Topic the harness publishes on")
	flags.String("inbound-topic", DefaultInboundTopic, "Topic the harness receives echoes on")

	// Benchmark flags
	flags.IntSlice("sizes", DefaultSizes, "Payload sizes in bytes, one run per size")
	flags.IntP("samples", "n", DefaultSamples, "Round trips per run")
	flags.String("clock", string(ClockMonotonic), "Clock source: 'monotonic' or 'raw'")
	flags.Int("calibration-reads", DefaultCalibrationReads, "Clock reads used to estimate timing overhead")
	flags.Duration("match-timeout", DefaultMatchTimeout, "How long to wait for the echo path to be matched")
	flags.Duration("reply-timeout", DefaultReplyTimeout, "How long to wait for each echo")
	flags.Float64P("rate", "r", 0, "Round trips per second (0 means back-to-back)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing (uniform or poisson)")
	flags.Int64("arrival-seed", 0, "Random seed for the poisson arrival model (0 picks one)")
	flags.DurationP("duration", "d", 0, "Stop starting new runs after this long (0 means no limit)")
	flags.Bool("fail-fast", false, "Stop the suite at the first failed run")

	// Output flags
	flags.StringP("output", "o", string(OutputCSV), "Report format: 'csv', 'table', 'json', or 'yaml'")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.String("history-file", "", "Append one JSON line per completed run to this file")
	flags.String("baseline", "", "Compare against a previous JSON report")
	flags.Float64("max-regression", 0, "Fail when mean or p99 regresses by more than this percentage")
	flags.StringSlice("threshold", nil, "RTT thresholds in microseconds (repeatable, e.g. 'rtt:p99 < 250')")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", false, "Print a progress line to stderr every second")
	flags.String("log-level", "", "Log level: debug, info, warn, or error")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// WebSocket flags
	flags.Duration("ws-handshake-timeout", 0, "WebSocket handshake timeout (0 uses the dialer default)")

	// gRPC flags
	flags.Bool("grpc-tls", false, "Use TLS for gRPC connection")
	flags.Bool("grpc-insecure", false, "Skip TLS verification for gRPC")

	// MQTT flags
	flags.Int("mqtt-qos", 0, "MQTT quality of service level")
	flags.String("mqtt-client-id", "", "MQTT client ID prefix (defaults to a random ID)")
	flags.String("mqtt-username", "", "MQTT username")
	flags.String("mqtt-password", "", "MQTT password")
	flags.Duration("mqtt-keep-alive", 0, "MQTT keep-alive interval (0 uses the client default)")

	// Relay flags
	flags.String("listen", DefaultRelayListen, "Relay WebSocket listen address")
	flags.String("grpc-listen", DefaultRelayGRPCListen, "Relay gRPC listen address")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of runs to trace")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides copies every flag the user set explicitly onto cfg.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("transport") {
		val, err := fs.GetString("transport")
		if err != nil {
			return err
		}
		cfg.Transport = Transport(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("endpoint") {
		val, err := fs.GetString("endpoint")
		if err != nil {
			return err
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("outbound-topic") {
		val, err := fs.GetString("outbound-topic")
		if err != nil {
			return err
		}
		cfg.OutboundTopic = val
	}
	if fs.Changed("inbound-topic") {
		val, err := fs.GetString("inbound-topic")
		if err != nil {
			return err
		}
		cfg.InboundTopic = val
	}
	if fs.Changed("sizes") {
		val, err := fs.GetIntSlice("sizes")
		if err != nil {
			return err
		}
		cfg.Sizes = val
	}
	if fs.Changed("samples") {
		val, err := fs.GetInt("samples")
		if err != nil {
			return err
		}
		cfg.Samples = val
	}
	if fs.Changed("clock") {
		val, err := fs.GetString("clock")
		if err != nil {
			return err
		}
		cfg.Clock = ClockKind(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("calibration-reads") {
		val, err := fs.GetInt("calibration-reads")
		if err != nil {
			return err
		}
		cfg.CalibrationReads = val
	}
	if fs.Changed("match-timeout") {
		val, err := fs.GetDuration("match-timeout")
		if err != nil {
			return err
		}
		cfg.MatchTimeout = val
	}
	if fs.Changed("reply-timeout") {
		val, err := fs.GetDuration("reply-timeout")
		if err != nil {
			return err
		}
		cfg.ReplyTimeout = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetFloat64("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("arrival-seed") {
		val, err := fs.GetInt64("arrival-seed")
		if err != nil {
			return err
		}
		cfg.Arrival.Seed = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("fail-fast") {
		val, err := fs.GetBool("fail-fast")
		if err != nil {
			return err
		}
		cfg.FailFast = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("html-output") {
		val, err := fs.GetString("html-output")
		if err != nil {
			return err
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}
	if fs.Changed("history-file") {
		val, err := fs.GetString("history-file")
		if err != nil {
			return err
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}
	if fs.Changed("baseline") {
		val, err := fs.GetString("baseline")
		if err != nil {
			return err
		}
		cfg.Baseline = strings.TrimSpace(val)
	}
	if fs.Changed("max-regression") {
		val, err := fs.GetFloat64("max-regression")
		if err != nil {
			return err
		}
		cfg.MaxRegression = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.TrimSpace(val)
	}

	if fs.Changed("ws-handshake-timeout") {
		val, err := fs.GetDuration("ws-handshake-timeout")
		if err != nil {
			return err
		}
		cfg.WebSocket.HandshakeTimeout = val
	}
	if fs.Changed("grpc-tls") {
		val, err := fs.GetBool("grpc-tls")
		if err != nil {
			return err
		}
		cfg.GRPC.TLS = val
	}
	if fs.Changed("grpc-insecure") {
		val, err := fs.GetBool("grpc-insecure")
		if err != nil {
			return err
		}
		cfg.GRPC.Insecure = val
	}
	if fs.Changed("mqtt-qos") {
		val, err := fs.GetInt("mqtt-qos")
		if err != nil {
			return err
		}
		cfg.MQTT.QoS = val
	}
	if fs.Changed("mqtt-client-id") {
		val, err := fs.GetString("mqtt-client-id")
		if err != nil {
			return err
		}
		cfg.MQTT.ClientID = strings.TrimSpace(val)
	}
	if fs.Changed("mqtt-username") {
		val, err := fs.GetString("mqtt-username")
		if err != nil {
			return err
		}
		cfg.MQTT.Username = val
	}
	if fs.Changed("mqtt-password") {
		val, err := fs.GetString("mqtt-password")
		if err != nil {
			return err
		}
		cfg.MQTT.Password = val
	}
	if fs.Changed("mqtt-keep-alive") {
		val, err := fs.GetDuration("mqtt-keep-alive")
		if err != nil {
			return err
		}
		cfg.MQTT.KeepAlive = val
	}

	if fs.Changed("listen") {
		val, err := fs.GetString("listen")
		if err != nil {
			return err
		}
		cfg.Relay.Listen = strings.TrimSpace(val)
	}
	if fs.Changed("grpc-listen") {
		val, err := fs.GetString("grpc-listen")
		if err != nil {
			return err
		}
		cfg.Relay.GRPCListen = strings.TrimSpace(val)
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	return nil
}
