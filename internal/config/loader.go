package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used when neither a file nor a flag sets a value.
func Defaults() Config {
	return Config{
		Transport:        TransportMemory,
		OutboundTopic:    DefaultOutboundTopic,
		InboundTopic:     DefaultInboundTopic,
		Sizes:            append([]int(nil), DefaultSizes...),
		Samples:          DefaultSamples,
		Clock:            ClockMonotonic,
		CalibrationReads: DefaultCalibrationReads,
		MatchTimeout:     DefaultMatchTimeout,
		ReplyTimeout:     DefaultReplyTimeout,
		Arrival:          ArrivalConfig{Model: ArrivalModelUniform},
		Output:           OutputCSV,
		Relay: RelayConfig{
			Listen:     DefaultRelayListen,
			GRPCListen: DefaultRelayGRPCListen,
		},
		Tracing: TracingConfig{SampleRate: 1.0},
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.FromFlags(flagSet)
}

// FromFlags builds a Config from an already parsed flag set that carries the flags of RegisterFlags.
// File values override defaults and explicitly set flags override file values.
func (Loader) FromFlags(flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.OutboundTopic = strings.TrimSpace(cfg.OutboundTopic)
	cfg.InboundTopic = strings.TrimSpace(cfg.InboundTopic)
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "transport"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		cfg.Transport = Transport(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = val
	}

	if raw, ok := lookupSetting(settings, "outbound_topic", "outboundtopic", "outbound-topic"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("outbound_topic: %w", err)
		}
		cfg.OutboundTopic = val
	}

	if raw, ok := lookupSetting(settings, "inbound_topic", "inboundtopic", "inbound-topic"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("inbound_topic: %w", err)
		}
		cfg.InboundTopic = val
	}

	if raw, ok := lookupSetting(settings, "sizes"); ok {
		val, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("sizes: %w", err)
		}
		cfg.Sizes = val
	}

	if raw, ok := lookupSetting(settings, "samples"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("samples: %w", err)
		}
		cfg.Samples = val
	}

	if raw, ok := lookupSetting(settings, "clock"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("clock: %w", err)
		}
		cfg.Clock = ClockKind(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "calibration_reads", "calibrationreads", "calibration-reads"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("calibration_reads: %w", err)
		}
		cfg.CalibrationReads = val
	}

	if raw, ok := lookupSetting(settings, "match_timeout", "matchtimeout", "match-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("match_timeout: %w", err)
		}
		cfg.MatchTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "reply_timeout", "replytimeout", "reply-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("reply_timeout: %w", err)
		}
		cfg.ReplyTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arr, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		cfg.Arrival = arr
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "fail_fast", "failfast", "fail-fast"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("fail_fast: %w", err)
		}
		cfg.FailFast = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "html_output", "htmloutput", "html-output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("html_output: %w", err)
		}
		cfg.HTMLOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "history_file", "historyfile", "history-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("history_file: %w", err)
		}
		cfg.HistoryFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "baseline"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
		cfg.Baseline = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "max_regression", "maxregression", "max-regression"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("max_regression: %w", err)
		}
		cfg.MaxRegression = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "log_level", "loglevel", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "websocket"); ok {
		ws, err := parseWebSocketConfig(raw)
		if err != nil {
			return fmt.Errorf("websocket: %w", err)
		}
		cfg.WebSocket = ws
	}

	if raw, ok := lookupSetting(settings, "grpc"); ok {
		g, err := parseGRPCConfig(raw)
		if err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		cfg.GRPC = g
	}

	if raw, ok := lookupSetting(settings, "mqtt"); ok {
		m, err := parseMQTTConfig(raw)
		if err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		cfg.MQTT = m
	}

	if raw, ok := lookupSetting(settings, "relay"); ok {
		r, err := parseRelayConfig(raw, cfg.Relay)
		if err != nil {
			return fmt.Errorf("relay: %w", err)
		}
		cfg.Relay = r
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		t, err := parseTracingConfig(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = t
	}

	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	arr := ArrivalConfig{Model: ArrivalModelUniform}
	if value == nil {
		return arr, nil
	}
	if s, ok := value.(string); ok {
		if model := strings.ToLower(strings.TrimSpace(s)); model != "" {
			arr.Model = ArrivalModel(model)
		}
		return arr, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	if raw, ok := lookupSetting(entry, "model"); ok {
		val, err := asString(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("model: %w", err)
		}
		arr.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(entry, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return ArrivalConfig{}, fmt.Errorf("seed: %w", err)
		}
		arr.Seed = val
	}
	return arr, nil
}

func parseWebSocketConfig(value interface{}) (WebSocketConfig, error) {
	var ws WebSocketConfig
	if value == nil {
		return ws, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ws, err
	}
	if raw, ok := lookupSetting(entry, "handshake_timeout", "handshaketimeout", "handshake-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return WebSocketConfig{}, fmt.Errorf("handshake_timeout: %w", err)
		}
		ws.HandshakeTimeout = dur
	}
	return ws, nil
}

func parseGRPCConfig(value interface{}) (GRPCConfig, error) {
	var g GRPCConfig
	if value == nil {
		return g, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return g, err
	}
	if raw, ok := lookupSetting(entry, "tls"); ok {
		val, err := asBool(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("tls: %w", err)
		}
		g.TLS = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return GRPCConfig{}, fmt.Errorf("insecure: %w", err)
		}
		g.Insecure = val
	}
	return g, nil
}

func parseMQTTConfig(value interface{}) (MQTTConfig, error) {
	var m MQTTConfig
	if value == nil {
		return m, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return m, err
	}
	if raw, ok := lookupSetting(entry, "qos"); ok {
		val, err := asInt(raw)
		if err != nil {
			return MQTTConfig{}, fmt.Errorf("qos: %w", err)
		}
		m.QoS = val
	}
	if raw, ok := lookupSetting(entry, "client_id", "clientid", "client-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return MQTTConfig{}, fmt.Errorf("client_id: %w", err)
		}
		m.ClientID = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "username"); ok {
		val, err := asString(raw)
		if err != nil {
			return MQTTConfig{}, fmt.Errorf("username: %w", err)
		}
		m.Username = val
	}
	if raw, ok := lookupSetting(entry, "password"); ok {
		val, err := asString(raw)
		if err != nil {
			return MQTTConfig{}, fmt.Errorf("password: %w", err)
		}
		m.Password = val
	}
	if raw, ok := lookupSetting(entry, "keep_alive", "keepalive", "keep-alive"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return MQTTConfig{}, fmt.Errorf("keep_alive: %w", err)
		}
		m.KeepAlive = dur
	}
	return m, nil
}

func parseRelayConfig(value interface{}, r RelayConfig) (RelayConfig, error) {
	if value == nil {
		return r, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return r, err
	}
	if raw, ok := lookupSetting(entry, "listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return RelayConfig{}, fmt.Errorf("listen: %w", err)
		}
		r.Listen = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "grpc_listen", "grpclisten", "grpc-listen"); ok {
		val, err := asString(raw)
		if err != nil {
			return RelayConfig{}, fmt.Errorf("grpc_listen: %w", err)
		}
		r.GRPCListen = strings.TrimSpace(val)
	}
	return r, nil
}

func parseTracingConfig(value interface{}, t TracingConfig) (TracingConfig, error) {
	if value == nil {
		return t, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return t, err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return t, nil
}
