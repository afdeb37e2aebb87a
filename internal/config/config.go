package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Transport string

const (
	TransportMemory    Transport = "memory"
	TransportWebSocket Transport = "websocket"
	TransportGRPC      Transport = "grpc"
	TransportMQTT      Transport = "mqtt"
)

type OutputFormat string

const (
	OutputCSV   OutputFormat = "csv"
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

type ClockKind string

const (
	ClockMonotonic ClockKind = "monotonic"
	ClockRaw       ClockKind = "raw"
)

const (
	DefaultOutboundTopic    = "LatencyUp"
	DefaultInboundTopic     = "LatencyDown"
	DefaultSamples          = 10000
	DefaultCalibrationReads = 400
	DefaultMatchTimeout     = 30 * time.Second
	DefaultReplyTimeout     = 5 * time.Second
	DefaultRelayListen      = ":8080"
	DefaultRelayGRPCListen  = ":9090"
)

// DefaultSizes are the payload sizes of a standard suite, in bytes.
var DefaultSizes = []int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384}

type Config struct {
	Transport        Transport       `mapstructure:"transport"`
	Endpoint         string          `mapstructure:"endpoint"`
	OutboundTopic    string          `mapstructure:"outbound_topic"`
	InboundTopic     string          `mapstructure:"inbound_topic"`
	Sizes            []int           `mapstructure:"sizes"`
	Samples          int             `mapstructure:"samples"`
	Clock            ClockKind       `mapstructure:"clock"`
	CalibrationReads int             `mapstructure:"calibration_reads"`
	MatchTimeout     time.Duration   `mapstructure:"match_timeout"`
	ReplyTimeout     time.Duration   `mapstructure:"reply_timeout"`
	Rate             float64         `mapstructure:"rate"`
	Arrival          ArrivalConfig   `mapstructure:"arrival"`
	Duration         time.Duration   `mapstructure:"duration"`
	FailFast         bool            `mapstructure:"fail_fast"`
	Output           OutputFormat    `mapstructure:"output"`
	HTMLOutput       string          `mapstructure:"html_output"`
	HistoryFile      string          `mapstructure:"history_file"`
	Baseline         string          `mapstructure:"baseline"`
	MaxRegression    float64         `mapstructure:"max_regression"`
	Thresholds       []string        `mapstructure:"thresholds"`
	Dashboard        bool            `mapstructure:"dashboard"`
	Progress         bool            `mapstructure:"progress"`
	LogLevel         string          `mapstructure:"log_level"`
	ConfigFile       string          `mapstructure:"-"`
	WebSocket        WebSocketConfig `mapstructure:"websocket"`
	GRPC             GRPCConfig      `mapstructure:"grpc"`
	MQTT             MQTTConfig      `mapstructure:"mqtt"`
	Relay            RelayConfig     `mapstructure:"relay"`
	Tracing          TracingConfig   `mapstructure:"tracing"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
	Seed  int64        `mapstructure:"seed"` // 0 picks a time-based seed
}

type WebSocketConfig struct {
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

type GRPCConfig struct {
	TLS      bool `mapstructure:"tls"`
	Insecure bool `mapstructure:"insecure"` // Skip TLS verification
}

type MQTTConfig struct {
	QoS       int           `mapstructure:"qos"`
	ClientID  string        `mapstructure:"client_id"` // empty generates one per connection
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	KeepAlive time.Duration `mapstructure:"keep_alive"`
}

type RelayConfig struct {
	Listen     string `mapstructure:"listen"`
	GRPCListen string `mapstructure:"grpc_listen"`
}

// TracingConfig controls OTLP span export for benchmark runs.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured, directly or through OTEL_EXPORTER_OTLP_ENDPOINT.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate defaults to Enabled unless set explicitly.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the settings used by the run command.
func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateTransport(c.Transport, c.Endpoint)...)

	if strings.TrimSpace(c.OutboundTopic) == "" {
		issues = append(issues, "outbound_topic is required")
	}
	if strings.TrimSpace(c.InboundTopic) == "" {
		issues = append(issues, "inbound_topic is required")
	}
	if c.OutboundTopic != "" && c.OutboundTopic == c.InboundTopic {
		issues = append(issues, "outbound_topic and inbound_topic must differ")
	}

	if len(c.Sizes) == 0 {
		issues = append(issues, "at least one payload size is required")
	}
	for idx, size := range c.Sizes {
		if size < 0 {
			issues = append(issues, fmt.Sprintf("sizes[%d]: must be >= 0", idx))
		}
	}
	if c.Samples < 1 {
		issues = append(issues, "samples must be >= 1")
	}
	if c.CalibrationReads < 1 {
		issues = append(issues, "calibration_reads must be >= 1")
	}
	if c.MatchTimeout <= 0 {
		issues = append(issues, "match_timeout must be > 0")
	}
	if c.ReplyTimeout <= 0 {
		issues = append(issues, "reply_timeout must be > 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.MaxRegression < 0 {
		issues = append(issues, "max_regression must be >= 0")
	}
	if c.MaxRegression > 0 && strings.TrimSpace(c.Baseline) == "" {
		issues = append(issues, "max_regression requires a baseline report")
	}

	switch c.Clock {
	case ClockMonotonic, ClockRaw:
	default:
		issues = append(issues, fmt.Sprintf("clock: must be 'monotonic' or 'raw', got %q", c.Clock))
	}

	switch c.Output {
	case OutputCSV, OutputTable, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output: must be 'csv', 'table', 'json', or 'yaml', got %q", c.Output))
	}
	if c.Dashboard && c.Progress {
		issues = append(issues, "dashboard and progress are mutually exclusive")
	}

	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			issues = append(issues, fmt.Sprintf("log_level: %v", err))
		}
	}

	if arrivalIssues := validateArrivalConfig(c.Arrival); len(arrivalIssues) > 0 {
		issues = append(issues, arrivalIssues...)
	}
	if mqttIssues := validateMQTTConfig(c.MQTT); len(mqttIssues) > 0 {
		issues = append(issues, mqttIssues...)
	}
	if c.WebSocket.HandshakeTimeout < 0 {
		issues = append(issues, "websocket: handshake_timeout must be >= 0")
	}
	if tracingIssues := validateTracingConfig(c.Tracing); len(tracingIssues) > 0 {
		issues = append(issues, tracingIssues...)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// ValidateResponder checks the subset of settings the respond command uses.
func (c Config) ValidateResponder() error {
	issues := validateTransport(c.Transport, c.Endpoint)
	if c.Transport == TransportMemory {
		issues = append(issues, "transport: the responder needs a network transport")
	}
	if strings.TrimSpace(c.OutboundTopic) == "" || strings.TrimSpace(c.InboundTopic) == "" {
		issues = append(issues, "outbound_topic and inbound_topic are required")
	}
	issues = append(issues, validateMQTTConfig(c.MQTT)...)
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// ValidateRelay checks the listen addresses of the relay command.
func (c Config) ValidateRelay() error {
	var issues []string
	if strings.TrimSpace(c.Relay.Listen) == "" && strings.TrimSpace(c.Relay.GRPCListen) == "" {
		issues = append(issues, "relay: at least one of listen or grpc_listen is required")
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTransport(transport Transport, endpoint string) []string {
	var issues []string
	switch transport {
	case TransportMemory:
	case TransportWebSocket, TransportGRPC, TransportMQTT:
		if strings.TrimSpace(endpoint) == "" {
			issues = append(issues, fmt.Sprintf("endpoint is required for the %s transport", transport))
		}
	default:
		issues = append(issues, fmt.Sprintf("transport: must be 'memory', 'websocket', 'grpc', or 'mqtt', got %q", transport))
	}
	return issues
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	switch arr.Model {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival.model must be 'uniform' or 'poisson', got %q", arr.Model)}
	}
}

func validateMQTTConfig(m MQTTConfig) []string {
	var issues []string
	if m.QoS < 0 || m.QoS > 2 {
		issues = append(issues, fmt.Sprintf("mqtt: qos must be 0, 1, or 2, got %d", m.QoS))
	}
	if m.KeepAlive < 0 {
		issues = append(issues, "mqtt: keep_alive must be >= 0")
	}
	if m.Password != "" && m.Username == "" {
		issues = append(issues, "mqtt: password requires a username")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
