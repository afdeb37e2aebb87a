package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    int
		wantErr bool
	}{
		{nil, 0, false},
		{42, 42, false},
		{int64(7), 7, false},
		{uint16(9), 9, false},
		{float64(500), 500, false},
		{1.5, 0, true},
		{" 12 ", 12, false},
		{"", 0, false},
		{"abc", 0, true},
		{[]int{1}, 0, true},
	}
	for _, tt := range tests {
		got, err := asInt(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("asInt(%#v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("asInt(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAsFloat64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
	}{
		{nil, 0},
		{2.5, 2.5},
		{float32(0.5), 0.5},
		{3, 3},
		{"1.25", 1.25},
	}
	for _, tt := range tests {
		got, err := asFloat64(tt.in)
		if err != nil {
			t.Fatalf("asFloat64(%#v) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("asFloat64(%#v) = %g, want %g", tt.in, got, tt.want)
		}
	}
	if _, err := asFloat64(true); err == nil {
		t.Error("asFloat64(true) should fail")
	}
}

func TestAsBool(t *testing.T) {
	if v, err := asBool("true"); err != nil || !v {
		t.Errorf("asBool(\"true\") = %v, %v", v, err)
	}
	if v, err := asBool(""); err != nil || v {
		t.Errorf("asBool(\"\") = %v, %v", v, err)
	}
	if _, err := asBool(1); err == nil {
		t.Error("asBool(1) should fail")
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		in   interface{}
		want time.Duration
	}{
		{nil, 0},
		{"150ms", 150 * time.Millisecond},
		{30, 30 * time.Second},
		{float64(2), 2 * time.Second},
		{time.Minute, time.Minute},
	}
	for _, tt := range tests {
		got, err := asDuration(tt.in)
		if err != nil {
			t.Fatalf("asDuration(%#v) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%#v) = %s, want %s", tt.in, got, tt.want)
		}
	}
	if _, err := asDuration("soon"); err == nil {
		t.Error("asDuration(\"soon\") should fail")
	}
}

func TestAsIntSlice(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want []int
	}{
		{"list", []interface{}{16, float64(32)}, []int{16, 32}},
		{"csv", "64, 128,,256", []int{64, 128, 256}},
		{"scalar", 512, []int{512}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := asIntSlice(tt.in)
			if err != nil {
				t.Fatalf("asIntSlice() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("asIntSlice() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("asIntSlice() = %v, want %v", got, tt.want)
				}
			}
		})
	}
	if _, err := asIntSlice("16,big"); err == nil {
		t.Error("asIntSlice(\"16,big\") should fail")
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]interface{}{
		"transport":        "GRPC",
		"endpoint":         "relay:9090",
		"samples":          250,
		"fail_fast":        true,
		"history_file":     " runs.jsonl ",
		"arrival":          "poisson",
		"grpc":             map[string]interface{}{"tls": true, "insecure": "true"},
		"relay":            map[interface{}]interface{}{"grpc_listen": ":9999"},
		"calibrationreads": 100,
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Transport != TransportGRPC {
		t.Errorf("Transport = %q, want grpc", cfg.Transport)
	}
	if cfg.Endpoint != "relay:9090" {
		t.Errorf("Endpoint = %q", cfg.Endpoint)
	}
	if cfg.Samples != 250 {
		t.Errorf("Samples = %d, want 250", cfg.Samples)
	}
	if !cfg.FailFast {
		t.Error("FailFast = false, want true")
	}
	if cfg.HistoryFile != "runs.jsonl" {
		t.Errorf("HistoryFile = %q, want runs.jsonl", cfg.HistoryFile)
	}
	if cfg.Arrival.Model != ArrivalModelPoisson {
		t.Errorf("Arrival.Model = %q, want poisson", cfg.Arrival.Model)
	}
	if !cfg.GRPC.TLS || !cfg.GRPC.Insecure {
		t.Errorf("GRPC = %+v, want tls and insecure", cfg.GRPC)
	}
	if cfg.Relay.GRPCListen != ":9999" || cfg.Relay.Listen != DefaultRelayListen {
		t.Errorf("Relay = %+v", cfg.Relay)
	}
	if cfg.CalibrationReads != 100 {
		t.Errorf("CalibrationReads = %d, want 100", cfg.CalibrationReads)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	cases := map[string]interface{}{
		"samples":   "many",
		"fail_fast": 3,
		"mqtt":      "qos=1",
		"sizes":     []interface{}{"x"},
	}
	for key, val := range cases {
		cfg := Defaults()
		if err := applyConfigSettings(&cfg, map[string]interface{}{key: val}); err == nil {
			t.Errorf("%s: expected error for %#v", key, val)
		}
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--transport=WebSocket",
		"--sizes=8,16",
		"--rate=50",
		"--output=table",
		"--threshold=rtt:p50 < 100",
		"--threshold=rtt:max <= 900",
		"--mqtt-username=bench",
		"--listen=:7000",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Transport != TransportWebSocket {
		t.Errorf("Transport = %q, want websocket", cfg.Transport)
	}
	if len(cfg.Sizes) != 2 || cfg.Sizes[0] != 8 {
		t.Errorf("Sizes = %v, want [8 16]", cfg.Sizes)
	}
	if cfg.Rate != 50 {
		t.Errorf("Rate = %g, want 50", cfg.Rate)
	}
	if cfg.Output != OutputTable {
		t.Errorf("Output = %q, want table", cfg.Output)
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %v, want 2 entries", cfg.Thresholds)
	}
	if cfg.MQTT.Username != "bench" {
		t.Errorf("MQTT.Username = %q", cfg.MQTT.Username)
	}
	if cfg.Relay.Listen != ":7000" {
		t.Errorf("Relay.Listen = %q", cfg.Relay.Listen)
	}
	if cfg.Samples != DefaultSamples {
		t.Errorf("unset flag changed Samples to %d", cfg.Samples)
	}
}
