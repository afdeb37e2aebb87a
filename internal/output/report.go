package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/torosent/echobench/internal/baseline"
	"github.com/torosent/echobench/internal/clientmetrics"
	"github.com/torosent/echobench/internal/metrics"
	"github.com/torosent/echobench/internal/threshold"
)

// Header names the columns of FormatLine.
const Header = "bytes,mean_ns,stdev_ns,min_ns,max_ns,p50_ns,p90_ns,p99_ns,p9999_ns"

// title capitalizes words for headings. A Caser keeps state, so each call gets its own.
func title(s string) string {
	return cases.Title(language.English).String(s)
}

// Report is everything a finished suite produces.
type Report struct {
	RunID         string                 `json:"run_id" yaml:"run_id"`
	GeneratedAt   time.Time              `json:"generated_at" yaml:"generated_at"`
	Transport     string                 `json:"transport" yaml:"transport"`
	Samples       int                    `json:"samples" yaml:"samples"`
	ClockOverhead time.Duration          `json:"clock_overhead_ns" yaml:"clock_overhead_ns"`
	Duration      time.Duration          `json:"duration_ns" yaml:"duration_ns"`
	Runs          []metrics.TimeStats    `json:"runs" yaml:"runs"`
	Distributions []metrics.Distribution `json:"distributions,omitempty" yaml:"distributions,omitempty"`
	Failures      []Failure              `json:"failures,omitempty" yaml:"failures,omitempty"`
	Skipped       []int                  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Strays        int64                  `json:"strays" yaml:"strays"`
	Client        clientmetrics.Snapshot `json:"client" yaml:"client"`
	Thresholds    []threshold.Result     `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	Baseline      []baseline.Delta       `json:"baseline,omitempty" yaml:"baseline,omitempty"`
}

// Failure describes a run that produced no statistics.
type Failure struct {
	Size   int    `json:"bytes" yaml:"bytes"`
	Sample int    `json:"sample,omitempty" yaml:"sample,omitempty"`
	Kind   string `json:"kind" yaml:"kind"`
	Error  string `json:"error" yaml:"error"`
}

// FormatLine renders one TimeStats as bytes,mean,stdev,min,max,p50,p90,p99,p9999 in
// unsigned decimal with no padding.
func FormatLine(ts metrics.TimeStats) string {
	fields := [...]uint64{ts.Size, ts.Mean, ts.Stdev, ts.Min, ts.Max, ts.P50, ts.P90, ts.P99, ts.P9999}
	buf := make([]byte, 0, 96)
	for i, v := range fields {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, v, 10)
	}
	return string(buf)
}

// WriteLines writes the Header followed by one FormatLine per run.
func WriteLines(w io.Writer, runs []metrics.TimeStats) error {
	if _, err := io.WriteString(w, Header+"\n"); err != nil {
		return err
	}
	for _, ts := range runs {
		if _, err := io.WriteString(w, FormatLine(ts)+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// Write renders report in the named format: csv, table, json or yaml.
func Write(w io.Writer, format string, report Report) error {
	switch strings.ToLower(format) {
	case "", "csv":
		return WriteLines(w, report.Runs)
	case "table":
		PrintTable(w, report)
		return nil
	case "json":
		return PrintJSONReport(w, report)
	case "yaml":
		return PrintYAMLReport(w, report)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// PrintTable outputs a human-readable summary with round trips in microseconds.
func PrintTable(w io.Writer, report Report) {
	fmt.Fprintf(w, "\n--- %s Round-Trip Results ---\n", title(report.Transport))
	fmt.Fprintf(w, "Samples per run:   %d\n", report.Samples)
	fmt.Fprintf(w, "Clock overhead:    %s\n", report.ClockOverhead)
	fmt.Fprintf(w, "Duration:          %s\n", report.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Stray echoes:      %d\n", report.Strays)

	table := newTable(w, []string{"Bytes", "Mean", "Stdev", "Min", "Max", "P50", "P90", "P99", "P99.99"})
	for _, ts := range report.Runs {
		table.Append([]string{
			strconv.FormatUint(ts.Size, 10),
			micros(ts.Mean), micros(ts.Stdev), micros(ts.Min), micros(ts.Max),
			micros(ts.P50), micros(ts.P90), micros(ts.P99), micros(ts.P9999),
		})
	}
	table.Render()

	if len(report.Distributions) > 0 {
		fmt.Fprintln(w, "\nMean confidence (95%, µs):")
		table = newTable(w, []string{"Bytes", "Mean", "CI Low", "CI High", "P95"})
		for _, d := range report.Distributions {
			table.Append([]string{
				strconv.FormatUint(d.Size, 10),
				fmt.Sprintf("%.3f", d.MeanNs/1e3),
				fmt.Sprintf("%.3f", d.MeanCI95LowNs/1e3),
				fmt.Sprintf("%.3f", d.MeanCI95HighNs/1e3),
				fmt.Sprintf("%.3f", d.P95Ns/1e3),
			})
		}
		table.Render()
	}

	if len(report.Failures) > 0 {
		fmt.Fprintln(w, "\nFailed Runs:")
		table = newTable(w, []string{"Bytes", "Sample", "Kind", "Error"})
		for _, f := range report.Failures {
			table.Append([]string{strconv.Itoa(f.Size), strconv.Itoa(f.Sample), title(f.Kind), f.Error})
		}
		table.Render()
	}

	if len(report.Baseline) > 0 {
		fmt.Fprintln(w, "\nBaseline Comparison:")
		table = newTable(w, []string{"Bytes", "Mean", "Δ Mean", "P99", "Δ P99", "Status"})
		for _, d := range report.Baseline {
			status := "ok"
			if d.Regressed {
				status = "REGRESSED"
			}
			table.Append([]string{
				strconv.FormatUint(d.Size, 10),
				micros(d.CurrentMean),
				fmt.Sprintf("%+.1f%%", d.MeanChange),
				micros(d.CurrentP99),
				fmt.Sprintf("%+.1f%%", d.P99Change),
				status,
			})
		}
		table.Render()
	}

	if len(report.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range report.Thresholds {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}

	c := report.Client
	fmt.Fprintln(w, "\nTransport:")
	fmt.Fprintf(w, "  Sent:            %d messages (%d bytes)\n", c.MessagesSent, c.BytesSent)
	fmt.Fprintf(w, "  Received:        %d messages (%d bytes)\n", c.MessagesReceived, c.BytesReceived)
	if c.Errors > 0 || c.Disconnects > 0 {
		fmt.Fprintf(w, "  Errors:          %d (disconnects: %d)\n", c.Errors, c.Disconnects)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	return table
}

func micros(ns uint64) string {
	return strconv.FormatFloat(float64(ns)/1e3, 'f', 3, 64)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}
