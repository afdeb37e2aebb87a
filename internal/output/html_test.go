package output_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/torosent/echobench/internal/output"
)

func TestGenerateHTMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, sampleReport()); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		"<!DOCTYPE html>",
		"echobench Round-Trip Report",
		"Transport: Memory",
		"2026-03-01T12:00:00Z",
		"01HZX0000000000000000000AA",
		"latency-chart",
		"<td>1024</td>",
		"110.000",
		"Thresholds (0/1 Passed)",
		"FAIL",
		"Baseline Comparison",
		"40.00%",
		"Content Mismatch",
		"uPlot",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML report missing %q", want)
		}
	}
}

func TestGenerateHTMLReportEscapesErrors(t *testing.T) {
	report := sampleReport()
	report.Failures[0].Error = `<script>alert("x")</script>`

	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, report); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	if strings.Contains(buf.String(), `<script>alert("x")</script>`) {
		t.Fatal("error text must be escaped")
	}
}

func TestGenerateHTMLReportWithoutRuns(t *testing.T) {
	var buf bytes.Buffer
	if err := output.GenerateHTMLReport(&buf, output.Report{Transport: "grpc"}); err != nil {
		t.Fatalf("GenerateHTMLReport() error = %v", err)
	}
	if strings.Contains(buf.String(), "new uPlot") {
		t.Error("chart script should be omitted without runs")
	}
}
