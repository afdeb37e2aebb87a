package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/echobench/internal/metrics"
)

// htmlReportData is the view model of the HTML template.
type htmlReportData struct {
	Report      Report
	GeneratedAt string
	Passed      int
	Failed      int
	ChartJSON   string
}

type chartSeries struct {
	Sizes []uint64  `json:"sizes"`
	Mean  []float64 `json:"mean"`
	P50   []float64 `json:"p50"`
	P99   []float64 `json:"p99"`
	P9999 []float64 `json:"p9999"`
}

func newChartSeries(runs []metrics.TimeStats) chartSeries {
	var c chartSeries
	for _, ts := range runs {
		c.Sizes = append(c.Sizes, ts.Size)
		c.Mean = append(c.Mean, float64(ts.Mean)/1e3)
		c.P50 = append(c.P50, float64(ts.P50)/1e3)
		c.P99 = append(c.P99, float64(ts.P99)/1e3)
		c.P9999 = append(c.P9999, float64(ts.P9999)/1e3)
	}
	return c
}

// GenerateHTMLReport writes a standalone HTML report with a latency-by-size chart.
func GenerateHTMLReport(w io.Writer, report Report) error {
	chartJSON, err := json.Marshal(newChartSeries(report.Runs))
	if err != nil {
		return fmt.Errorf("failed to marshal chart data: %w", err)
	}

	data := htmlReportData{
		Report:      report,
		GeneratedAt: report.GeneratedAt.Format(time.RFC3339),
		ChartJSON:   string(chartJSON),
	}
	if report.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now().Format(time.RFC3339)
	}
	for _, r := range report.Thresholds {
		if r.Pass {
			data.Passed++
		} else {
			data.Failed++
		}
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"micros": micros,
		"title":  title,
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"nsToMicros": func(f float64) string {
			return fmt.Sprintf("%.3f", f/1e3)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>echobench Round-Trip Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background: #f4f6f8; color: #1f2933; line-height: 1.5; padding: 24px; }
        .page { max-width: 1280px; margin: 0 auto; background: #fff; border-radius: 8px; box-shadow: 0 2px 8px rgba(0,0,0,0.08); overflow: hidden; }
        header { background: #1f4e79; color: #fff; padding: 28px 36px; }
        header h1 { font-size: 1.8rem; }
        header .meta { opacity: 0.85; font-size: 0.9rem; }
        main { padding: 36px; }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 16px; margin-bottom: 32px; }
        .card { background: #f8fafc; border-left: 4px solid #1f4e79; border-radius: 6px; padding: 16px; }
        .card h3 { font-size: 0.8rem; text-transform: uppercase; color: #616e7c; }
        .card .value { font-size: 1.7rem; font-weight: bold; }
        .card.bad { border-left-color: #d64545; }
        section { margin-bottom: 32px; }
        section h2 { font-size: 1.3rem; margin-bottom: 14px; border-bottom: 2px solid #e4e7eb; padding-bottom: 6px; }
        #latency-chart { width: 100%; height: 320px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: right; padding: 8px 10px; border-bottom: 1px solid #e4e7eb; font-variant-numeric: tabular-nums; }
        th:first-child, td:first-child { text-align: left; }
        th { background: #f8fafc; font-size: 0.8rem; text-transform: uppercase; color: #52606d; }
        .pass { color: #207227; font-weight: 600; }
        .fail { color: #ab091e; font-weight: 600; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
<div class="page">
    <header>
        <h1>echobench Round-Trip Report</h1>
        <div class="meta">Transport: {{title .Report.Transport}} | Samples per run: {{.Report.Samples}} | Generated: {{.GeneratedAt}}</div>
        {{if .Report.RunID}}<div class="meta">Run: {{.Report.RunID}}</div>{{end}}
    </header>
    <main>
        <div class="cards">
            <div class="card"><h3>Completed Runs</h3><div class="value">{{len .Report.Runs}}</div></div>
            <div class="card{{if .Report.Failures}} bad{{end}}"><h3>Failed Runs</h3><div class="value">{{len .Report.Failures}}</div></div>
            <div class="card"><h3>Clock Overhead</h3><div class="value">{{.Report.ClockOverhead}}</div></div>
            <div class="card"><h3>Stray Echoes</h3><div class="value">{{.Report.Strays}}</div></div>
        </div>

        {{if .Report.Runs}}
        <section>
            <h2>Round Trip by Payload Size (µs)</h2>
            <div id="latency-chart"></div>
        </section>

        <section>
            <h2>Statistics (µs)</h2>
            <table>
                <thead><tr><th>Bytes</th><th>Mean</th><th>Stdev</th><th>Min</th><th>Max</th><th>P50</th><th>P90</th><th>P99</th><th>P99.99</th></tr></thead>
                <tbody>
                {{range .Report.Runs}}
                    <tr><td>{{.Size}}</td><td>{{micros .Mean}}</td><td>{{micros .Stdev}}</td><td>{{micros .Min}}</td><td>{{micros .Max}}</td><td>{{micros .P50}}</td><td>{{micros .P90}}</td><td>{{micros .P99}}</td><td>{{micros .P9999}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        {{if .Report.Distributions}}
        <section>
            <h2>Mean Confidence Interval (95%, µs)</h2>
            <table>
                <thead><tr><th>Bytes</th><th>Mean</th><th>CI Low</th><th>CI High</th><th>P95</th></tr></thead>
                <tbody>
                {{range .Report.Distributions}}
                    <tr><td>{{.Size}}</td><td>{{nsToMicros .MeanNs}}</td><td>{{nsToMicros .MeanCI95LowNs}}</td><td>{{nsToMicros .MeanCI95HighNs}}</td><td>{{nsToMicros .P95Ns}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        {{if .Report.Thresholds}}
        <section>
            <h2>Thresholds ({{.Passed}}/{{len .Report.Thresholds}} Passed)</h2>
            <table>
                <thead><tr><th>Threshold</th><th>Bytes</th><th>Actual</th><th>Status</th></tr></thead>
                <tbody>
                {{range .Report.Thresholds}}
                    <tr><td>{{.Threshold.Raw}}</td><td>{{if .PayloadSize}}{{.PayloadSize}}{{else}}-{{end}}</td><td>{{formatFloat .Actual}}</td><td>{{if .Pass}}<span class="pass">PASS</span>{{else}}<span class="fail">FAIL</span>{{end}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        {{if .Report.Baseline}}
        <section>
            <h2>Baseline Comparison</h2>
            <table>
                <thead><tr><th>Bytes</th><th>Baseline Mean</th><th>Mean</th><th>Change</th><th>Baseline P99</th><th>P99</th><th>Change</th></tr></thead>
                <tbody>
                {{range .Report.Baseline}}
                    <tr><td>{{.Size}}</td><td>{{micros .BaselineMean}}</td><td>{{micros .CurrentMean}}</td><td{{if .Regressed}} class="fail"{{end}}>{{formatFloat .MeanChange}}%</td><td>{{micros .BaselineP99}}</td><td>{{micros .CurrentP99}}</td><td{{if .Regressed}} class="fail"{{end}}>{{formatFloat .P99Change}}%</td></tr>
                {{end}}
                </tbody>
            </table>
        </section>
        {{end}}

        {{if .Report.Failures}}
        <section>
            <h2>Failed Runs</h2>
            <table>
                <thead><tr><th>Bytes</th><th>Sample</th><th>Kind</th><th>Error</th></tr></thead>
                <tbody>
                {{range .Report.Failures}}
                    <tr><td>{{.Size}}</td><td>{{.Sample}}</td><td>{{title .Kind}}</td><td>{{.Error}}</td></tr>
                {{end}}
                </tbody>
            </table>
        </section>
        {{end}}
    </main>
</div>

{{if .Report.Runs}}
<script>
    const chart = JSON.parse({{.ChartJSON}});
    const el = document.getElementById('latency-chart');
    const idx = chart.sizes.map((_, i) => i);
    new uPlot({
        width: el.offsetWidth,
        height: 320,
        scales: { x: { time: false } },
        series: [
            { label: "Payload (bytes)", value: (u, v) => v == null ? "-" : chart.sizes[v] },
            { label: "Mean", stroke: "#1f4e79", width: 2 },
            { label: "P50", stroke: "#207227", width: 2 },
            { label: "P99", stroke: "#cb6e17", width: 2 },
            { label: "P99.99", stroke: "#ab091e", width: 2 }
        ],
        axes: [
            { label: "Payload (bytes)", values: (u, vals) => vals.map(v => chart.sizes[v] ?? "") },
            { label: "Round trip (µs)" }
        ]
    }, [idx, chart.mean, chart.p50, chart.p99, chart.p9999], el);
</script>
{{end}}
</body>
</html>
`
