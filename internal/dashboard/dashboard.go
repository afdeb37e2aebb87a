// Package dashboard renders a live terminal view of a benchmark suite.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/echobench/internal/metrics"
)

// Settings holds the suite parameters shown in the header.
type Settings struct {
	Transport    string
	Endpoint     string
	Sizes        []int
	Samples      int
	Rate         float64 // sends per second, 0 = back to back
	ReplyTimeout time.Duration
	Clock        string
	ConfigFile   string
}

// Dashboard renders a live terminal UI for a benchmark suite.
type Dashboard struct {
	collector    *metrics.Collector
	runs         func() []metrics.TimeStats
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid         *ui.Grid
	rttSparkline *widgets.SparklineGroup
	rttPara      *widgets.Paragraph
	progress     *widgets.Gauge
	errorList    *widgets.List
	runsTable    *widgets.Table
	summaryPara  *widgets.Paragraph
	metricsPara  *widgets.Paragraph
	settings     Settings
}

// New initializes the terminal. runs supplies the completed TimeStats on every refresh.
func New(collector *metrics.Collector, runs func() []metrics.TimeStats, settings Settings, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	if runs == nil {
		runs = func() []metrics.TimeStats { return nil }
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		collector:    collector,
		runs:         runs,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		settings:     settings,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Round trip (µs)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.rttSparkline = widgets.NewSparklineGroup(sparkline)
	d.rttSparkline.Title = "Recent Round Trips"
	d.rttSparkline.BorderStyle.Fg = ui.ColorCyan

	d.rttPara = widgets.NewParagraph()
	d.rttPara.Title = "Current Run"
	d.rttPara.Text = "Waiting for samples..."
	d.rttPara.BorderStyle.Fg = ui.ColorCyan

	d.progress = widgets.NewGauge()
	d.progress.Title = "Run Progress"
	d.progress.BarColor = ui.ColorBlue
	d.progress.BorderStyle.Fg = ui.ColorCyan
	d.progress.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failed Runs"
	d.errorList.Rows = []string{"[No failures](fg:green)"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.runsTable = widgets.NewTable()
	d.runsTable.Title = "Completed Runs (µs)"
	d.runsTable.Rows = runRows(nil)
	d.runsTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.runsTable.RowSeparator = false
	d.runsTable.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "echobench"
	d.summaryPara.Text = "Calibrating..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Totals"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.16,
			ui.NewCol(0.5, d.progress),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.26,
			ui.NewCol(0.65, d.rttSparkline),
			ui.NewCol(0.35, d.rttPara),
		),
		ui.NewRow(0.44,
			ui.NewCol(0.7, d.runsTable),
			ui.NewCol(0.3, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the suite has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := d.collector.Snapshot()

	if len(s.Recent) > 0 {
		d.rttSparkline.Sparklines[0].Data = s.Recent
		d.rttSparkline.Title = fmt.Sprintf("Recent Round Trips | %dB | Last: %.1fµs", s.PayloadSize, s.Recent[len(s.Recent)-1])
	}

	d.progress.Percent = progressPercent(s)
	d.progress.Label = fmt.Sprintf("%dB  %d/%d", s.PayloadSize, s.Completed, s.Target)

	d.summaryPara.Text = fmt.Sprintf("%s\nElapsed: %s | Runs finished: %d",
		formatSettings(d.settings), s.Elapsed.Round(time.Second), s.Runs)

	d.metricsPara.Text = fmt.Sprintf(
		"Samples:      %d\nSamples/sec:  %.1f\nFailed runs:  %d\nRun elapsed:  %s",
		s.TotalSamples, s.SamplesPerSec, s.Failures, s.RunElapsed.Round(time.Millisecond))

	d.rttPara.Text = currentRunText(s)
	d.runsTable.Rows = runRows(d.runs())
	d.errorList.Rows = errorRows(s.Errors)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func progressPercent(s metrics.Snapshot) int {
	if s.Target <= 0 {
		return 0
	}
	return min(100, s.Completed*100/s.Target)
}

func currentRunText(s metrics.Snapshot) string {
	if s.Completed == 0 {
		return "Waiting for samples..."
	}
	return fmt.Sprintf("Min:  %s\nMean: %s\nP50:  %s\nP90:  %s\nP99:  %s\nMax:  %s",
		s.Min, s.Mean, s.P50, s.P90, s.P99, s.Max)
}

func runRows(runs []metrics.TimeStats) [][]string {
	rows := [][]string{{"Bytes", "Mean", "Stdev", "P50", "P99", "P99.99"}}
	for _, ts := range runs {
		rows = append(rows, []string{
			strconv.FormatUint(ts.Size, 10),
			micros(ts.Mean), micros(ts.Stdev), micros(ts.P50), micros(ts.P99), micros(ts.P9999),
		})
	}
	return rows
}

func micros(ns uint64) string {
	return strconv.FormatFloat(float64(ns)/1e3, 'f', 1, 64)
}

func errorRows(errs map[string]int64) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	kinds := make([]string, 0, len(errs))
	for k := range errs {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if errs[kinds[i]] == errs[kinds[j]] {
			return kinds[i] < kinds[j]
		}
		return errs[kinds[i]] > errs[kinds[j]]
	})
	rows := make([]string, 0, len(kinds))
	for _, k := range kinds {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", k, errs[k]))
	}
	return rows
}

func formatSettings(s Settings) string {
	parts := []string{"Transport: " + s.Transport}
	if s.Endpoint != "" {
		parts = append(parts, "Endpoint: "+s.Endpoint)
	}
	if len(s.Sizes) > 0 {
		sizes := make([]string, len(s.Sizes))
		for i, n := range s.Sizes {
			sizes[i] = strconv.Itoa(n)
		}
		parts = append(parts, "Sizes: "+strings.Join(sizes, ","))
	}
	parts = append(parts, fmt.Sprintf("Samples: %d", s.Samples))
	if s.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", s.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if s.ReplyTimeout > 0 {
		parts = append(parts, fmt.Sprintf("Reply timeout: %s", s.ReplyTimeout))
	}
	if s.Clock != "" {
		parts = append(parts, "Clock: "+s.Clock)
	}
	if s.ConfigFile != "" {
		parts = append(parts, "Config: "+s.ConfigFile)
	}
	return strings.Join(parts, " | ")
}
