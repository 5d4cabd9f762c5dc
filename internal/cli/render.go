package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"

	"VolLens/internal/domain/models"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer, title string, head table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle("%s", title)
	}
	t.AppendHeader(head)
	return t
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fmtValue(p models.Point) string {
	if !p.Valid {
		return "-"
	}
	return fmt.Sprintf("%.4f", p.Value)
}

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

// seriesTable renders the last tail rows of series sharing one timestamp grid.
func seriesTable(w io.Writer, title string, names []string, series []models.Series, tail int) {
	head := table.Row{"time"}
	for _, n := range names {
		head = append(head, n)
	}
	t := newTable(w, title, head)
	if len(series) == 0 {
		t.Render()
		return
	}
	n := series[0].Len()
	start := 0
	if tail > 0 && tail < n {
		start = n - tail
	}
	for i := start; i < n; i++ {
		row := table.Row{fmtTime(series[0].Points[i].Time)}
		for _, s := range series {
			row = append(row, fmtValue(s.Points[i]))
		}
		t.AppendRow(row)
	}
	t.Render()
}

func lineData(s models.Series) []opts.LineData {
	out := make([]opts.LineData, len(s.Points))
	for i, p := range s.Points {
		if p.Valid {
			out[i] = opts.LineData{Value: p.Value}
		} else {
			out[i] = opts.LineData{Value: nil}
		}
	}
	return out
}

// writeChart renders series on a shared time axis as a standalone HTML page.
func writeChart(path, title string, names []string, series []models.Series) error {
	if len(series) == 0 {
		return nil
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title}),
	)
	xs := make([]string, series[0].Len())
	for i, p := range series[0].Points {
		xs[i] = fmtTime(p.Time)
	}
	line.SetXAxis(xs)
	for i, s := range series {
		line.AddSeries(names[i], lineData(s))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart: %w", err)
	}
	defer f.Close()
	if err := line.Render(f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
