// Package chart renders speed test history as PNG images.
package chart

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/saveenergy/ispcheck/pkg/types"
)

// ErrNotEnoughData is returned when fewer than two records are available.
var ErrNotEnoughData = errors.New("at least two speed tests are needed for a chart")

const (
	width  = 900
	height = 420
)

var (
	downloadColor = drawing.Color{R: 33, G: 150, B: 243, A: 255}
	uploadColor   = drawing.Color{R: 76, G: 175, B: 80, A: 255}
)

// RenderHistory writes a PNG line chart of download and upload speeds in
// chronological order. Records may be passed in any order.
func RenderHistory(w io.Writer, records []types.SpeedRecord) error {
	if len(records) < 2 {
		return ErrNotEnoughData
	}

	sorted := make([]types.SpeedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sample.MeasuredAt.Before(sorted[j].Sample.MeasuredAt)
	})

	times := make([]time.Time, len(sorted))
	down := make([]float64, len(sorted))
	up := make([]float64, len(sorted))
	peak := 0.0
	for i, rec := range sorted {
		times[i] = rec.Sample.MeasuredAt.UTC()
		down[i] = rec.Sample.DownloadMbps
		up[i] = rec.Sample.UploadMbps
		peak = max(peak, down[i], up[i])
	}
	if peak <= 0 {
		peak = 1
	}

	// Pad the time axis so identical timestamps still yield a non-zero range.
	first := times[0].Add(-time.Minute)
	last := times[len(times)-1].Add(time.Minute)

	graph := chart.Chart{
		Title:      "Speed Test History",
		TitleStyle: chart.Style{FontSize: 14},
		Width:      width,
		Height:     height,
		Background: chart.Style{
			Padding: chart.Box{
				Top:    50,
				Left:   20,
				Right:  20,
				Bottom: 20,
			},
			FillColor: drawing.ColorWhite,
		},
		XAxis: chart.XAxis{
			Name: "Time (UTC)",
			Range: &chart.ContinuousRange{
				Min: chart.TimeToFloat64(first),
				Max: chart.TimeToFloat64(last),
			},
			ValueFormatter: formatTime,
		},
		YAxis: chart.YAxis{
			Name: "Mbps",
			Range: &chart.ContinuousRange{
				Min: 0,
				Max: peak * 1.1,
			},
			ValueFormatter: func(v interface{}) string {
				if vf, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f", vf)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Download",
				XValues: times,
				YValues: down,
				Style: chart.Style{
					StrokeColor: downloadColor,
					StrokeWidth: 3,
				},
			},
			chart.TimeSeries{
				Name:    "Upload",
				XValues: times,
				YValues: up,
				Style: chart.Style{
					StrokeColor: uploadColor,
					StrokeWidth: 3,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render history chart: %w", err)
	}
	return nil
}

func formatTime(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("01-02 15:04")
	case float64:
		return chart.TimeFromFloat64(t).UTC().Format("01-02 15:04")
	}
	return ""
}
