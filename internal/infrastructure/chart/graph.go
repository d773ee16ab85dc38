// Package chart renders PNG graphs with go-chart.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	width      = 1200
	height     = 600
	barWidth   = 24
	barSpacing = 8
)

var (
	barFill   = drawing.ColorFromHex("4CAF50")
	barStroke = drawing.ColorFromHex("2E7D32")
	statsFill = drawing.ColorFromHex("ADD8E6")
)

// ErrNoDays is returned for a series without days.
var ErrNoDays = errors.New("chart: days must be positive")

// DailySeries is one bar per calendar day. Days missing from Values are zero.
type DailySeries struct {
	Title  string
	XLabel string
	YLabel string
	Days   int
	Values map[int]float64

	// Stats is printed in the top-left corner of the plot.
	Stats string

	// Format renders y tick labels.
	Format func(float64) string
}

// RenderDailyBars renders the series as a PNG bar chart.
func RenderDailyBars(s DailySeries) ([]byte, error) {
	if s.Days <= 0 {
		return nil, ErrNoDays
	}
	format := s.Format
	if format == nil {
		format = func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	}

	bars := make([]gochart.Value, 0, s.Days)
	peak := 0.0
	for day := 1; day <= s.Days; day++ {
		v := s.Values[day]
		peak = math.Max(peak, v)
		bars = append(bars, gochart.Value{
			Label: strconv.Itoa(day),
			Value: v,
			Style: gochart.Style{
				FillColor:   barFill,
				StrokeColor: barStroke,
				StrokeWidth: 1,
			},
		})
	}

	// go-chart refuses a zero-height range.
	top := peak * 1.15
	if top <= 0 {
		top = 1
	}

	graph := gochart.BarChart{
		Title:      s.Title,
		TitleStyle: gochart.Style{FontSize: 14},
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 60, Left: 20, Right: 20, Bottom: 50},
		},
		XAxis: gochart.Style{FontSize: 9},
		YAxis: gochart.YAxis{
			Name:  s.YLabel,
			Range: &gochart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return format(f)
				}
				return fmt.Sprint(v)
			},
		},
		Bars: bars,
	}
	if s.Stats != "" {
		graph.Elements = append(graph.Elements, statsBox(s.Stats))
	}
	if s.XLabel != "" {
		graph.Elements = append(graph.Elements, axisLabel(s.XLabel))
	}

	buf := new(bytes.Buffer)
	if err := graph.Render(gochart.PNG, buf); err != nil {
		return nil, fmt.Errorf("chart: render: %w", err)
	}
	return buf.Bytes(), nil
}

func statsBox(text string) gochart.Renderable {
	return func(r gochart.Renderer, canvas gochart.Box, defaults gochart.Style) {
		style := gochart.Style{
			Font:      defaults.Font,
			FontSize:  10,
			FontColor: drawing.ColorBlack,
		}
		style.WriteTextOptionsToRenderer(r)
		tb := r.MeasureText(text)

		left, top := canvas.Left+8, canvas.Top+8
		box := gochart.Box{
			Top:    top,
			Left:   left,
			Right:  left + tb.Width() + 12,
			Bottom: top + tb.Height() + 12,
		}
		gochart.Draw.Box(r, box, gochart.Style{
			FillColor:   statsFill,
			StrokeColor: statsFill,
			StrokeWidth: 1,
		})

		style.WriteTextOptionsToRenderer(r)
		r.Text(text, left+6, top+6+tb.Height())
	}
}

func axisLabel(text string) gochart.Renderable {
	return func(r gochart.Renderer, canvas gochart.Box, defaults gochart.Style) {
		style := gochart.Style{
			Font:      defaults.Font,
			FontSize:  11,
			FontColor: drawing.ColorBlack,
		}
		style.WriteTextOptionsToRenderer(r)
		tb := r.MeasureText(text)
		r.Text(text, canvas.Left+(canvas.Width()-tb.Width())/2, canvas.Bottom+tb.Height()+24)
	}
}
