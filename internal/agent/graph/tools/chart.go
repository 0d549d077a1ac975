package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Chart renders a comma-separated series of numbers as a line chart.
type Chart struct {
	// Dir, when set, receives PNG files and the tool returns their path;
	// otherwise the PNG is returned inline as a data URI.
	Dir string
}

func NewChart(dir string) *Chart {
	return &Chart{Dir: dir}
}

func (c *Chart) Name() string { return ToolGraph }

func (c *Chart) Description() string {
	return "Generates a line chart from data. Input must be a comma-separated list of numbers, e.g. \"5, 10, 15\". Returns a reference to the PNG image."
}

func (c *Chart) Run(_ context.Context, input string) Result {
	data, err := ParseSeries(input)
	if err != nil {
		return Fail(KindInvalidInput, "Error parsing input data: %v", err)
	}

	png, err := RenderLineChart(data, "Generated Graph")
	if err != nil {
		return Fail(KindInvalidInput, "Error rendering graph: %v", err)
	}

	if c.Dir == "" {
		return OK("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return Fail(KindUnavailable, "Error creating chart directory: %v", err)
	}
	path := filepath.Join(c.Dir, "chart-"+uuid.NewString()+".png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return Fail(KindUnavailable, "Error writing chart file: %v", err)
	}
	return OK(path)
}

// ParseSeries converts "5, 10, 15" into floats. Every element must parse.
func ParseSeries(input string) ([]float64, error) {
	parts := strings.Split(input, ",")
	data := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		data = append(data, v)
	}
	return data, nil
}

// RenderLineChart plots data against its index and encodes it as PNG.
func RenderLineChart(data []float64, title string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "index"
	p.Y.Label.Text = "value"

	pts := make(plotter.XYs, len(data))
	for i, v := range data {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("build line: %w", err)
	}
	p.Add(line)

	w, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
