package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"diffdrive-core/store"
)

var (
	pathColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	leftColor  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
	rightColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// PathPlot builds the x/y trajectory plot of a run
func PathPlot(samples []store.Sample, title string) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.X, Y: s.Y}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("path line: %w", err)
	}
	line.Color = pathColor
	line.Width = vg.Points(1.5)
	p.Add(line)

	start, err := plotter.NewScatter(pts[:1])
	if err != nil {
		return nil, fmt.Errorf("start marker: %w", err)
	}
	p.Add(start)
	p.Legend.Add("path", line)
	p.Legend.Add("start", start)
	return p, nil
}

// WheelSpeedPlot builds the left/right wheel velocity time series
func WheelSpeedPlot(samples []store.Sample, title string) (*plot.Plot, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}
	left := make(plotter.XYs, len(samples))
	right := make(plotter.XYs, len(samples))
	for i, s := range samples {
		t := float64(s.TimestampMS) / 1000
		left[i] = plotter.XY{X: t, Y: s.VelLeft}
		right[i] = plotter.XY{X: t, Y: s.VelRight}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t (s)"
	p.Y.Label.Text = "wheel speed (rad/s)"
	p.Add(plotter.NewGrid())

	for _, series := range []struct {
		name string
		pts  plotter.XYs
		c    color.Color
	}{
		{"left", left, leftColor},
		{"right", right, rightColor},
	} {
		l, err := plotter.NewLine(series.pts)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", series.name, err)
		}
		l.Color = series.c
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add(series.name, l)
	}
	return p, nil
}

// SavePlots writes the path plot and the wheel speed plot; an empty file name
// skips that plot. The image format follows each file's extension (png, svg, pdf).
func SavePlots(samples []store.Sample, runID, pathFile, wheelsFile string) error {
	if pathFile != "" {
		pp, err := PathPlot(samples, fmt.Sprintf("Run %s path", shortID(runID)))
		if err != nil {
			return err
		}
		if err := pp.Save(8*vg.Inch, 8*vg.Inch, pathFile); err != nil {
			return fmt.Errorf("save %s: %w", pathFile, err)
		}
	}
	if wheelsFile == "" {
		return nil
	}
	wp, err := WheelSpeedPlot(samples, fmt.Sprintf("Run %s wheel speeds", shortID(runID)))
	if err != nil {
		return err
	}
	if err := wp.Save(14*vg.Inch, 6*vg.Inch, wheelsFile); err != nil {
		return fmt.Errorf("save %s: %w", wheelsFile, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
