// trajplot renders a minimum-jerk joint profile and the preset drawing paths to PNG files.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/logging"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"om_arm/drawing"
	"om_arm/trajectory"
)

var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
}

func main() {
	outDir := flag.String("out", "plots", "output directory")
	controlTime := flag.Float64("control-time", 0.010, "control period in seconds")
	moveTime := flag.Float64("move-time", 2.0, "move duration in seconds")
	flag.Parse()

	logger := logging.NewLogger("trajplot")
	if err := run(*outDir, *moveTime, *controlTime); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
	logger.Infof("plots written to %s", *outDir)
}

func run(outDir string, moveTime, controlTime float64) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := plotJointProfile(filepath.Join(outDir, "joint_profile.png"), moveTime, controlTime); err != nil {
		return err
	}
	shapes := []drawing.Shape{
		{Kind: drawing.Circle, Radius: 0.035},
		{Kind: drawing.Rhombus, Radius: 0.035, StartAngle: math.Pi},
		{Kind: drawing.Heart, Radius: 0.045, StartAngle: math.Pi},
		{Kind: drawing.Spiral, Radius: 0.03},
	}
	for _, shape := range shapes {
		path := filepath.Join(outDir, shape.Kind.String()+".png")
		if err := plotShape(path, shape, moveTime, controlTime); err != nil {
			return err
		}
	}
	return nil
}

// plotJointProfile plots value, velocity and effort of a single joint moving from 0 to 1 rad.
func plotJointProfile(path string, moveTime, controlTime float64) error {
	jt := trajectory.NewJointTrajectory(1)
	if err := jt.Init(moveTime, controlTime,
		trajectory.WayPointsFromValues([]float64{0}),
		trajectory.WayPointsFromValues([]float64{1})); err != nil {
		return err
	}

	steps := int(jt.MoveTime()/controlTime) + 1
	value := make(plotter.XYs, 0, steps)
	velocity := make(plotter.XYs, 0, steps)
	effort := make(plotter.XYs, 0, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) * controlTime
		wp := jt.Sample(t)[0]
		value = append(value, plotter.XY{X: t, Y: wp.Value})
		velocity = append(velocity, plotter.XY{X: t, Y: wp.Velocity})
		effort = append(effort, plotter.XY{X: t, Y: wp.Effort})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Minimum-jerk joint move (%.2fs)", jt.MoveTime())
	p.X.Label.Text = "time (s)"
	for i, series := range []struct {
		label string
		pts   plotter.XYs
	}{{"value", value}, {"velocity", velocity}, {"effort", effort}} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return fmt.Errorf("failed to create %s line: %w", series.label, err)
		}
		line.Color = palette[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.label, line)
	}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}

// plotShape plots the XY path of a drawing started at the origin.
func plotShape(path string, shape drawing.Shape, moveTime, controlTime float64) error {
	ctx, err := drawing.Init(shape, r3.Vector{}, moveTime, controlTime)
	if err != nil {
		return fmt.Errorf("failed to init %s: %w", shape.Kind, err)
	}

	var pts plotter.XYs
	for i := 0; ; i++ {
		t := float64(i) * controlTime
		pos := drawing.Sample(ctx, t).Position
		pts = append(pts, plotter.XY{X: pos.X, Y: pos.Y})
		if ctx.Done(t) {
			break
		}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s r=%.3fm", shape.Kind, shape.Radius)
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("failed to create %s line: %w", shape.Kind, err)
	}
	line.Color = palette[0]
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())

	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}
