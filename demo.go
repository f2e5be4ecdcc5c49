package om_arm

import (
	"context"
	"math"
	"sync"

	"om_arm/drawing"
)

// Demo parameters of the SCARA pen plotter.
const (
	demoEraseMoveTime = 3.0
	demoStartMoveTime = 2.0
	demoDrawMoveTime  = 3.0
	demoPenUp         = -0.5
	demoPenDown       = 0.0
)

var demoErasePose = []float64{-2.17, 0.82, 2.05}

// demoStep is one command issued when the controller is idle.
type demoStep struct {
	setTool  bool
	tool     float64
	joints   []float64
	moveTime float64
	shape    *drawing.Shape
}

// demo loops over a fixed drawing program: before each page the pen is wiped on the eraser, then
// the arm moves to the page start and draws.
type demo struct {
	mu    sync.Mutex
	steps []demoStep
	pos   int
}

type demoPage struct {
	start  []float64
	shapes []drawing.Shape
}

func demoPages() []demoPage {
	circles := make([]drawing.Shape, 6)
	for i := range circles {
		circles[i] = drawing.Shape{Kind: drawing.Circle, Radius: 0.020, StartAngle: float64(i) * math.Pi / 3}
	}
	rhombi := make([]drawing.Shape, 3)
	for i := range rhombi {
		rhombi[i] = drawing.Shape{Kind: drawing.Rhombus, Radius: 0.020 + 0.007*float64(i), StartAngle: math.Pi}
	}
	return []demoPage{
		{start: []float64{-1.05, 0.9, 0.9}, shapes: []drawing.Shape{{Kind: drawing.Circle, Radius: 0.035}}},
		{start: []float64{-1.45, 1.2, 1.2}, shapes: circles},
		{start: []float64{-1.80, 1.43, 1.43}, shapes: []drawing.Shape{{Kind: drawing.Rhombus, Radius: 0.035, StartAngle: math.Pi}}},
		{start: []float64{-1.80, 1.43, 1.43}, shapes: rhombi},
		{start: []float64{-1.6, 1.3, 1.3}, shapes: []drawing.Shape{{Kind: drawing.Heart, Radius: 0.045, StartAngle: math.Pi}}},
	}
}

func newDemo() *demo {
	var steps []demoStep
	for _, page := range demoPages() {
		steps = append(steps,
			demoStep{setTool: true, tool: demoPenUp},
			demoStep{joints: demoErasePose, moveTime: demoEraseMoveTime},
			demoStep{setTool: true, tool: demoPenDown, joints: demoErasePose, moveTime: demoEraseMoveTime},
			demoStep{setTool: true, tool: demoPenUp, joints: demoErasePose, moveTime: demoEraseMoveTime},
			demoStep{joints: page.start, moveTime: demoStartMoveTime},
		)
		for i := range page.shapes {
			steps = append(steps, demoStep{setTool: true, tool: demoPenDown, shape: &page.shapes[i], moveTime: demoDrawMoveTime})
		}
	}
	return &demo{steps: steps}
}

// next issues the next step and advances, wrapping at the end of the program.
func (d *demo) next(ctx context.Context, c *Controller) error {
	d.mu.Lock()
	step := d.steps[d.pos]
	d.pos = (d.pos + 1) % len(d.steps)
	d.mu.Unlock()

	if step.setTool {
		if err := c.ToolMove(ctx, c.toolName, step.tool); err != nil {
			c.StopDemo()
			return err
		}
	}
	if step.joints != nil {
		if _, err := c.JointMove(ctx, step.joints, step.moveTime); err != nil {
			c.StopDemo()
			return err
		}
	}
	if step.shape != nil {
		if _, err := c.Draw(ctx, c.toolName, *step.shape, step.moveTime); err != nil {
			c.StopDemo()
			return err
		}
	}
	return nil
}

// StartDemo runs the drawing program whenever the controller is idle until StopDemo or Stop.
func (c *Controller) StartDemo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.demo == nil && !c.closed {
		c.logger.Info("starting drawing demo")
		c.demo = newDemo()
	}
}

// StopDemo stops issuing demo steps. A move already running completes.
func (c *Controller) StopDemo() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.demo != nil {
		c.logger.Info("stopping drawing demo")
		c.demo = nil
	}
}
