package om_arm

import (
	"context"
	"errors"

	"github.com/golang/geo/r3"

	"om_arm/processing"
)

// motionStopLine is the pen lift-off stroke drawn when the GUI stops the demo.
var motionStopLine = r3.Vector{X: 0.02}

const motionStopMoveTime = 1.0

// processingHandler runs GUI commands on a controller.
type processingHandler struct {
	c *Controller
}

var _ processing.Handler = processingHandler{}

func (h processingHandler) DOF() int {
	return h.c.m.DOF()
}

func (h processingHandler) JointAngles(ctx context.Context) ([]float64, error) {
	return h.c.JointAngles(), nil
}

func (h processingHandler) ToolValue(ctx context.Context) (float64, error) {
	return h.c.ToolValue(h.c.toolName)
}

func (h processingHandler) SetTorque(ctx context.Context, enable bool) error {
	return h.c.SetTorque(ctx, enable)
}

func (h processingHandler) JointMove(ctx context.Context, goal []float64, moveTime float64) error {
	_, err := h.c.JointMove(ctx, goal, moveTime)
	return err
}

func (h processingHandler) ToolMove(ctx context.Context, value float64) error {
	return h.c.ToolMove(ctx, h.c.toolName, value)
}

// PositionMove keeps the tool's orientation; a SCARA cannot change it.
func (h processingHandler) PositionMove(ctx context.Context, x, y, z, moveTime float64) error {
	target, err := h.c.ToolPose(h.c.toolName)
	if err != nil {
		return err
	}
	target.Position = r3.Vector{X: x, Y: y, Z: z}
	_, err = h.c.TaskMove(ctx, h.c.toolName, target, moveTime)
	return err
}

func (h processingHandler) Motion(ctx context.Context, start bool) error {
	if start {
		h.c.StartDemo()
		return nil
	}
	h.c.StopDemo()
	_, err := h.c.DrawLine(ctx, h.c.toolName, motionStopLine, motionStopMoveTime)
	if errors.Is(err, ErrNoInverseSolver) {
		return nil
	}
	return err
}
